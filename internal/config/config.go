package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tallyfi/tally/internal/model"
)

// FileName is the configuration file at the root of a data directory.
const FileName = "tally.yaml"

// Storage backends.
const (
	StorageFile = "file"
	StorageGCS  = "gcs"
)

// Remote backends.
const (
	RemoteNone     = "none"
	RemoteSQLite   = "sqlite"
	RemoteBigQuery = "bigquery"
)

// Config represents the top-level tally.yaml configuration.
type Config struct {
	User      UserConfig      `yaml:"user"`
	Storage   StorageConfig   `yaml:"storage"`
	Remote    RemoteConfig    `yaml:"remote"`
	Recurring RecurringConfig `yaml:"recurring"`
	Log       LogConfig       `yaml:"log"`
}

// UserConfig identifies whose rows the remote store holds.
type UserConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// StorageConfig selects where the local blobs live.
type StorageConfig struct {
	Backend string `yaml:"backend"`          // "file" or "gcs"
	Dir     string `yaml:"dir,omitempty"`    // relative to the data directory
	Bucket  string `yaml:"bucket,omitempty"` // gcs only
	Prefix  string `yaml:"prefix,omitempty"` // gcs only
}

// RemoteConfig selects the remote backing store.
type RemoteConfig struct {
	Backend string `yaml:"backend"`           // "none", "sqlite" or "bigquery"
	DSN     string `yaml:"dsn,omitempty"`     // sqlite only
	Project string `yaml:"project,omitempty"` // bigquery only
	Dataset string `yaml:"dataset,omitempty"` // bigquery only
}

// RecurringConfig controls materialization and previews.
type RecurringConfig struct {
	PreviewMonths    int           `yaml:"preview_months"`
	MaterializeEvery time.Duration `yaml:"materialize_every"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads a tally.yaml file from disk. Unset recurring values take their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with file storage and no remote.
func Default(userID, userName string) *Config {
	cfg := &Config{
		User:    UserConfig{ID: userID, Name: userName},
		Storage: StorageConfig{Backend: StorageFile, Dir: "data"},
		Remote:  RemoteConfig{Backend: RemoteNone},
		Log:     LogConfig{Level: "info"},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFile
	}
	if c.Storage.Backend == StorageFile && c.Storage.Dir == "" {
		c.Storage.Dir = "data"
	}
	if c.Remote.Backend == "" {
		c.Remote.Backend = RemoteNone
	}
	if c.Recurring.PreviewMonths == 0 {
		c.Recurring.PreviewMonths = 12
	}
	if c.Recurring.MaterializeEvery == 0 {
		c.Recurring.MaterializeEvery = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks backend names and their required settings.
func (c *Config) Validate() error {
	var errs model.ValidationErrors
	if c.User.ID == "" {
		errs = append(errs, model.ValidationError{Field: "user.id", Description: "user id is required"})
	}
	switch c.Storage.Backend {
	case StorageFile:
	case StorageGCS:
		if c.Storage.Bucket == "" {
			errs = append(errs, model.ValidationError{Field: "storage.bucket", Description: "gcs storage requires a bucket"})
		}
	default:
		errs = append(errs, model.ValidationError{Field: "storage.backend", Description: fmt.Sprintf("unknown backend %q", c.Storage.Backend)})
	}
	switch c.Remote.Backend {
	case RemoteNone:
	case RemoteSQLite:
		if c.Remote.DSN == "" {
			errs = append(errs, model.ValidationError{Field: "remote.dsn", Description: "sqlite remote requires a dsn"})
		}
	case RemoteBigQuery:
		if c.Remote.Project == "" || c.Remote.Dataset == "" {
			errs = append(errs, model.ValidationError{Field: "remote.project", Description: "bigquery remote requires project and dataset"})
		}
	default:
		errs = append(errs, model.ValidationError{Field: "remote.backend", Description: fmt.Sprintf("unknown backend %q", c.Remote.Backend)})
	}
	if c.Recurring.PreviewMonths < 0 {
		errs = append(errs, model.ValidationError{Field: "recurring.preview_months", Description: "must not be negative"})
	}
	if c.Recurring.MaterializeEvery < 0 {
		errs = append(errs, model.ValidationError{Field: "recurring.materialize_every", Description: "must not be negative"})
	}
	return errs.OrNil()
}
