package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tallyfi/tally/internal/accounts"
	"github.com/tallyfi/tally/internal/app"
	"github.com/tallyfi/tally/internal/config"
	"github.com/tallyfi/tally/internal/id"
	"github.com/tallyfi/tally/internal/logger"
)

type initOptions struct {
	name       string
	userID     string
	remote     string
	dsn        string
	noDefaults bool
}

func newInitCommand(root *string) *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new tally data directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := *root
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd, absDir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "your name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&opts.userID, "user-id", "", "user ID for the remote store (generated when empty)")
	cmd.Flags().StringVar(&opts.remote, "remote", config.RemoteNone, "remote store: none, sqlite or bigquery")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "remote.db", "sqlite database path, relative to the directory")
	cmd.Flags().BoolVar(&opts.noDefaults, "no-defaults", false, "do not create the starter accounts (use before sync pull on a new device)")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, opts initOptions) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", cfgPath, err)
	}

	userID := opts.userID
	if userID == "" {
		userID = id.New(id.PrefixUser)
	}
	cfg := config.Default(userID, opts.name)
	cfg.Remote.Backend = opts.remote
	if opts.remote == config.RemoteSQLite {
		cfg.Remote.DSN = opts.dsn
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	for _, d := range []string{cfg.Storage.Dir, "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	log := logger.New(cfg.Log.Level)
	a, err := app.Open(cmd.Context(), dir, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if !opts.noDefaults {
		for _, acct := range accounts.DefaultAccounts() {
			if _, err := a.AddAccount(cmd.Context(), acct); err != nil {
				return fmt.Errorf("creating account %s: %w", acct.Name, err)
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized tally data directory at %s (user %s)\n", dir, userID)
	return nil
}
