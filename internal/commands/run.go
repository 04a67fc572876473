package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyfi/tally/internal/app"
	"github.com/tallyfi/tally/internal/config"
	"github.com/tallyfi/tally/internal/logger"
)

func newRunCommand(dir *string) *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Record due occurrences now and then on a schedule until interrupted",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, cfg *config.Config, _ []string) error {
		if !cmd.Flags().Changed("every") {
			every = cfg.Recurring.MaterializeEvery
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logger.FromContext(ctx)
		log.Info().Dur("every", every).Msg("starting materialize loop")
		return a.Run(ctx, every)
	})
	cmd.Flags().DurationVar(&every, "every", 24*time.Hour, "interval between runs (default from config)")
	return cmd
}
