package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tallyfi/tally/internal/app"
	"github.com/tallyfi/tally/internal/config"
)

func newSyncCommand(dir *string) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Local and remote store synchronization",
	}
	syncCmd.AddCommand(
		newSyncPushCommand(dir),
		newSyncPullCommand(dir),
		newSyncStatusCommand(dir),
	)
	return syncCmd
}

func newSyncPushCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Write everything locally and replace this user's remote rows",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, cfg *config.Config, _ []string) error {
		if err := a.Push(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pushed (remote: %s)\n", cfg.Remote.Backend)
		return nil
	})
	return cmd
}

func newSyncPullCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Replace local state with this user's remote rows",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, _ []string) error {
		if err := persisted(cmd, a.Pull(cmd.Context())); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pulled %d transaction(s), %d rule(s)\n", len(a.Transactions()), len(a.Rules()))
		return nil
	})
	return cmd
}

func newSyncStatusCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show writes awaiting retry and any balance drift",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, cfg *config.Config, _ []string) error {
		st := a.Status()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headingStyle.Render("Sync status for "+cfg.User.ID))
		fmt.Fprintf(out, "local pending:  %s\n", listOrNone(st.PendingLocal))
		if st.HasRemote {
			fmt.Fprintf(out, "remote pending: %s\n", listOrNone(st.PendingRemote))
		} else {
			fmt.Fprintln(out, "remote:         "+mutedStyle.Render("not configured"))
		}
		if len(st.Drift) == 0 {
			fmt.Fprintln(out, "balances:       consistent")
			return nil
		}
		for _, d := range st.Drift {
			fmt.Fprintf(out, "%s %s: %s vs %s\n", warnStyle.Render("drift"), d.AccountName, d.Incremental, d.Recomputed)
		}
		return nil
	})
	return cmd
}

func listOrNone(keys []string) string {
	if len(keys) == 0 {
		return "none"
	}
	return warnStyle.Render(strings.Join(keys, ", "))
}
