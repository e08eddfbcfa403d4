package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd(env *environment) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete stored objects that never got a metadata row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			sweeper, closeFn, err := env.openSweeper(cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn() //nolint:errcheck

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			deleted, err := sweeper.SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("orphan sweep failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d orphaned objects\n", deleted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Maximum time to spend sweeping")

	return cmd
}
