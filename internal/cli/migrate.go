package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if err := env.migrate(cfg, logger); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
