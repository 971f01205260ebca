package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kriptoproyek/backend/internal/session/sweeper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete every expired session record once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(e *env) error {
			sw := sweeper.New(e.store, sweeper.Config{StoreTimeout: storeTimeout(e), Logger: e.log})
			n, err := sw.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired session(s)\n", n)
			return nil
		})
	},
}

// storeTimeout returns the configured store timeout, or zero to use the sweeper default.
func storeTimeout(e *env) time.Duration {
	if e.cfg == nil {
		return 0
	}
	return e.cfg.StoreCallTimeout()
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
