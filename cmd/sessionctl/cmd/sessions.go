package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsUser string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List a user's valid sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionsUser == "" {
			return errors.New("--user is required")
		}
		return withEnv(cmd, func(e *env) error {
			list, err := e.authority.ListActive(cmd.Context(), sessionsUser)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no valid sessions")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tEXPIRES\tIP\tDEVICE")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					s.CreatedAt.UTC().Format(time.RFC3339),
					s.ExpiresAt.UTC().Format(time.RFC3339),
					s.IPAddress, s.DeviceInfo)
			}
			return tw.Flush()
		})
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsUser, "user", "", "user id")
	rootCmd.AddCommand(sessionsCmd)
}
