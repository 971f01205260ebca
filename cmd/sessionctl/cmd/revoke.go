package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	revokeToken string
	revokeUser  string
)

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke the session recorded for a credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if revokeToken == "" {
			return errors.New("--token is required")
		}
		return withEnv(cmd, func(e *env) error {
			ok, err := e.authority.Revoke(cmd.Context(), revokeToken)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "session revoked")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no session found for token")
			}
			return nil
		})
	},
}

var revokeAllCmd = &cobra.Command{
	Use:   "revoke-all",
	Short: "Revoke every valid session of a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if revokeUser == "" {
			return errors.New("--user is required")
		}
		return withEnv(cmd, func(e *env) error {
			n, err := e.authority.RevokeAll(cmd.Context(), revokeUser)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d session(s)\n", n)
			return nil
		})
	},
}

func init() {
	revokeCmd.Flags().StringVar(&revokeToken, "token", "", "credential to revoke")
	revokeAllCmd.Flags().StringVar(&revokeUser, "user", "", "user id")
	rootCmd.AddCommand(revokeCmd, revokeAllCmd)
}
