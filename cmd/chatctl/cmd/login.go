package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login <email> <password>",
	Short: "Exchanges credentials for a token.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		res, err := newREST().Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "export CHATCTL_TOKEN=%s\nexport CHATCTL_USER_ID=%d\n", res.Token, res.User.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
