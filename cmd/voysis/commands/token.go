package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voysis/go/pkg/cli"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Session token management",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Exchange the context's refresh token for a session token",
	Long: `Issue a session token with the context's refresh token.

The token is masked unless --json is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		sess, err := newSession(c)
		if err != nil {
			return err
		}
		defer sess.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		tok, err := sess.IssueAppToken(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return outputResult(tok)
		}
		status.Success("Token issued")
		status.Field("Token", cli.MaskSecret(tok.Token))
		status.Field("Expires", tok.Expiry().Local().Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenIssueCmd)
}
