package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/pusher-go/pkg/auth"
	"github.com/spf13/cobra"
)

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var (
		authServer string
		userID     string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a bearer token from pusher-authd",
		Long: `Log in to a pusher-authd server. The token it returns is passed to
'listen --auth-token' so private and presence channels can be authorized.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = uuid.NewString()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logging in to %s as %s...\n", authServer, userID)

			resp, err := auth.RequestToken(ctx, authServer, userID)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "✅ Login successful! Token expires %s\n", resp.ExpiresAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Token: %s\n", resp.Token)
			fmt.Fprintf(out, "\nUse it to authorize private channels:\n")
			fmt.Fprintf(out, "  export PUSHER_AUTH_TOKEN=\"%s\"\n", resp.Token)
			fmt.Fprintf(out, "  pusher-cli listen --channel private-demo --event message --auth-token \"$PUSHER_AUTH_TOKEN\"\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&authServer, "auth-server", "http://localhost:8082", "pusher-authd base URL")
	cmd.Flags().StringVar(&userID, "user-id", "", "User id to log in as (default: random)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	return cmd
}
