package main

import (
	"fmt"

	"github.com/rmacdonaldsmith/pusher-go/pkg/client"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "pusher-cli %s (client=%s protocol=%d)\n", client.Version, client.ClientName, client.Protocol)
			return nil
		},
	}
}
