package main

import (
	"fmt"

	"github.com/rmacdonaldsmith/pusher-go/pkg/client"
	"github.com/spf13/cobra"
)

func newURLCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the broker connection URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireConfig(); err != nil {
				return err
			}
			url := client.BuildURL(opts.cfg.App.Key, opts.cfg.ClientOptions(opts.logger))
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
