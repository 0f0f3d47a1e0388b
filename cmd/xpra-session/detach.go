package main

import (
	"github.com/spf13/cobra"
)

// newDetachCmd evicts one attached client from a running session without
// stopping it, identified by the UUID `list-clients` reports.
func newDetachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach <display> <client-uuid>",
		Short: "Detach one client from a running session",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			display := defaultDisplay(args[0])
			resp, err := sendControlRequest(display, controlRequest{Command: "detach", Arg: args[1]})
			if err != nil {
				Fatal(cmd, err.Error(), 20)
			}
			if !resp.OK {
				Fatal(cmd, resp.Error, 1)
			}
		},
	}
}
