package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [display]",
		Short: "Print live session info (encodings, connected clients, uptime)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			display := defaultDisplay(firstArg(args))
			resp, err := sendControlRequest(display, controlRequest{Command: "info"})
			if err != nil {
				Fatal(cmd, err.Error(), 20)
			}
			if !resp.OK {
				Fatal(cmd, resp.Error, 1)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(resp.Payload))
		},
	}
}

func newListClientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-clients [display]",
		Short: "List the UUIDs of clients attached to a session",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			display := defaultDisplay(firstArg(args))
			resp, err := sendControlRequest(display, controlRequest{Command: "list-clients"})
			if err != nil {
				Fatal(cmd, err.Error(), 20)
			}
			if !resp.OK {
				Fatal(cmd, resp.Error, 1)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(resp.Payload))
		},
	}
}
