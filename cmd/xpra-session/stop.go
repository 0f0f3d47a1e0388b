package main

import (
	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [display]",
		Short: "Stop a running session, disconnecting all clients",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			display := defaultDisplay(firstArg(args))
			resp, err := sendControlRequest(display, controlRequest{Command: "stop"})
			if err != nil {
				Fatal(cmd, err.Error(), 20)
			}
			if !resp.OK {
				Fatal(cmd, resp.Error, 1)
			}
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
