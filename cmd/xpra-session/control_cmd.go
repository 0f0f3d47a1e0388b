package main

import (
	"github.com/spf13/cobra"
)

// newControlCmd implements §7's "control <cmd> — runtime parameter
// change (speed, quality, encoding, refresh, share policy)".
func newControlCmd() *cobra.Command {
	var display string
	cmd := &cobra.Command{
		Use:   "control <cmd> <value>",
		Short: "Send a runtime control command to a session (speed, quality, encoding, refresh, share-policy)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			target := defaultDisplay(display)
			resp, err := sendControlRequest(target, controlRequest{Command: "control", Arg: args[0], Value: args[1]})
			if err != nil {
				Fatal(cmd, err.Error(), 20)
			}
			if !resp.OK {
				Fatal(cmd, resp.Error, 30)
			}
		},
	}
	cmd.Flags().StringVar(&display, "display", "", "display to control (defaults to $DISPLAY or :100)")
	return cmd
}
