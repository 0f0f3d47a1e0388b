package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newUpgradeCmd implements §4.8's in-place upgrade: the running session
// writes its window set and client reconnection state to a rendezvous
// file and exits leaving its sockets' directory intact, so a
// subsequently started `start` on the same display picks the state back
// up and existing clients rebind via the ordinary reconnect path.
func newUpgradeCmd() *cobra.Command {
	var rendezvousName string
	cmd := &cobra.Command{
		Use:   "upgrade [display]",
		Short: "Hand a running session off to a freshly started replacement",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			display := defaultDisplay(firstArg(args))
			resp, err := sendControlRequest(display, controlRequest{Command: "upgrade", Arg: rendezvousName})
			if err != nil {
				Fatal(cmd, err.Error(), 20)
			}
			if !resp.OK {
				Fatal(cmd, resp.Error, 1)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session on %s saved state and is shutting down; run `start %s` to resume it\n", display, display)
		},
	}
	cmd.Flags().StringVar(&rendezvousName, "rendezvous-file", "", "hand-off file name within the session directory (default xpra-upgrade.state)")
	return cmd
}
