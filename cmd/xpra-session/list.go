package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List running sessions on this host",
		Run:   runListSessions,
	}
}

func newListSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-sessions",
		Short: "Alias for list",
		Run:   runListSessions,
	}
}

func runListSessions(cmd *cobra.Command, args []string) {
	sessions, err := listDisplays()
	if err != nil {
		Fatal(cmd, err.Error(), 1)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no running sessions")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tpid=%d\tsocket=%s\tstarted=%s\n", s.Display, s.PID, s.Socket, s.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
}
