package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var Fatal = FatalErrorHandler

func getCommandLineExecutable() string {
	return os.Args[0]
}

// FatalErrorHandler prints msg (if non-empty) and exits with code,
// matching the exit-code ranges of §6: 0 success, 1 generic error, 2
// usage, 10-19 authentication, 20-29 network, 30-39 protocol.
func FatalErrorHandler(cmd *cobra.Command, msg string, code int) {
	if len(msg) > 0 {
		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
		cmd.PrintErr(msg)
	}
	os.Exit(code)
}

// NewRootCmd assembles the full command tree (§6's externally visible
// commands).
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   getCommandLineExecutable(),
		Short: "xpra-session",
		Long:  "Remote display forwarding session core",
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newStartDesktopCmd())
	root.AddCommand(newShadowCmd())
	root.AddCommand(newAttachCmd())
	root.AddCommand(newDetachCmd())
	root.AddCommand(newUpgradeCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newListSessionsCmd())
	root.AddCommand(newListClientsCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newControlCmd())

	return root
}

// Execute runs the root command, translating a returned error into the
// generic-error exit code (specific subcommands exit with a narrower
// code themselves via Fatal before returning).
func Execute() {
	root := NewRootCmd()
	root.SetContext(context.Background())
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	if err := root.Execute(); err != nil {
		Fatal(root, err.Error(), 1)
	}
}
