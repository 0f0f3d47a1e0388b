package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version reports the build's vcs.revision from Go's embedded build
// info, falling back to "<unknown>" for a binary built without module
// information (e.g. `go run`).
func Version() string {
	version := "<unknown>"
	info, ok := debug.ReadBuildInfo()
	if ok {
		for _, kv := range info.Settings {
			if kv.Value == "" {
				continue
			}
			if kv.Key == "vcs.revision" {
				version = kv.Value
			}
		}
	}
	return version
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version())
		},
	}
}
