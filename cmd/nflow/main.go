// Package main implements the nflow CLI.
// It checks Kotlin sources for unsafe uses of nullable values and prints
// the control flow graphs and facts behind each finding.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/l3aro/go-nullflow/cmd/nflow/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`nflow version {{.Version}}
`)
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version += " (built " + buildTime + ")"
	}

	if err := commands.Execute(); err != nil {
		if errors.Is(err, commands.ErrFindings) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
