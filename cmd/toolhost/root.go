package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/toolhost/pkg/bootstrap"
	"github.com/spf13/cobra"
)

// Exit codes
const (
	exitOK           = 0
	exitFailure      = 1
	exitPrecondition = 2
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

// newRootCmd builds the command tree. Each call returns an independent tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "toolhost",
		Short: "Headless plugin host",
		Long: `toolhost opens a program, creates a plugin tool and loads a plugin
into it by identifier, then stays alive until it is stopped. The default
plugin is an MCP server that exposes the program to MCP clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newStartCmd(),
		newPluginsCmd(),
		newInspectCmd(),
		newVersionCmd(),
	)

	return root
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	root := newRootCmd()
	err := root.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps a command error to the process exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, bootstrap.ErrNoProgram), errors.Is(err, bootstrap.ErrNoTool):
		return exitPrecondition
	default:
		return exitFailure
	}
}
