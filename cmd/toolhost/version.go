package main

import (
	"fmt"

	"github.com/platinummonkey/toolhost/pkg/mcp"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of toolhost",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "toolhost version %s (mcp server %s, protocol %s)\n",
				version, mcp.Version, mcp.ProtocolVersion)
		},
	}
}
