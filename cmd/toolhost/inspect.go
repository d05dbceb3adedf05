package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/platinummonkey/toolhost/pkg/program"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <program>",
		Short: "Print what the host sees in a program",
		Example: `  toolhost inspect ./a.out
  toolhost inspect ./a.out --strings 8`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}
	cmd.Flags().Int("strings", 0, "also list printable strings of at least this length")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	prog, err := program.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open program: %w", err)
	}
	minLen, err := cmd.Flags().GetInt("strings")
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", prog.Name)
	fmt.Fprintf(w, "Path:\t%s\n", prog.Path)
	fmt.Fprintf(w, "Format:\t%s\n", prog.Format)
	fmt.Fprintf(w, "Arch:\t%s\n", prog.Arch)
	fmt.Fprintf(w, "Size:\t%d\n", prog.Size)
	fmt.Fprintf(w, "SHA256:\t%s\n", prog.SHA256)
	if err := w.Flush(); err != nil {
		return err
	}

	if sections := prog.Sections(); len(sections) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SECTION\tOFFSET\tSIZE\tADDR")
		for _, s := range sections {
			fmt.Fprintf(w, "%s\t%#x\t%d\t%#x\n", s.Name, s.Offset, s.Size, s.Addr)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if minLen > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "OFFSET\tSTRING")
		for _, s := range prog.Strings(minLen) {
			fmt.Fprintf(w, "%#x\t%s\n", s.Offset, s.Value)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	return nil
}
