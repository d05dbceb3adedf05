package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/platinummonkey/toolhost/pkg/plugins"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List plugin identifiers in the factory catalog",
		Example: `  toolhost plugins
  toolhost plugins manifest toolhost.mcp.ServerPlugin --out mcp.yaml
  toolhost plugins validate mcp.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids := plugins.FactoryIDs()
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No plugins registered.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			if _, err := fmt.Fprintln(w, "IDENTIFIER"); err != nil {
				return fmt.Errorf("failed to write header: %w", err)
			}
			for _, id := range ids {
				if _, err := fmt.Fprintln(w, id); err != nil {
					return fmt.Errorf("failed to write plugin: %w", err)
				}
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(newPluginManifestCmd(), newPluginValidateCmd())
	return cmd
}

func newPluginManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest <identifier>",
		Short: "Write the manifest of a catalog plugin as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}

			factory, err := plugins.ResolveFactory(args[0])
			if err != nil {
				return err
			}
			// Constructing a plugin does not start it
			log := logrus.New()
			log.SetOutput(io.Discard)
			plugin, err := factory(plugins.NewTool("manifest", log))
			if err != nil {
				return fmt.Errorf("failed to construct %s: %w", args[0], err)
			}

			if err := plugins.SaveManifest(plugin.Manifest(), out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s manifest to %s\n", args[0], out)
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "plugin.yaml", "file to write the manifest to")
	return cmd
}

func newPluginValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest.yaml>",
		Short: "Check that a plugin manifest can be registered with the tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := plugins.LoadManifest(args[0])
			if err != nil {
				return err
			}

			var problems []string
			for _, ve := range plugins.ValidateManifest(manifest) {
				problems = append(problems, ve.Error())
			}
			if manifest.APIVersion != "" && !plugins.IsCompatibleAPIVersion(manifest.APIVersion, plugins.CurrentAPIVersion) {
				problems = append(problems, fmt.Sprintf("api_version %s is not compatible with %s", manifest.APIVersion, plugins.CurrentAPIVersion))
			}
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
				}
				return errors.New("manifest is invalid: " + strings.Join(problems, "; "))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s is valid\n", manifest.ID, manifest.Version)
			return nil
		},
	}
}
