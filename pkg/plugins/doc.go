// Package plugins provides the plugin tool and the factory catalog plugins are built from.
//
// # Overview
//
// A Tool is the host's plugin-management object. It owns the plugins that
// have been added to it, the program they operate on and a set of string
// options. Plugins are not discovered by reflection: each implementation
// registers a Factory under a stable identifier, and the host resolves the
// identifier it was configured with at startup.
//
// # Plugin System
//
// Plugin Interface: Base interface all plugins implement (Manifest, Load, Unload)
// Factory catalog: package-level map from identifier to constructor
// Tool: per-host registry that validates manifests and calls Load on add
// Manifest: YAML metadata validated with semantic versioning
//
// # Usage Example
//
// Register a factory:
//
//	func init() {
//		plugins.MustRegisterFactory("example.EchoPlugin", func(tool *plugins.Tool) (plugins.Plugin, error) {
//			return newEchoPlugin(tool), nil
//		})
//	}
//
// Build and add a plugin:
//
//	tool := plugins.NewTool("headless", logrus.New())
//	factory, err := plugins.ResolveFactory("example.EchoPlugin")
//	if err != nil {
//		log.Fatal(err)
//	}
//	plugin, err := factory(tool)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := tool.AddPlugin(plugin); err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/bootstrap: resolves, constructs and adds the configured plugin
//   - pkg/mcp: the MCP server plugin
package plugins
