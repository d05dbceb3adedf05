// Package bootstrap loads a single plugin into the host tool and keeps the
// process alive afterwards.
//
// # Overview
//
// A run walks a fixed sequence of stages:
//
//	check_program -> check_tool -> load_plugin -> keep_alive
//
// A missing program or tool prints a message on the script console and ends
// the run with ErrNoProgram or ErrNoTool. A failed plugin load prints the
// failure and a stack trace, then the run continues into keep-alive like a
// successful one. Keep-alive waits on the context; cancelling it is the only
// way a run that got that far returns.
//
// Plugins are resolved by identifier from the factory catalog in
// pkg/plugins, so loading a plugin means its package must be linked into the
// binary, usually with a blank import.
//
// # Usage Example
//
//	b := bootstrap.New("toolhost.mcp.ServerPlugin",
//		bootstrap.WithLogger(logger),
//		bootstrap.WithMetrics(metrics),
//	)
//	outcome, err := b.Run(ctx, script)
//	if errors.Is(err, bootstrap.ErrNoProgram) {
//		os.Exit(2)
//	}
//	if outcome.LoadErr != nil {
//		logger.WithError(outcome.LoadErr).Warn("host ran without its plugin")
//	}
package bootstrap
