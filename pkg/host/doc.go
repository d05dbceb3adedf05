// Package host provides the scripting context a bootstrap runs in.
//
// A Script bundles the current program, the script state holding the plugin
// tool, and the console user-facing messages are printed to. Either handle
// may be absent; callers check before use.
//
// # Usage Example
//
//	script := host.NewScript(
//		host.WithProgram(prog),
//		host.WithTool(tool),
//		host.WithConsole(host.NewWriterConsole(os.Stdout, logger)),
//	)
//	if script.CurrentProgram() == nil {
//		script.Console().Println("No program loaded!")
//	}
package host
