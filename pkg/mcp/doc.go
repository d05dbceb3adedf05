// Package mcp implements the MCP server plugin: a Model Context Protocol
// endpoint that exposes the host's loaded program to MCP clients.
//
// # Overview
//
// The plugin registers itself in the factory catalog under PluginID. When the
// host adds it to a tool, Load binds the listener and serves in the
// background; Unload shuts the server down.
//
// The protocol is served by mcp-go's streamable HTTP transport, mounted on a
// gorilla/mux router behind CORS, tracing, logging and rate limiting.
//
// # Endpoints
//
//	POST   /mcp           JSON-RPC 2.0 (initialize, ping, tools/list, tools/call);
//	                      requests after initialize carry Mcp-Session-Id
//	DELETE /mcp           end the session named by Mcp-Session-Id
//	GET    /health/live   liveness
//	GET    /health/ready  readiness (unhealthy until a plugin is registered)
//	GET    /metrics       Prometheus metrics
//
// # Tools
//
//	get_program_info  name, format, architecture, size and hash
//	list_sections     sections of ELF, PE and Mach-O images
//	list_strings      printable strings, paged with offset and limit
//	read_bytes        hex dump of a byte range
//	list_plugins      plugins registered with the tool
//	hello             greeting
//
// # Options
//
// Settings are read from the tool options: mcp.addr, mcp.allowed_origins,
// mcp.read_timeout, mcp.write_timeout, mcp.shutdown_timeout and
// mcp.rate_limit.
//
// # Usage Example
//
// Binaries that only resolve plugins by identifier link the package with a
// blank import. Direct use:
//
//	tool.Options().Set(mcp.OptionAddr, "127.0.0.1:8089")
//	factory, _ := plugins.ResolveFactory(mcp.PluginID)
//	plugin, _ := factory(tool)
//	err := tool.AddPlugin(plugin)
package mcp
