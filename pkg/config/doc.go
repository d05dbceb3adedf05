// Package config provides application configuration management backed by viper.
//
// # Overview
//
// Configuration comes from, in increasing precedence: built-in defaults, an
// optional YAML file, TOOLHOST_* environment variables and command-line flags
// bound to the same viper instance.
//
// # Configuration Structure
//
//	host:
//	  program: ./a.out            # TOOLHOST_HOST_PROGRAM
//	  tool_name: toolhost
//	  plugin: toolhost.mcp.ServerPlugin
//	  watch_program: false
//	mcp:
//	  addr: 127.0.0.1:8089        # TOOLHOST_MCP_ADDR
//	  allowed_origins: []         # TOOLHOST_MCP_ALLOWED_ORIGINS="a,b"
//	  read_timeout: 15s
//	  write_timeout: 30s
//	  shutdown_timeout: 10s
//	keepalive:
//	  heartbeat: "@every 1m"      # empty disables the heartbeat
//	  shutdown_timeout: 30s
//	observability:
//	  log_level: info
//	  metrics_enabled: true
//	  otel_enabled: false
//	  otel_endpoint: localhost:4317
//
// # Usage Example
//
//	v := config.New()
//	_ = v.BindPFlag("host.program", cmd.Flags().Lookup("program"))
//	cfg, err := config.Load(v, configFile)
//	if err != nil {
//		return err
//	}
//	tool := plugins.NewTool(cfg.Host.ToolName, log)
//	for k, val := range cfg.ToolOptions() {
//		tool.Options().Set(k, val)
//	}
//
// # Related Packages
//
//   - pkg/observability: Log levels and OTel settings
//   - pkg/mcp: Option keys and defaults
package config
