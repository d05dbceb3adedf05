package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/toolhost/pkg/mcp"
	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, mcp.PluginID, cfg.Host.PluginID)
	assert.Equal(t, "toolhost", cfg.Host.ToolName)
	assert.Empty(t, cfg.Host.ProgramPath)
	assert.Equal(t, mcp.DefaultAddr, cfg.MCP.Addr)
	assert.Equal(t, mcp.DefaultReadTimeout, cfg.MCP.ReadTimeout)
	assert.Equal(t, "@every 1m", cfg.KeepAlive.Heartbeat)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive.ShutdownTimeout)
	assert.Equal(t, observability.InfoLevel, cfg.LogLevel())
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.OTel().Enabled)
	assert.Equal(t, cfg.Host.ToolName, cfg.OTel().ToolName)
	assert.Equal(t, mcp.PluginID, cfg.OTel().PluginID)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("TOOLHOST_MCP_ADDR", "0.0.0.0:9999")
	t.Setenv("TOOLHOST_MCP_READ_TIMEOUT", "2s")
	t.Setenv("TOOLHOST_MCP_ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("TOOLHOST_HOST_PROGRAM", "/bin/true")
	t.Setenv("TOOLHOST_OBSERVABILITY_LOG_LEVEL", "debug")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9999", cfg.MCP.Addr)
	assert.Equal(t, 2*time.Second, cfg.MCP.ReadTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.MCP.AllowedOrigins)
	assert.Equal(t, "/bin/true", cfg.Host.ProgramPath)
	assert.Equal(t, observability.DebugLevel, cfg.LogLevel())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolhost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host:
  program: ./sample.bin
  plugin: custom.Plugin
mcp:
  addr: 127.0.0.1:7000
  allowed_origins:
    - http://localhost:6274
keepalive:
  heartbeat: ""
`), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "./sample.bin", cfg.Host.ProgramPath)
	assert.Equal(t, "custom.Plugin", cfg.Host.PluginID)
	assert.Equal(t, "127.0.0.1:7000", cfg.MCP.Addr)
	assert.Equal(t, []string{"http://localhost:6274"}, cfg.MCP.AllowedOrigins)
	assert.Empty(t, cfg.KeepAlive.Heartbeat)
	assert.Equal(t, mcp.DefaultWriteTimeout, cfg.MCP.WriteTimeout, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolhost.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mcp:\n  addr: 127.0.0.1:7000\n"), 0o644))
	t.Setenv("TOOLHOST_MCP_ADDR", "127.0.0.1:7001")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", cfg.MCP.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(New(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty plugin", func(c *Config) { c.Host.PluginID = " " }, "host.plugin is required"},
		{"empty addr", func(c *Config) { c.MCP.Addr = "" }, "mcp.addr is required"},
		{"addr without port", func(c *Config) { c.MCP.Addr = "localhost" }, "mcp.addr"},
		{"zero read timeout", func(c *Config) { c.MCP.ReadTimeout = 0 }, "mcp.read_timeout"},
		{"negative write timeout", func(c *Config) { c.MCP.WriteTimeout = -time.Second }, "mcp.write_timeout"},
		{"zero shutdown timeout", func(c *Config) { c.KeepAlive.ShutdownTimeout = 0 }, "keepalive.shutdown_timeout"},
		{"negative rate limit", func(c *Config) { c.MCP.RateLimit = -1 }, "mcp.rate_limit"},
		{"rate limit disabled", func(c *Config) { c.MCP.RateLimit = 0 }, ""},
		{"bad heartbeat", func(c *Config) { c.KeepAlive.Heartbeat = "every minute" }, "keepalive.heartbeat"},
		{"disabled heartbeat", func(c *Config) { c.KeepAlive.Heartbeat = "" }, ""},
		{"cron heartbeat", func(c *Config) { c.KeepAlive.Heartbeat = "*/5 * * * *" }, ""},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "OpenTelemetry endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.GreaterOrEqual(t, strings.Count(err.Error(), "\n"), 3)
}

func TestToolOptions(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	cfg.MCP.AllowedOrigins = []string{"http://a", "http://b"}

	opts := cfg.ToolOptions()
	assert.Equal(t, mcp.DefaultAddr, opts[mcp.OptionAddr])
	assert.Equal(t, "http://a,http://b", opts[mcp.OptionAllowedOrigins])
	assert.Equal(t, "600", opts[mcp.OptionRateLimit])
	assert.Equal(t, "false", opts[mcp.OptionStateless])

	d, err := time.ParseDuration(opts[mcp.OptionReadTimeout])
	require.NoError(t, err)
	assert.Equal(t, mcp.DefaultReadTimeout, d)
}
