package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/toolhost/pkg/mcp"
	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TOOLHOST_MCP_ADDR
const EnvPrefix = "TOOLHOST"

// Config holds all application configuration
type Config struct {
	Host          HostConfig          `mapstructure:"host"`
	MCP           MCPConfig           `mapstructure:"mcp"`
	KeepAlive     KeepAliveConfig     `mapstructure:"keepalive"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// HostConfig selects what the host loads
type HostConfig struct {
	ProgramPath  string `mapstructure:"program"`
	ToolName     string `mapstructure:"tool_name"`
	PluginID     string `mapstructure:"plugin"`
	WatchProgram bool   `mapstructure:"watch_program"`
}

// MCPConfig holds MCP server plugin settings
type MCPConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"` // requests per minute, 0 disables
	Stateless       bool          `mapstructure:"stateless"`
}

// KeepAliveConfig controls the idle phase after bootstrap
type KeepAliveConfig struct {
	// Heartbeat is a cron spec for the debug heartbeat; empty disables it
	Heartbeat       string        `mapstructure:"heartbeat"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `mapstructure:"log_level"`

	// Metrics
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `mapstructure:"otel_enabled"`
	OTelEndpoint       string `mapstructure:"otel_endpoint"`
	OTelServiceName    string `mapstructure:"otel_service_name"`
	OTelServiceVersion string `mapstructure:"otel_service_version"`
	OTelInsecure       bool   `mapstructure:"otel_insecure"` // Use insecure gRPC connection
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host.program", "")
	v.SetDefault("host.tool_name", "toolhost")
	v.SetDefault("host.plugin", mcp.PluginID)
	v.SetDefault("host.watch_program", false)

	v.SetDefault("mcp.addr", mcp.DefaultAddr)
	v.SetDefault("mcp.allowed_origins", []string{})
	v.SetDefault("mcp.read_timeout", mcp.DefaultReadTimeout)
	v.SetDefault("mcp.write_timeout", mcp.DefaultWriteTimeout)
	v.SetDefault("mcp.shutdown_timeout", mcp.DefaultShutdownTimeout)
	v.SetDefault("mcp.rate_limit", mcp.DefaultRateLimit)
	v.SetDefault("mcp.stateless", false)

	v.SetDefault("keepalive.heartbeat", "@every 1m")
	v.SetDefault("keepalive.shutdown_timeout", 30*time.Second)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.otel_enabled", false)
	v.SetDefault("observability.otel_endpoint", "localhost:4317")
	v.SetDefault("observability.otel_service_name", "toolhost")
	v.SetDefault("observability.otel_service_version", mcp.Version)
	v.SetDefault("observability.otel_insecure", true)
}

// New returns a viper instance with defaults and TOOLHOST_* environment
// overrides
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file into v, then decodes and validates.
// Precedence, highest first: flags bound to v, environment, file, defaults.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Host.PluginID) == "" {
		errs = append(errs, errors.New("host.plugin is required"))
	}

	if c.MCP.Addr == "" {
		errs = append(errs, errors.New("mcp.addr is required"))
	} else if _, _, err := net.SplitHostPort(c.MCP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("mcp.addr %q is invalid: %w", c.MCP.Addr, err))
	}
	if c.MCP.ReadTimeout <= 0 {
		errs = append(errs, errors.New("mcp.read_timeout must be positive"))
	}
	if c.MCP.WriteTimeout <= 0 {
		errs = append(errs, errors.New("mcp.write_timeout must be positive"))
	}
	if c.MCP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("mcp.shutdown_timeout must be positive"))
	}
	if c.MCP.RateLimit < 0 {
		errs = append(errs, errors.New("mcp.rate_limit must not be negative"))
	}

	if c.KeepAlive.Heartbeat != "" {
		if _, err := cron.ParseStandard(c.KeepAlive.Heartbeat); err != nil {
			errs = append(errs, fmt.Errorf("keepalive.heartbeat %q is invalid: %w", c.KeepAlive.Heartbeat, err))
		}
	}
	if c.KeepAlive.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("keepalive.shutdown_timeout must be positive"))
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			errs = append(errs, errors.New("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if c.Observability.OTelServiceName == "" {
			errs = append(errs, errors.New("OpenTelemetry service name is required when OTel is enabled"))
		}
	}

	return errors.Join(errs...)
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.Observability.LogLevel)
}

// OTel returns the OpenTelemetry settings
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		ToolName:       c.Host.ToolName,
		PluginID:       c.Host.PluginID,
	}
}

// ToolOptions flattens plugin settings into the string options plugins read
// from the tool
func (c *Config) ToolOptions() map[string]string {
	return map[string]string{
		mcp.OptionAddr:            c.MCP.Addr,
		mcp.OptionAllowedOrigins:  strings.Join(c.MCP.AllowedOrigins, ","),
		mcp.OptionReadTimeout:     c.MCP.ReadTimeout.String(),
		mcp.OptionWriteTimeout:    c.MCP.WriteTimeout.String(),
		mcp.OptionShutdownTimeout: c.MCP.ShutdownTimeout.String(),
		mcp.OptionRateLimit:       strconv.Itoa(c.MCP.RateLimit),
		mcp.OptionStateless:       strconv.FormatBool(c.MCP.Stateless),
	}
}
