package main

import (
	"context"
	"fmt"
	"io"

	"github.com/platinummonkey/toolhost/pkg/bootstrap"
	"github.com/platinummonkey/toolhost/pkg/config"
	"github.com/platinummonkey/toolhost/pkg/host"
	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/platinummonkey/toolhost/pkg/plugins"
	"github.com/platinummonkey/toolhost/pkg/program"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagBindings maps command-line flags to configuration keys
var flagBindings = map[string]string{
	"program":       "host.program",
	"plugin":        "host.plugin",
	"tool-name":     "host.tool_name",
	"watch-program": "host.watch_program",
	"mcp-addr":      "mcp.addr",
	"heartbeat":     "keepalive.heartbeat",
	"log-level":     "observability.log_level",
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Load the plugin and keep the host alive",
		Long: `Open the program, create the plugin tool, load the configured plugin
into it and block until SIGINT or SIGTERM.

A missing program or tool is reported on the console and exits with code 2.
A plugin that fails to load is reported with its stack trace; the host still
stays alive.`,
		Example: `  toolhost start --program ./a.out
  toolhost start --program ./a.out --mcp-addr 127.0.0.1:9000
  TOOLHOST_HOST_PLUGIN=toolhost.mcp.ServerPlugin toolhost start --config toolhost.yaml`,
		Args: cobra.NoArgs,
		RunE: runStart,
	}

	cmd.Flags().String("program", "", "path of the program to load")
	cmd.Flags().String("plugin", "", "identifier of the plugin to load")
	cmd.Flags().String("tool-name", "", "name of the plugin tool")
	cmd.Flags().Bool("watch-program", false, "log when the program file changes on disk")
	cmd.Flags().String("mcp-addr", "", "listen address of the MCP server")
	cmd.Flags().String("heartbeat", "", "keep-alive heartbeat cron spec")

	return cmd
}

// loadConfig binds the command's flags over environment and file settings
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	if err := bindFlags(cmd, v); err != nil {
		return nil, err
	}

	file, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(v, file)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagBindings {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel(), cmd.ErrOrStderr())

	sm := observability.NewShutdownManager(logger, cfg.KeepAlive.ShutdownTimeout)
	ctx, stop := sm.NotifyContext(cmd.Context())
	defer stop()

	providers, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	sm.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	prog := openProgram(cfg.Host.ProgramPath, logger)

	tool := plugins.NewTool(cfg.Host.ToolName, newToolLogger(cfg.Observability.LogLevel, cmd.ErrOrStderr()))
	for key, value := range cfg.ToolOptions() {
		tool.Options().Set(key, value)
	}
	tool.SetMetrics(metrics)
	sm.Register("tool", func(context.Context) error {
		return tool.Dispose()
	})

	script := host.NewScript(
		host.WithProgram(prog),
		host.WithTool(tool),
		host.WithConsole(host.NewWriterConsole(cmd.OutOrStdout(), logger)),
	)

	opts := []bootstrap.Option{
		bootstrap.WithLogger(logger),
		bootstrap.WithMetrics(metrics),
		bootstrap.WithHeartbeat(cfg.KeepAlive.Heartbeat),
	}
	if cfg.Host.WatchProgram && prog != nil {
		opts = append(opts, bootstrap.WithBackground("program-watch", watchProgram(prog, logger, metrics)))
	}

	outcome, runErr := bootstrap.New(cfg.Host.PluginID, opts...).Run(ctx, script)

	// Signal handling is released before cleanup so a second signal kills
	// the process
	stop()
	if err := sm.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Warn("Shutdown completed with errors")
	}

	if outcome != nil {
		logger.WithField("session_id", outcome.SessionID).
			WithField("result", outcome.Result()).
			Info("Host stopped")
	}
	return runErr
}

// openProgram returns nil when path is empty or unreadable; the bootstrap
// reports the missing program
func openProgram(path string, logger *observability.Logger) *program.Program {
	if path == "" {
		return nil
	}
	prog, err := program.Open(path)
	if err != nil {
		logger.WithError(err).WithField("path", path).Error("Failed to open program")
		return nil
	}
	return prog
}

func watchProgram(prog *program.Program, logger *observability.Logger, metrics *observability.Metrics) func(context.Context) error {
	return func(ctx context.Context) error {
		return program.Watch(ctx, prog, func(ev program.ChangeEvent) {
			logger.WithField("path", ev.Path).WithField("op", ev.Op).Warn("Program changed on disk")
			if metrics != nil {
				metrics.ProgramChangesTotal.Inc()
			}
		})
	}
}

// newToolLogger builds the logrus logger the plugin tool and its plugins use
func newToolLogger(level string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
