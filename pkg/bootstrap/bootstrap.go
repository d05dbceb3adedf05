package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/toolhost/pkg/host"
	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/platinummonkey/toolhost/pkg/plugins"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// DefaultHeartbeat is the cron spec for the keep-alive debug heartbeat
const DefaultHeartbeat = "@every 1m"

// Resolver looks up a plugin factory by identifier
type Resolver func(id string) (plugins.Factory, error)

// KeepAliveFunc blocks until ctx is cancelled
type KeepAliveFunc func(ctx context.Context) error

// BackgroundTask runs alongside the default keep-alive wait
type BackgroundTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// Bootstrapper loads one plugin into the script's tool and keeps the host
// alive afterwards
type Bootstrapper struct {
	pluginID   string
	resolve    Resolver
	logger     *observability.Logger
	metrics    *observability.Metrics
	heartbeat  string
	keepAlive  KeepAliveFunc
	background []BackgroundTask
}

// Option configures a Bootstrapper
type Option func(*Bootstrapper)

// WithResolver replaces the global factory catalog lookup
func WithResolver(r Resolver) Option {
	return func(b *Bootstrapper) {
		if r != nil {
			b.resolve = r
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *observability.Logger) Option {
	return func(b *Bootstrapper) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bootstrapper) {
		b.metrics = m
	}
}

// WithHeartbeat sets the keep-alive heartbeat cron spec. An empty spec
// disables the heartbeat.
func WithHeartbeat(spec string) Option {
	return func(b *Bootstrapper) {
		b.heartbeat = spec
	}
}

// WithKeepAlive replaces the default keep-alive wait
func WithKeepAlive(fn KeepAliveFunc) Option {
	return func(b *Bootstrapper) {
		if fn != nil {
			b.keepAlive = fn
		}
	}
}

// WithBackground adds a task that runs for the duration of the default
// keep-alive. A task returning an error ends keep-alive with that error.
func WithBackground(name string, fn func(ctx context.Context) error) Option {
	return func(b *Bootstrapper) {
		if fn != nil {
			b.background = append(b.background, BackgroundTask{Name: name, Run: fn})
		}
	}
}

// New creates a bootstrapper for pluginID
func New(pluginID string, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		pluginID:  pluginID,
		resolve:   plugins.ResolveFactory,
		logger:    observability.NopLogger(),
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.keepAlive == nil {
		b.keepAlive = b.waitForStop
	}
	return b
}

// PluginID returns the identifier the bootstrapper loads
func (b *Bootstrapper) PluginID() string {
	return b.pluginID
}

// Run executes the bootstrap: check program, check tool, load the plugin,
// then keep alive until ctx is cancelled. A missing program or tool ends the
// run early with ErrNoProgram or ErrNoTool. A failed plugin load is reported
// on the console and recorded in the outcome; keep-alive still runs.
func (b *Bootstrapper) Run(ctx context.Context, script *host.Script) (*Outcome, error) {
	outcome := &Outcome{
		SessionID: uuid.NewString(),
		PluginID:  b.pluginID,
		StartedAt: time.Now(),
	}

	ctx = observability.WithSessionID(ctx, outcome.SessionID)
	ctx = observability.WithPluginID(ctx, b.pluginID)
	logger := b.logger.WithField("session_id", outcome.SessionID).WithField("plugin_id", b.pluginID)

	ctx, span := observability.Tracer().Start(ctx, "bootstrap.run")
	span.SetAttributes(
		attribute.String("toolhost.session_id", outcome.SessionID),
		attribute.String("toolhost.plugin_id", b.pluginID),
	)
	defer span.End()

	defer func() {
		span.SetAttributes(attribute.String("toolhost.result", outcome.Result()))
		if b.metrics != nil {
			b.metrics.BootstrapRunsTotal.WithLabelValues(outcome.Result()).Inc()
		}
	}()

	console := script.Console()

	b.enter(outcome, StageCheckProgram)
	prog := script.CurrentProgram()
	if prog == nil {
		console.Println("No program loaded!")
		logger.Warn("Bootstrap stopped: no program loaded")
		span.SetStatus(codes.Error, ErrNoProgram.Error())
		return outcome, ErrNoProgram
	}
	outcome.Program = prog
	console.Println("Program loaded: " + prog.Name)
	logger.WithField("program", prog.Name).
		WithField("format", string(prog.Format)).
		WithField("sha256", prog.SHA256).
		Info("Program loaded")

	b.enter(outcome, StageCheckTool)
	tool := script.State().Tool()
	if tool == nil {
		console.Println("No PluginTool available!")
		logger.Warn("Bootstrap stopped: no plugin tool available")
		span.SetStatus(codes.Error, ErrNoTool.Error())
		return outcome, ErrNoTool
	}
	if tool.CurrentProgram() == nil {
		tool.SetProgram(prog)
	}

	b.enter(outcome, StageLoadPlugin)
	plugin, lerr := b.loadPlugin(ctx, tool)
	if lerr != nil {
		outcome.LoadErr = lerr
		console.Println(fmt.Sprintf("Failed to load %s plugin: %s", b.pluginID, lerr.Err.Error()))
		console.PrintStackTrace(lerr.Err, lerr.Stack)
		logger.WithError(lerr).WithField("phase", string(lerr.Phase)).Error("Plugin load failed")
	} else {
		outcome.Plugin = plugin
		console.Println(plugin.Manifest().DisplayName() + " Plugin added to tool successfully.")
	}
	if b.metrics != nil {
		b.metrics.ToolPluginsActive.Set(float64(tool.Count()))
	}

	b.enter(outcome, StageKeepAlive)
	outcome.KeepAliveAt = time.Now()
	console.Println("Starting " + outcome.ServerName() + " server...")
	logger.Info("Entering keep-alive")

	if b.metrics != nil {
		b.metrics.KeepAliveActive.Set(1)
		b.metrics.KeepAliveSince.Set(float64(outcome.KeepAliveAt.Unix()))
		defer b.metrics.KeepAliveActive.Set(0)
	}

	err := b.keepAlive(ctx)
	outcome.StoppedAt = time.Now()
	logger.WithField("uptime", outcome.StoppedAt.Sub(outcome.KeepAliveAt).String()).Info("Keep-alive stopped")

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		span.SetStatus(codes.Error, err.Error())
		return outcome, fmt.Errorf("keep-alive failed: %w", err)
	}
	return outcome, nil
}

func (b *Bootstrapper) enter(outcome *Outcome, stage Stage) {
	outcome.Stage = stage
	if b.metrics != nil {
		b.metrics.SetStage(string(stage), stageNames())
	}
	b.logger.Debugf("Bootstrap stage %s", stage)
}

// loadPlugin resolves, constructs and registers the plugin. Errors and
// panics from any phase come back as a *LoadError.
func (b *Bootstrapper) loadPlugin(ctx context.Context, tool *plugins.Tool) (plugin plugins.Plugin, lerr *LoadError) {
	_, span := observability.Tracer().Start(ctx, "bootstrap.load_plugin")
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			var err error
			if lerr != nil {
				err = lerr
			}
			b.metrics.RecordPluginLoad(b.pluginID, time.Since(start), err)
		}
		if lerr != nil {
			span.RecordError(lerr)
			span.SetAttributes(attribute.String("toolhost.load_phase", string(lerr.Phase)))
			span.SetStatus(codes.Error, lerr.Error())
		}
		span.End()
	}()

	factory, err := b.resolve(b.pluginID)
	if err != nil {
		return nil, b.loadError(PhaseResolve, err)
	}

	plugin, err = construct(factory, tool)
	if err != nil {
		return nil, b.loadError(PhaseConstruct, err)
	}

	if err := register(tool, plugin, b.pluginID); err != nil {
		return nil, b.loadError(PhaseRegister, err)
	}

	return plugin, nil
}

func (b *Bootstrapper) loadError(phase Phase, err error) *LoadError {
	lerr := &LoadError{PluginID: b.pluginID, Phase: phase, Err: err}

	var perr *observability.PanicError
	if errors.As(err, &perr) {
		lerr.Stack = perr.Stack
	} else {
		lerr.Stack = observability.CaptureStack()
	}
	return lerr
}

func construct(factory plugins.Factory, tool *plugins.Tool) (plugin plugins.Plugin, err error) {
	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			plugin, err = nil, perr
		}
	}()

	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", plugins.ErrFactoryNotFound)
	}
	plugin, err = factory(tool)
	if err != nil {
		return nil, err
	}
	if plugin == nil {
		return nil, ErrNilPlugin
	}
	return plugin, nil
}

func register(tool *plugins.Tool, plugin plugins.Plugin, source string) (err error) {
	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			err = perr
		}
	}()

	return tool.AddPluginFrom(plugin, source)
}

// waitForStop blocks until ctx is done, logging a heartbeat at debug level
// on the configured schedule. Background tasks share the wait.
func (b *Bootstrapper) waitForStop(ctx context.Context) error {
	logger := observability.FromContext(observability.WithLogger(ctx, b.logger))

	if b.heartbeat != "" {
		since := time.Now()
		c := cron.New()
		_, err := c.AddFunc(b.heartbeat, func() {
			defer observability.RecoverPanic(logger, "keep-alive heartbeat")
			logger.WithField("uptime", time.Since(since).Round(time.Second).String()).Debug("Keep-alive heartbeat")
		})
		if err != nil {
			logger.WithError(err).Warnf("Invalid heartbeat spec %q, continuing without heartbeat", b.heartbeat)
		} else {
			c.Start()
			defer func() {
				<-c.Stop().Done()
			}()
		}
	}

	if len(b.background) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range b.background {
		g.Go(func() (err error) {
			defer func() {
				if perr := observability.MustRecover(recover()); perr != nil {
					err = perr
				}
			}()
			logger.WithField("task", task.Name).Debug("Background task started")
			if err := task.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})
	return g.Wait()
}
