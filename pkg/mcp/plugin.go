package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/platinummonkey/toolhost/pkg/async"
	"github.com/platinummonkey/toolhost/pkg/httputil"
	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/platinummonkey/toolhost/pkg/plugins"
	"github.com/platinummonkey/toolhost/pkg/program"
)

// PluginID is the catalog identifier of the MCP server plugin
const PluginID = "toolhost.mcp.ServerPlugin"

// Version is the MCP server plugin version
const Version = "1.0.0"

// Tool option keys read by the plugin
const (
	OptionAddr            = "mcp.addr"
	OptionAllowedOrigins  = "mcp.allowed_origins"
	OptionReadTimeout     = "mcp.read_timeout"
	OptionWriteTimeout    = "mcp.write_timeout"
	OptionShutdownTimeout = "mcp.shutdown_timeout"
	OptionRateLimit       = "mcp.rate_limit"
	OptionStateless       = "mcp.stateless"
)

// Defaults for unset options
const (
	DefaultAddr            = "127.0.0.1:8089"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultRateLimit is requests per minute per session or client; 0
	// disables limiting
	DefaultRateLimit = 600
)

// warmUpTimeout bounds the background string extraction started by Load
const warmUpTimeout = 30 * time.Second

func init() {
	plugins.MustRegisterFactory(PluginID, NewPlugin)
}

// ServerPlugin exposes the host over MCP. Registering it with a tool starts
// the HTTP server; unloading it stops the server.
type ServerPlugin struct {
	manifest *plugins.Manifest
	tool     *plugins.Tool
	server   *Server
	cache    *program.StringCache
	logger   *observability.Logger

	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	done     <-chan error
	cancel   context.CancelFunc
}

// NewPlugin is the catalog factory for the MCP server plugin
func NewPlugin(tool *plugins.Tool) (plugins.Plugin, error) {
	if tool == nil {
		return nil, errors.New("mcp server plugin requires a tool")
	}

	opts := tool.Options()
	addr := opts.Get(OptionAddr, DefaultAddr)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", OptionAddr, addr, err)
	}

	log := tool.Logger()
	logger := observability.NewLogger(observability.ParseLogLevel(log.GetLevel().String()), log.Out).
		WithField("plugin_id", PluginID)

	metrics := tool.Metrics()
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}

	manifest := &plugins.Manifest{
		ID:          PluginID,
		Name:        "MCP",
		Version:     Version,
		APIVersion:  plugins.CurrentAPIVersion,
		Description: "Model Context Protocol server exposing the loaded program",
		Type:        plugins.PluginTypeServer,
	}

	var limiter *httputil.RateLimiter
	if perMinute := opts.GetInt(OptionRateLimit, DefaultRateLimit); perMinute > 0 {
		limiter = httputil.NewRateLimiter(httputil.RateLimitConfig{
			RequestsPerWindow: perMinute,
			WindowDuration:    time.Minute,
			BurstSize:         perMinute / 10,
		})
	}

	cache := program.NewStringCache(32, time.Hour)
	server := NewServer(tool, ServerConfig{
		Name:           "toolhost",
		Version:        Version,
		AllowedOrigins: opts.GetList(OptionAllowedOrigins),
		Stateless:      opts.GetBool(OptionStateless, false),
		StringCache:    cache,
		RateLimiter:    limiter,
		Metrics:        metrics,
		Logger:         logger,
	})

	return &ServerPlugin{
		manifest:        manifest,
		tool:            tool,
		server:          server,
		cache:           cache,
		logger:          logger,
		addr:            addr,
		readTimeout:     opts.GetDuration(OptionReadTimeout, DefaultReadTimeout),
		writeTimeout:    opts.GetDuration(OptionWriteTimeout, DefaultWriteTimeout),
		shutdownTimeout: opts.GetDuration(OptionShutdownTimeout, DefaultShutdownTimeout),
	}, nil
}

// Manifest returns the plugin manifest
func (p *ServerPlugin) Manifest() *plugins.Manifest {
	return p.manifest
}

// Server returns the MCP server the plugin serves
func (p *ServerPlugin) Server() *Server {
	return p.server
}

// Addr returns the address the server is listening on, or "" before Load
func (p *ServerPlugin) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Load binds the listener and starts serving in a supervised goroutine.
// Bind failures are returned so registration fails.
func (p *ServerPlugin) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.httpSrv != nil {
		return errors.New("mcp server already running")
	}

	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.addr, err)
	}

	srv := &http.Server{
		Handler:           p.server,
		ReadTimeout:       p.readTimeout,
		ReadHeaderTimeout: p.readTimeout,
		WriteTimeout:      p.writeTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.httpSrv = srv
	p.listener = ln
	p.cancel = cancel
	p.done = async.Go(ctx, p.logger, "mcp server", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// list_strings answers from the cache once extraction has run
	if prog := p.tool.CurrentProgram(); prog != nil {
		async.SafeGo(ctx, p.logger, warmUpTimeout, "string cache warm-up", func(context.Context) error {
			p.cache.Get(prog, program.DefaultMinStringLength)
			return nil
		})
	}

	p.logger.WithField("addr", ln.Addr().String()).Info("MCP server listening")
	return nil
}

// Unload gracefully stops the server
func (p *ServerPlugin) Unload() error {
	p.mu.Lock()
	srv, done, cancel := p.httpSrv, p.done, p.cancel
	p.httpSrv, p.listener, p.done, p.cancel = nil, nil, nil, nil
	p.mu.Unlock()

	if srv == nil {
		return nil
	}
	defer cancel()

	ctx, stop := context.WithTimeout(context.Background(), p.shutdownTimeout)
	defer stop()

	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("mcp server shutdown: %w", err)
	}
	if err := async.Wait(ctx, done); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	p.cache.Purge()
	p.logger.Info("MCP server stopped")
	return nil
}
