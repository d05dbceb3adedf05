package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/platinummonkey/toolhost/pkg/httputil"
	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/platinummonkey/toolhost/pkg/plugins"
	"github.com/platinummonkey/toolhost/pkg/program"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProtocolVersion is the newest MCP revision the server negotiates
const ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION

// SessionHeader carries the session ID assigned by initialize
const SessionHeader = "Mcp-Session-Id"

const (
	endpointPath    = "/mcp"
	maxRequestBytes = 1 << 20
)

const instructions = "Inspect the program loaded by the toolhost: start with get_program_info, " +
	"then list_sections, list_strings or read_bytes."

// Server serves MCP over streamable HTTP for a plugin tool
type Server struct {
	name    string
	version string
	tool    *plugins.Tool
	cache   *program.StringCache
	mcp     *server.MCPServer
	router  *mux.Router
	handler http.Handler
	health  *observability.HealthChecker
	limiter *httputil.RateLimiter
	metrics *observability.Metrics
	logger  *observability.Logger
}

// ServerConfig configures a Server
type ServerConfig struct {
	Name           string
	Version        string
	AllowedOrigins []string
	// Stateless skips session IDs; every request stands alone
	Stateless   bool
	StringCache *program.StringCache
	RateLimiter *httputil.RateLimiter // nil disables rate limiting
	Metrics     *observability.Metrics
	Logger      *observability.Logger
}

// NewServer creates an MCP server exposing tool and its current program
func NewServer(tool *plugins.Tool, cfg ServerConfig) *Server {
	if cfg.Name == "" {
		cfg.Name = "toolhost"
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetrics(nil)
	}
	if cfg.StringCache == nil {
		cfg.StringCache = program.NewStringCache(32, time.Hour)
	}

	s := &Server{
		name:    cfg.Name,
		version: cfg.Version,
		tool:    tool,
		cache:   cfg.StringCache,
		router:  mux.NewRouter(),
		health:  observability.NewHealthChecker(cfg.Version),
		limiter: cfg.RateLimiter,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}

	s.mcp = server.NewMCPServer(cfg.Name, cfg.Version,
		server.WithToolCapabilities(false),
		server.WithInstructions(instructions),
		server.WithHooks(s.hooks()),
		server.WithToolHandlerMiddleware(s.toolMiddleware),
	)
	newToolset(tool, cfg.StringCache, cfg.Metrics).register(s.mcp)

	s.health.AddCheck("plugins", true, s.checkPlugins)
	s.health.AddCheck("program", false, s.checkProgram)
	s.health.AddCheck("string_cache", false, s.checkStringCache)

	s.setupRoutes(cfg.Stateless)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", SessionHeader, httputil.RequestIDHeader},
		ExposedHeaders: []string{SessionHeader, httputil.RequestIDHeader},
	})

	s.handler = httputil.Chain(
		httputil.RecoveryMiddleware(s.logger),
		c.Handler,
		httputil.RequestIDMiddleware,
		tracingMiddleware,
		httputil.LoggingMiddleware(s.logger),
	)(s.router)

	return s
}

// setupRoutes configures all the server routes
func (s *Server) setupRoutes(stateless bool) {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics, routeTemplate))

	middlewares := []func(http.Handler) http.Handler{
		httputil.MaxBytesMiddleware(maxRequestBytes),
		httputil.ContentTypeMiddleware,
	}
	if s.limiter != nil {
		middlewares = append([]func(http.Handler) http.Handler{
			httputil.RateLimitMiddleware(s.limiter, rateLimitKey),
		}, middlewares...)
	}
	rpc := httputil.Chain(middlewares...)

	// GET would open a standalone SSE stream; the server never sends
	// unsolicited messages so only POST and DELETE are routed
	streamable := server.NewStreamableHTTPServer(s.mcp,
		server.WithHTTPContextFunc(s.requestContext),
		server.WithStateLess(stateless),
	)
	s.router.Handle(endpointPath, rpc(streamable)).Methods(http.MethodPost, http.MethodDelete)

	observability.RegisterHealthRoutes(s.router, s.health)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
}

// requestContext carries the request-scoped logger into tool handlers
func (s *Server) requestContext(ctx context.Context, r *http.Request) context.Context {
	logger := s.logger
	if id := r.Header.Get(httputil.RequestIDHeader); id != "" {
		logger = logger.WithField("request_id", id)
	}
	return observability.WithLogger(ctx, logger)
}

func (s *Server) hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddOnSuccess(func(_ context.Context, _ any, method mcpgo.MCPMethod, _ any, _ any) {
		s.countRPC(string(method), "success")
	})
	hooks.AddOnError(func(ctx context.Context, _ any, method mcpgo.MCPMethod, _ any, err error) {
		s.countRPC(string(method), "error")
		observability.FromContext(ctx).WithError(err).WithField("method", string(method)).Debug("MCP request failed")
	})
	hooks.AddAfterInitialize(func(ctx context.Context, _ any, req *mcpgo.InitializeRequest, result *mcpgo.InitializeResult) {
		fields := map[string]interface{}{
			"client":         req.Params.ClientInfo.Name,
			"client_version": req.Params.ClientInfo.Version,
			"protocol":       result.ProtocolVersion,
		}
		if session := server.ClientSessionFromContext(ctx); session != nil {
			fields["session_id"] = session.SessionID()
		}
		s.logger.WithFields(fields).Info("MCP session initialized")
	})
	return hooks
}

// toolMiddleware traces and measures every tool call. Handler errors and
// panics become error results so tool failures are not protocol errors.
func (s *Server) toolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		name := req.Params.Name
		if session := server.ClientSessionFromContext(ctx); session != nil {
			ctx = observability.WithSessionID(ctx, session.SessionID())
		}

		ctx, span := observability.Tracer().Start(ctx, "mcp.tools/call",
			trace.WithAttributes(
				attribute.String("mcp.tool", name),
				observability.AttrPluginID.String(PluginID),
			))
		defer span.End()

		start := time.Now()
		result, err := runTool(ctx, next, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.FromContext(ctx).WithError(err).WithField("tool", name).Debug("Tool call failed")
			result = mcpgo.NewToolResultError(err.Error())
		} else if result == nil {
			result = mcpgo.NewToolResultText("")
		}
		s.metrics.RecordToolCall(name, time.Since(start), result.IsError)

		return result, nil
	}
}

func runTool(ctx context.Context, next server.ToolHandlerFunc, req mcpgo.CallToolRequest) (result *mcpgo.CallToolResult, err error) {
	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			result, err = nil, perr
		}
	}()
	return next(ctx, req)
}

// rateLimitKey buckets requests by MCP session, falling back to client IP
// before initialize
func rateLimitKey(r *http.Request) string {
	if sid := r.Header.Get(SessionHeader); sid != "" {
		return "session:" + sid
	}
	return httputil.ClientIPKey(r)
}

// tracingMiddleware starts a server span per request using the global
// tracer provider
func tracingMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "mcp",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) countRPC(method, status string) {
	if method == "" {
		method = "unknown"
	}
	s.metrics.RPCRequestsTotal.WithLabelValues(method, status).Inc()
}

func (s *Server) checkPlugins(context.Context) observability.DependencyStatus {
	infos := s.tool.Infos()
	if len(infos) == 0 {
		return observability.DependencyStatus{Status: observability.StatusUnhealthy, Message: "no plugins registered"}
	}

	status := observability.DependencyStatus{Status: observability.StatusHealthy}
	for _, info := range infos {
		if !info.IsEnabled {
			status.Status = observability.StatusDegraded
			status.Message = fmt.Sprintf("plugin %s is disabled", info.Manifest.ID)
			return status
		}
	}
	status.Message = fmt.Sprintf("%d plugin(s) registered", len(infos))
	return status
}

func (s *Server) checkProgram(context.Context) observability.DependencyStatus {
	p := s.tool.CurrentProgram()
	if p == nil {
		return observability.DependencyStatus{Status: observability.StatusUnhealthy, Message: "no program loaded"}
	}
	return observability.DependencyStatus{Status: observability.StatusHealthy, Message: p.Name}
}

func (s *Server) checkStringCache(context.Context) observability.DependencyStatus {
	stats := s.cache.Stats()
	return observability.DependencyStatus{
		Status:  observability.StatusHealthy,
		Message: fmt.Sprintf("%d entries, hit rate %.2f", stats.Entries, stats.HitRate),
	}
}
