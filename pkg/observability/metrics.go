package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Bootstrap metrics
	BootstrapRunsTotal  *prometheus.CounterVec
	BootstrapStage      *prometheus.GaugeVec
	PluginLoadsTotal    *prometheus.CounterVec
	PluginLoadDuration  *prometheus.HistogramVec
	ToolPluginsActive   prometheus.Gauge
	KeepAliveActive     prometheus.Gauge
	KeepAliveSince      prometheus.Gauge
	ProgramChangesTotal prometheus.Counter

	// MCP server metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RPCRequestsTotal    *prometheus.CounterVec
	ToolCallsTotal      *prometheus.CounterVec
	ToolCallDuration    *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics. A nil registry
// gets a fresh one, so tests can build independent instances.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		BootstrapRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhost_bootstrap_runs_total",
				Help: "Total number of bootstrap runs by final result",
			},
			[]string{"result"},
		),
		BootstrapStage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolhost_bootstrap_stage",
				Help: "Current bootstrap stage (1 for the active stage)",
			},
			[]string{"stage"},
		),
		PluginLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhost_plugin_loads_total",
				Help: "Total number of plugin load attempts",
			},
			[]string{"plugin", "status"},
		),
		PluginLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolhost_plugin_load_duration_seconds",
				Help:    "Plugin resolve, construct and register duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"plugin"},
		),
		ToolPluginsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolhost_tool_plugins_active",
				Help: "Number of plugins registered with the tool",
			},
		),
		KeepAliveActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolhost_keepalive_active",
				Help: "1 while the host is idling in keep-alive",
			},
		),
		KeepAliveSince: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolhost_keepalive_since_seconds",
				Help: "Unix time keep-alive was entered",
			},
		),
		ProgramChangesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "toolhost_program_changes_total",
				Help: "Number of on-disk changes observed for the loaded program",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolhost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RPCRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhost_mcp_rpc_requests_total",
				Help: "Total number of JSON-RPC requests by method and outcome",
			},
			[]string{"method", "status"},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhost_mcp_tool_calls_total",
				Help: "Total number of MCP tool calls",
			},
			[]string{"tool", "status"},
		),
		ToolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolhost_mcp_tool_call_duration_seconds",
				Help:    "MCP tool call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhost_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhost_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.BootstrapRunsTotal,
		m.BootstrapStage,
		m.PluginLoadsTotal,
		m.PluginLoadDuration,
		m.ToolPluginsActive,
		m.KeepAliveActive,
		m.KeepAliveSince,
		m.ProgramChangesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RPCRequestsTotal,
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Registry returns the registry the metrics were registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetStage marks stage as the active bootstrap stage
func (m *Metrics) SetStage(stage string, all []string) {
	for _, s := range all {
		m.BootstrapStage.WithLabelValues(s).Set(0)
	}
	m.BootstrapStage.WithLabelValues(stage).Set(1)
}

// RecordPluginLoad records the outcome of a plugin load attempt
func (m *Metrics) RecordPluginLoad(pluginID string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.PluginLoadsTotal.WithLabelValues(pluginID, status).Inc()
	m.PluginLoadDuration.WithLabelValues(pluginID).Observe(duration.Seconds())
}

// RecordToolCall records an MCP tool invocation
func (m *Metrics) RecordToolCall(tool string, duration time.Duration, isError bool) {
	status := "success"
	if isError {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordCache records a cache lookup
func (m *Metrics) RecordCache(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// HTTPMetricsMiddleware records request counts and durations. pathFn maps a
// request to a low-cardinality path label; nil uses the raw URL path.
func HTTPMetricsMiddleware(metrics *Metrics, pathFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if pathFn != nil {
				path = pathFn(r)
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
