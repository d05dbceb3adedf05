// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes the host's ambient infrastructure: JSON logging, metrics
// collection, health checks, panic capture, signal-driven shutdown, and
// distributed tracing integration.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stderr)
//	logger.WithField("plugin", id).Info("Plugin added")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(nil)
//	metrics.RecordPluginLoad(id, time.Since(start), err)
//	router.Handle("/metrics", metrics.Handler())
//
// # Health Checks
//
// Register checks and routes:
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("plugins", true, pluginsCheck)
//	observability.RegisterHealthRoutes(router, checker)
//
// # Panics and Shutdown
//
// Convert panics into errors that keep their stack:
//
//	defer func() {
//		if perr := observability.MustRecover(recover()); perr != nil {
//			err = perr
//		}
//	}()
//
// Cancel on SIGINT or SIGTERM, then run cleanup:
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second)
//	ctx, stop := sm.NotifyContext(context.Background())
//	defer stop()
//	sm.Register("tool", func(ctx context.Context) error { return tool.Dispose() })
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "toolhost",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
