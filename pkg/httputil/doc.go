// Package httputil provides HTTP utilities for standardized response handling.
//
// # Overview
//
// This package offers JSON response helpers and the middleware the MCP
// server wraps its router with.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteAccepted(w)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// # Related Packages
//
//   - pkg/observability: Logger and metrics middleware
//   - pkg/mcp: Primary consumer
package httputil
