// Package async provides supervised goroutines for background tasks.
//
// # Overview
//
// Every goroutine started through this package recovers panics, logs errors
// with the task name and reports its final result, so a crashing plugin
// server never takes the host down with it.
//
// # Key Functions
//
// Go: long-lived task with a result channel
//
//	done := async.Go(ctx, logger, "mcp server", func(ctx context.Context) error {
//		return srv.ListenAndServe()
//	})
//	err := async.Wait(shutdownCtx, done)
//
// SafeGo: fire-and-forget task with a timeout
//
//	async.SafeGo(ctx, logger, 30*time.Second, "string cache warm-up", warm)
//
// # Related Packages
//
//   - pkg/mcp: Runs its HTTP server with Go and warms the string cache with SafeGo
package async
