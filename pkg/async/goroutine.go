package async

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/toolhost/pkg/observability"
)

// Go runs fn in a supervised goroutine:
//   - panics are recovered and reported as *observability.PanicError
//   - errors are logged with the task name
//   - the returned channel yields the task's final error (nil on success)
//     and is then closed
//
// Use this instead of bare `go func()` for long-lived tasks such as servers.
//
// Example:
//
//	done := async.Go(ctx, logger, "mcp server", func(ctx context.Context) error {
//	    return srv.ListenAndServe()
//	})
func Go(ctx context.Context, logger *observability.Logger, taskName string, fn func(context.Context) error) <-chan error {
	if logger == nil {
		logger = observability.NopLogger()
	}
	done := make(chan error, 1)

	go func() {
		defer close(done)

		err := run(ctx, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			var perr *observability.PanicError
			if errors.As(err, &perr) {
				logger.WithField("task", taskName).
					WithField("stack", string(perr.Stack)).
					Errorf("PANIC in %s: %v", taskName, perr.Value)
			} else {
				logger.WithError(err).WithField("task", taskName).Errorf("Error in %s", taskName)
			}
		}
		done <- err
	}()

	return done
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			err = perr
		}
	}()
	return fn(ctx)
}

// SafeGo executes a short task in a goroutine with a timeout, panic recovery
// and error logging. The result is only logged.
//
// Example:
//
//	async.SafeGo(ctx, logger, 5*time.Second, "cache warming", func(ctx context.Context) error {
//	    return warm(ctx)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()
		<-Go(ctx, logger, taskName, fn)
	}()
}

// Wait blocks until done yields or ctx ends
func Wait(ctx context.Context, done <-chan error) error {
	select {
	case err, ok := <-done:
		if !ok {
			return nil
		}
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for task: %w", ctx.Err())
	}
}
