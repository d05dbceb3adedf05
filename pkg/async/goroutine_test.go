package async

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGo_Success(t *testing.T) {
	done := Go(context.Background(), nil, "ok", func(context.Context) error {
		return nil
	})

	err, ok := <-done
	assert.True(t, ok)
	assert.NoError(t, err)

	_, ok = <-done
	assert.False(t, ok, "channel is closed after the result")
}

func TestGo_Error(t *testing.T) {
	logs := &lockedBuffer{}
	sentinel := errors.New("listen failed")

	done := Go(context.Background(), observability.NewLogger(observability.InfoLevel, logs), "server", func(context.Context) error {
		return sentinel
	})

	assert.ErrorIs(t, <-done, sentinel)
	assert.Contains(t, logs.String(), "Error in server")
	assert.Contains(t, logs.String(), "listen failed")
}

func TestGo_Panic(t *testing.T) {
	logs := &lockedBuffer{}

	done := Go(context.Background(), observability.NewLogger(observability.InfoLevel, logs), "server", func(context.Context) error {
		panic("nil router")
	})

	err := <-done
	var perr *observability.PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "nil router", perr.Value)
	assert.Contains(t, logs.String(), "PANIC in server")
}

func TestGo_CancelledNotLogged(t *testing.T) {
	logs := &lockedBuffer{}
	ctx, cancel := context.WithCancel(context.Background())

	done := Go(ctx, observability.NewLogger(observability.InfoLevel, logs), "idle", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, logs.String())
}

func TestSafeGo_Timeout(t *testing.T) {
	logs := &lockedBuffer{}
	finished := make(chan struct{})

	SafeGo(context.Background(), observability.NewLogger(observability.InfoLevel, logs), 20*time.Millisecond, "slow", func(ctx context.Context) error {
		defer close(finished)
		<-ctx.Done()
		return ctx.Err()
	})

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("SafeGo task did not observe its timeout")
	}
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "deadline exceeded")
	}, time.Second, 5*time.Millisecond)
}

func TestWait(t *testing.T) {
	t.Run("result", func(t *testing.T) {
		done := make(chan error, 1)
		done <- errors.New("x")
		assert.EqualError(t, Wait(context.Background(), done), "x")
	})

	t.Run("closed", func(t *testing.T) {
		done := make(chan error)
		close(done)
		assert.NoError(t, Wait(context.Background(), done))
	})

	t.Run("context ends first", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Wait(ctx, make(chan error))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
