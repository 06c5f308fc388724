package upstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanjnn/sketchy/internal/generation/prompt"
)

type funcBackend func(ctx context.Context, p *prompt.Payload) (string, error)

func (f funcBackend) Invoke(ctx context.Context, p *prompt.Payload) (string, error) {
	return f(ctx, p)
}

var testPayload = &prompt.Payload{Image: []byte("png"), MimeType: prompt.MimePNG, Instructions: "build it"}

func TestClient_Success(t *testing.T) {
	c := NewClient(funcBackend(func(ctx context.Context, p *prompt.Payload) (string, error) {
		return `{"html":"<p/>"}`, nil
	}), nil, time.Second, nil)

	text, err := c.Generate(context.Background(), "site-1", testPayload)
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<p/>"}`, text)
}

func TestClient_TimeoutReleasesLock(t *testing.T) {
	locker := NewMemoryLocker()
	stuck := make(chan struct{})
	defer close(stuck)

	var mu sync.Mutex
	hang := true
	backend := funcBackend(func(ctx context.Context, p *prompt.Payload) (string, error) {
		mu.Lock()
		h := hang
		mu.Unlock()
		if h {
			// Ignores ctx on purpose: the transport never returns.
			<-stuck
			return "late", nil
		}
		return "fresh", nil
	})

	c := NewClient(backend, locker, 50*time.Millisecond, nil)

	start := time.Now()
	_, err := c.Generate(context.Background(), "site-1", testPayload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, ReasonTimeout, ReasonOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, locker.Held("site-1"))

	mu.Lock()
	hang = false
	mu.Unlock()

	text, err := c.Generate(context.Background(), "site-1", testPayload)
	require.NoError(t, err)
	assert.Equal(t, "fresh", text)
}

func TestClient_SecondCallWhileInFlightIsBusy(t *testing.T) {
	locker := NewMemoryLocker()
	entered := make(chan struct{})
	finish := make(chan struct{})

	c := NewClient(funcBackend(func(ctx context.Context, p *prompt.Payload) (string, error) {
		close(entered)
		<-finish
		return "ok", nil
	}), locker, 5*time.Second, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background(), "site-1", testPayload)
		errc <- err
	}()
	<-entered

	_, err := c.Generate(context.Background(), "site-1", testPayload)
	assert.ErrorIs(t, err, ErrBusy)

	close(finish)
	require.NoError(t, <-errc)
	assert.False(t, locker.Held("site-1"))
}

func TestClient_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewMemoryLocker()
	release, err := locker.Acquire(context.Background(), "site-1", time.Minute)
	require.NoError(t, err)
	defer release()

	c := NewClient(funcBackend(func(ctx context.Context, p *prompt.Payload) (string, error) {
		return "ok", nil
	}), locker, time.Second, nil)

	_, err = c.Generate(context.Background(), "site-2", testPayload)
	assert.NoError(t, err)
}

func TestClient_BackendErrorsPassThrough(t *testing.T) {
	c := NewClient(funcBackend(func(ctx context.Context, p *prompt.Payload) (string, error) {
		return "", &GenerationError{Reason: ReasonTruncated}
	}), nil, time.Second, nil)

	_, err := c.Generate(context.Background(), "site-1", testPayload)
	assert.Equal(t, ReasonTruncated, ReasonOf(err))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestClient_BackendHonoursDeadline(t *testing.T) {
	c := NewClient(funcBackend(func(ctx context.Context, p *prompt.Payload) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), nil, 20*time.Millisecond, nil)

	_, err := c.Generate(context.Background(), "site-1", testPayload)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(funcBackend(func(ctx context.Context, p *prompt.Payload) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}), nil, time.Second, nil)

	_, err := c.Generate(ctx, "site-1", testPayload)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Reason(""), ReasonOf(err))
}

func TestMemoryLocker_ReleaseIsIdempotent(t *testing.T) {
	l := NewMemoryLocker()
	release, err := l.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	release()
	again, err := l.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	// A stale release must not free the new holder.
	release()
	assert.True(t, l.Held("k"))
	again()
	assert.False(t, l.Held("k"))
}
