// Package upstream invokes the generative backend under a hard time ceiling
// with at most one call in flight per project.
package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/aidanjnn/sketchy/internal/generation/prompt"
	"github.com/aidanjnn/sketchy/internal/metrics"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
)

const (
	DefaultTimeout = 45 * time.Second

	// lockGrace is added to the ceiling to form the lock TTL.
	lockGrace = 5 * time.Second
)

type Client struct {
	backend Backend
	locker  Locker
	timeout time.Duration
	log     *logger.Logger
}

func NewClient(backend Backend, locker Locker, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		backend: backend,
		locker:  locker,
		timeout: timeout,
		log:     log.With("component", "generation_client"),
	}
}

func (c *Client) Timeout() time.Duration {
	return c.timeout
}

type invokeResult struct {
	text string
	err  error
}

// Generate sends p upstream. key scopes the single-flight lock (a project id).
// The lock is released on every return path, including the timeout path where
// the backend call may still be running; its late result is dropped.
func (c *Client) Generate(ctx context.Context, key string, p *prompt.Payload) (string, error) {
	log := c.log.ForContext(ctx).With("key", key)

	release, err := c.locker.Acquire(ctx, key, c.timeout+lockGrace)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			log.Info("generation refused, another is in flight")
		}
		return "", err
	}
	defer release()

	metrics.GenerationsInFlight.Inc()
	defer metrics.GenerationsInFlight.Dec()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan invokeResult, 1)
	go func() {
		text, err := c.backend.Invoke(callCtx, p)
		done <- invokeResult{text: text, err: err}
	}()

	var res invokeResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = invokeResult{err: callCtx.Err()}
	}
	elapsed := time.Since(start)
	metrics.GenerationDuration.Observe(elapsed.Seconds())

	if res.err == nil {
		log.Info("generation completed", "duration_ms", elapsed.Milliseconds(), "chars", len(res.text))
		return res.text, nil
	}

	err = c.classify(ctx, res.err)
	log.Warn("generation failed", "reason", ReasonOf(err), "duration_ms", elapsed.Milliseconds(), "error", err)
	return "", err
}

func (c *Client) classify(parent context.Context, err error) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GenerationError{Reason: ReasonTimeout, Detail: c.timeout.String(), Err: ErrTimeout}
	}
	if errors.Is(err, context.Canceled) && parent.Err() != nil {
		return parent.Err()
	}
	return &GenerationError{Reason: ReasonUnknown, Err: err}
}
