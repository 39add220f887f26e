// Package retry implements the backup coordinator's retry orchestration:
// ExecuteWithRetry, the ShouldRetry classification, and the
// IDLE -> RETRYING -> {SUCCESS, FAILED} state machine. The inter-attempt
// sleep is a fixed interval (backoff.ConstantBackOff), not exponential.
package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/taosdata/tsbackup-core/internal/errkind"
)

// State is the retry lifecycle value.
type State int

const (
	Idle State = iota
	Retrying
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Retrying:
		return "RETRYING"
	case Success:
		return "SUCCESS"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Context is per-operation retry bookkeeping. Every caller gets its own
// Context — there is no shared mutable state between concurrent retries.
type Context struct {
	MaxRetry uint32
	Interval time.Duration

	mu           sync.Mutex
	currentRetry uint32
	state        State
	lastErr      error
}

// NewContext builds a Context with the given retry budget and fixed
// inter-attempt sleep.
func NewContext(maxRetry uint32, interval time.Duration) *Context {
	return &Context{MaxRetry: maxRetry, Interval: interval, state: Idle}
}

// State returns the current retry state machine value.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentRetry returns the number of retries (attempts after the first)
// made so far in the most recent ExecuteWithRetry call.
func (c *Context) CurrentRetry() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRetry
}

// LastError returns the most recent attempt's error, if any.
func (c *Context) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ShouldRetry reports whether err's kind belongs to the retryable set
// (Network, Timeout, ConnectionLost, FileIO).
func ShouldRetry(err error) bool {
	return errkind.Of(err).Retryable()
}

// Wait sleeps the fixed inter-attempt interval, returning early with ctx's
// error if ctx is cancelled first. ExecuteWithRetry calls this between
// attempts; it is exported for callers that drive the retry loop manually.
func (c *Context) Wait(ctx context.Context) error {
	return c.wait(ctx, c.Interval)
}

func (c *Context) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Op is the operation execute_with_retry drives.
type Op func(ctx context.Context) error

// ExecuteWithRetry runs op up to c.MaxRetry+1 times total. Terminal
// errors (anything outside the retryable kinds) abort immediately,
// returning the error as-is. Exhausting the retry budget on a retryable
// error yields RetryExhausted. Sleeps c.Interval between attempts.
func (c *Context) ExecuteWithRetry(ctx context.Context, op Op) error {
	c.mu.Lock()
	c.state = Retrying
	c.currentRetry = 0
	c.mu.Unlock()

	bo := backoff.NewConstantBackOff(c.Interval)

	var lastErr error
	for attempt := uint32(0); ; attempt++ {
		c.mu.Lock()
		c.currentRetry = attempt
		c.mu.Unlock()

		err := op(ctx)
		if err == nil {
			c.mu.Lock()
			c.state = Success
			c.lastErr = nil
			c.mu.Unlock()
			return nil
		}

		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		lastErr = err

		if !ShouldRetry(err) {
			c.mu.Lock()
			c.state = Failed
			c.mu.Unlock()
			return err
		}
		if attempt >= c.MaxRetry {
			break
		}

		if err := c.wait(ctx, bo.NextBackOff()); err != nil {
			c.mu.Lock()
			c.state = Failed
			c.mu.Unlock()
			return err
		}
	}

	c.mu.Lock()
	c.state = Failed
	c.mu.Unlock()
	return errkind.Wrap(errkind.RetryExhausted, lastErr, fmt.Sprintf("exhausted %d retries", c.MaxRetry))
}

// Reset returns the context to IDLE, clearing attempt count and last error.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	c.currentRetry = 0
	c.lastErr = nil
}
