package sync

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/zendegi/directgtd/internal/remote"
)

// RetryPolicy controls how transient sync failures are retried: bounded
// attempts with doubling delays and random jitter so a fleet of clients
// recovering from the same outage does not stampede the server.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fractional spread applied to each delay; 0.25 means
	// the actual delay lands within ±25% of the computed one.
	Jitter float64
}

// DefaultRetryPolicy matches the daemon's defaults: up to 5 attempts
// starting at 2s, capped at 2 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    2 * time.Minute,
		Jitter:      0.25,
	}
}

// Delay returns the backoff before attempt n (1-based). Attempt 1 has no
// delay; each later attempt doubles, capped at MaxDelay, then jittered.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.BaseDelay << (attempt - 2)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
	}
	return d
}

// Run executes fn under the policy. Only errors the remote layer
// classifies as transient are retried; anything else returns immediately.
// The context cancels both the waits and further attempts.
func (p RetryPolicy) Run(ctx context.Context, logger *log.Logger, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if d := p.Delay(attempt); d > 0 {
			if logger != nil {
				logger.Printf("retrying in %v (attempt %d/%d)", d.Round(time.Millisecond), attempt, p.MaxAttempts)
			}
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !remote.Retryable(err) {
			return err
		}
	}
	return err
}
