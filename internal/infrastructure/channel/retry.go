package channel

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Retry policy defaults, matching the attempt counts the sync scripts ran with
const (
	DefaultMaxAttempts = 4
	MinMaxAttempts     = 3
	MaxMaxAttempts     = 5
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultJitter      = 250 * time.Millisecond
)

// RetryPolicy configures retry behavior for channel calls
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
	// Base is multiplied by the attempt number to get the backoff
	Base        time.Duration
	// Jitter is the upper bound of the random delay added to each backoff
	Jitter      time.Duration
	// ShouldRetry decides whether a response or transport error is transient
	ShouldRetry func(resp *http.Response, err error) bool
	// Sleep waits between attempts. Tests replace it to record waits.
	Sleep       func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0, n). Defaults to math/rand/v2.
	Rand        func(n int64) int64
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Base:        DefaultBackoffBase,
		Jitter:      DefaultJitter,
		ShouldRetry: IsTransient,
		Sleep:       SleepContext,
		Rand:        rand.Int64N,
	}
}

// withDefaults fills unset fields
func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Base <= 0 {
		p.Base = d.Base
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = d.ShouldRetry
	}
	if p.Sleep == nil {
		p.Sleep = d.Sleep
	}
	if p.Rand == nil {
		p.Rand = d.Rand
	}
	return p
}

// Backoff returns the wait before the attempt following attempt (1-based):
// base*attempt + random(0, jitter).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base * time.Duration(attempt)
	if p.Jitter > 0 && p.Rand != nil {
		delay += time.Duration(p.Rand(int64(p.Jitter)))
	}
	return delay
}

// IsTransient reports whether a call outcome is worth retrying: 429, any 5xx, or a
// transport failure such as a timeout or a reset connection. Context cancellation
// is never transient.
func IsTransient(resp *http.Response, err error) bool {
	if err != nil {
		return isTransientTransportError(err)
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

func isTransientTransportError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// SleepContext waits for d or until ctx is done
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
