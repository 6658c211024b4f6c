package engine

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/campaignforge/forge/pkg/schema"
)

// BackoffPolicy maps a zero-based attempt number to the delay before the
// next attempt.
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same duration after every failed attempt.
// The default reproduces the service's observed rate-limit recovery time.
type FixedBackoff time.Duration

func (b FixedBackoff) Delay(int) time.Duration { return time.Duration(b) }

// LinearBackoff waits Base * (attempt+1), capped at Max when Max > 0.
type LinearBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b LinearBackoff) Delay(attempt int) time.Duration {
	d := b.Base * time.Duration(attempt+1)
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// ExponentialBackoff waits Base * 2^attempt, capped at Max when Max > 0.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d > b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Wait sleeps for the given duration or returns early if the context is
// cancelled. Every fixed delay in a run goes through here so cancellation
// is observed at each suspension point.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryableError classifies whether a failure looks transient.
// Cancellation never does; typed errors answer for themselves; network
// failures and common transient service responses do.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var fe *schema.ForgeError
	if errors.As(err, &fe) {
		return fe.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"internal server error",
		"too many requests",
		"resource exhausted",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	// Unknown failures default to transient.
	return true
}
