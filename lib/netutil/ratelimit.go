// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/baleproject/bale/lib/clock"
)

// RateLimitTracker tracks API rate limit state from X-RateLimit-*
// response headers. Each response updates the tracker; before a
// request is sent, Wait blocks until the reset window when the quota
// is known to be exhausted.
type RateLimitTracker struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	known     bool
	clock     clock.Clock
}

// NewRateLimitTracker returns a tracker using the given clock for
// waits and reset arithmetic.
func NewRateLimitTracker(clk clock.Clock) *RateLimitTracker {
	return &RateLimitTracker{clock: clk}
}

// Update records rate limit state from response headers. Responses
// without both X-RateLimit-Remaining and X-RateLimit-Reset leave the
// tracker unchanged, so APIs that never send them never block.
func (tracker *RateLimitTracker) Update(header http.Header) {
	remainingValue := header.Get("X-RateLimit-Remaining")
	resetValue := header.Get("X-RateLimit-Reset")
	if remainingValue == "" || resetValue == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingValue)
	if err != nil {
		return
	}
	resetUnix, err := strconv.ParseInt(resetValue, 10, 64)
	if err != nil {
		return
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.remaining = remaining
	tracker.reset = time.Unix(resetUnix, 0)
	tracker.known = true
}

// Wait blocks until the rate limit window resets if the tracker knows
// the quota is exhausted. It returns immediately when the quota is
// available, unknown, or the reset time has passed. The only error it
// returns is the context's.
func (tracker *RateLimitTracker) Wait(ctx context.Context) error {
	tracker.mu.Lock()
	if !tracker.known || tracker.remaining > 0 {
		tracker.mu.Unlock()
		return nil
	}
	sleep := tracker.reset.Sub(tracker.clock.Now())
	tracker.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	select {
	case <-tracker.clock.After(sleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryAfter computes the backoff duration from a limited response:
// Retry-After seconds first, then the X-RateLimit-Reset timestamp.
// Zero means no backoff information was present.
func (tracker *RateLimitTracker) RetryAfter(header http.Header) time.Duration {
	if retryValue := header.Get("Retry-After"); retryValue != "" {
		if seconds, err := strconv.Atoi(retryValue); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if resetValue := header.Get("X-RateLimit-Reset"); resetValue != "" {
		if resetUnix, err := strconv.ParseInt(resetValue, 10, 64); err == nil {
			duration := time.Unix(resetUnix, 0).Sub(tracker.clock.Now())
			if duration > 0 {
				return duration
			}
		}
	}
	return 0
}
