package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RateLimiter spaces out requests to one program's site.
type RateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	delay    time.Duration
}

// NewRateLimiter creates a new RateLimiter with the given minimum delay between calls.
func NewRateLimiter(delay time.Duration) *RateLimiter {
	return &RateLimiter{delay: delay}
}

// Wait blocks until enough time has passed since the last request or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elapsed := time.Since(r.lastCall); elapsed < r.delay {
		timer := time.NewTimer(r.delay - elapsed)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.lastCall = time.Now()
	return nil
}

// RetryWithBackoff calls fn up to maxAttempts times, sleeping attempt² × unit between tries.
// Context cancellation and ErrBlocked stop retrying.
func RetryWithBackoff(ctx context.Context, maxAttempts int, unit time.Duration, fn func() error, logger *slog.Logger) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * unit
			logger.Warn("Retrying", "attempt", attempt+1, "maxAttempts", maxAttempts, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Debug("Attempt failed", "attempt", attempt+1, "error", err)
		if errors.Is(err, ErrBlocked) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			break
		}
	}
	if maxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("all %d attempts failed, last error: %w", maxAttempts, lastErr)
}
