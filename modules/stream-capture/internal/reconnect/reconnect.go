// Package reconnect retries a session with exponential backoff.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrMaxRetries is returned by Run once Config.MaxRetries consecutive
// attempts have failed.
var ErrMaxRetries = errors.New("reconnect: max retries exceeded")

// Config contains configuration for exponential backoff reconnection
type Config struct {
	MaxRetries    int           // Maximum consecutive failed attempts (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultConfig returns default reconnection configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// State tracks the current state of reconnection attempts.
//
// CurrentRetries is only touched by the goroutine running Run (and the
// AttemptFunc it calls). Reconnects may be read concurrently.
type State struct {
	CurrentRetries int
	Reconnects     uint32
}

// Reset clears the consecutive failure count after a healthy run.
func (s *State) Reset() {
	if s.CurrentRetries != 0 {
		slog.Debug("reconnect: state reset", "after_retries", s.CurrentRetries)
	}
	s.CurrentRetries = 0
}

// Total returns the number of retries performed so far.
func (s *State) Total() uint32 {
	return atomic.LoadUint32(&s.Reconnects)
}

// AttemptFunc runs one attempt. Returning nil ends Run; an error schedules
// a retry. An attempt that ran healthily for a while should call
// State.Reset before returning its error so the backoff starts over.
type AttemptFunc func(ctx context.Context) error

// Run executes attempt with exponential backoff between failures.
//
// Backoff schedule with the default config:
//   - Retry 1: 1 second
//   - Retry 2: 2 seconds
//   - Retry 3: 4 seconds
//   - Retry 4: 8 seconds
//   - Retry 5: 16 seconds
//   - After 5 failures: ErrMaxRetries wrapping the last error
//
// Returns ctx.Err() when the context is cancelled.
func Run(ctx context.Context, attempt AttemptFunc, cfg Config, state *State) error {
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("reconnect: context cancelled, stopping reconnection")
			return err
		}

		err := attempt(ctx)
		if err == nil {
			state.CurrentRetries = 0
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		state.CurrentRetries++
		if state.CurrentRetries > cfg.MaxRetries {
			slog.Error("reconnect: giving up", "error", err, "max_retries", cfg.MaxRetries)
			return fmt.Errorf("%w (%d attempts): %w", ErrMaxRetries, cfg.MaxRetries, err)
		}
		atomic.AddUint32(&state.Reconnects, 1)

		delay := Backoff(state.CurrentRetries, cfg)

		slog.Warn("reconnect: retrying",
			"error", err,
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			slog.Info("reconnect: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// Backoff calculates the exponential backoff delay for a given attempt
//
// Formula: delay = retryDelay * 2^(attempt-1)
// Cap: min(delay, maxRetryDelay)
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Past 2^30 the shift overflows; the cap applies long before.
	if attempt > 31 {
		return cfg.MaxRetryDelay
	}

	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))

	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}

	return delay
}
