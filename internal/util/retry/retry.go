// Package retry provides bounded retries with exponential backoff for
// idempotent external calls.
package retry

import (
	"context"
	"errors"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Config holds retry configuration.
type Config struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// Option is a functional option for retry configuration.
type Option func(*Config)

// Do executes op with exponential backoff between failed attempts.
// The delay doubles after each failure up to MaxDelay. Context
// cancellation is respected between attempts. On exhaustion the last
// attempt's error is returned unmodified.
//
// Errors wrapped with Fatal() stop the loop immediately. Only wrap
// operations here that are safe to re-invoke blindly.
func Do(ctx context.Context, op func() error, opts ...Option) error {
	cfg := &Config{
		Attempts: 5,
		Delay:    1 * time.Second,
		MaxDelay: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return retrygo.Do(op,
		retrygo.Context(ctx),
		retrygo.Attempts(cfg.Attempts),
		retrygo.Delay(cfg.Delay),
		retrygo.MaxDelay(cfg.MaxDelay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool { return !IsFatal(err) }),
	)
}

// Attempts sets the total number of attempts (not retries).
func Attempts(n uint) Option {
	return func(c *Config) {
		c.Attempts = n
	}
}

// Delay sets the initial delay between attempts.
func Delay(d time.Duration) Option {
	return func(c *Config) {
		c.Delay = d
	}
}

// MaxDelay caps the backoff delay.
func MaxDelay(d time.Duration) Option {
	return func(c *Config) {
		c.MaxDelay = d
	}
}

// FatalError wraps an error to mark it as fatal (non-retryable).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal marks an error as fatal (non-retryable). Broken trust
// relationships and account mismatches are fatal: they will not resolve
// by retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal checks if an error is fatal (non-retryable).
func IsFatal(err error) bool {
	var fatalErr *FatalError
	return errors.As(err, &fatalErr)
}
