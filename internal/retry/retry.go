// Package retry runs fallible operations with exponential backoff and an
// optional write-through cache for successful results.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/a1betting/prop-engine/internal/cache"
)

// RetryExhausted is returned when every attempt failed. Err is the last failure.
type RetryExhausted struct {
	Attempts int
	Err      error
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhausted) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type hintedError struct {
	delay time.Duration
	err   error
}

func (e *hintedError) Error() string { return e.err.Error() }
func (e *hintedError) Unwrap() error { return e.err }

// After marks err as retryable after exactly d instead of the backoff delay,
// e.g. when the server sent a Retry-After header.
func After(d time.Duration, err error) error {
	if err == nil {
		return nil
	}
	return &hintedError{delay: d, err: err}
}

// Policy bounds the attempts of Do.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Sleep waits between attempts; defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do calls op up to p.MaxRetries times, sleeping BaseDelay*2^attempt after
// each failure except the last. It returns the first success, the unwrapped
// error of a Permanent failure, ctx's error if ctx ends, or *RetryExhausted.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		last = err
		if attempt == attempts-1 {
			break
		}

		delay := p.BaseDelay * time.Duration(1<<attempt)
		var hint *hintedError
		if errors.As(err, &hint) {
			delay = hint.delay
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	var hint *hintedError
	if errors.As(last, &hint) {
		last = hint.err
	}
	return zero, &RetryExhausted{Attempts: attempts, Err: last}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Cached memoizes successful results of retried operations in a TTL cache.
type Cached[T any] struct {
	cache  *cache.TTL[T]
	policy Policy
}

// NewCached wraps c with policy p.
func NewCached[T any](c *cache.TTL[T], p Policy) *Cached[T] {
	return &Cached[T]{cache: c, policy: p}
}

// Call returns the cached result for (name, args) if present, otherwise runs
// op under the retry policy and caches a success.
func (w *Cached[T]) Call(ctx context.Context, name string, op func(ctx context.Context) (T, error), args ...any) (T, error) {
	key := cache.Key(name, args...)
	if v, ok := w.cache.Get(key); ok {
		return v, nil
	}

	v, err := Do(ctx, w.policy, op)
	if err != nil {
		return v, err
	}
	w.cache.Set(key, v)
	return v, nil
}

// Len reports how many results are cached.
func (w *Cached[T]) Len() int {
	return w.cache.Len()
}
