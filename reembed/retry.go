// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Retrier runs an operation until it succeeds, fails permanently or runs
// out of attempts. The delay before attempt n+1 is baseDelay * 2^(n-1).
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	retryable   func(error) bool
	logger      *slog.Logger
}

// RetryOption configures a Retrier.
type RetryOption func(*Retrier)

// WithRetryLogger sets the logger attempts are reported to.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *Retrier) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRetryable sets the predicate deciding whether a failed attempt is
// worth repeating. It is consulted after Permanent errors and context
// errors, which are never retried.
func WithRetryable(fn func(error) bool) RetryOption {
	return func(r *Retrier) {
		r.retryable = fn
	}
}

// NewRetrier creates a Retrier making at most maxAttempts attempts.
func NewRetrier(maxAttempts int, baseDelay time.Duration, opts ...RetryOption) *Retrier {
	r := &Retrier{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs operation. A failure that cannot be fixed by repeating it is
// returned at once, unwrapped from Permanent. Otherwise the error of the
// last attempt is returned.
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	if r.maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	delay := r.baseDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			if attempt > 1 {
				r.logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			r.logger.Debug("operation failed permanently", "attempt", attempt, "err", perm.err)
			return perm.err
		}
		if !r.shouldRetry(err) {
			r.logger.Debug("operation failed, not retrying", "attempt", attempt, "err", err)
			return err
		}
		if attempt == r.maxAttempts {
			r.logger.Warn("operation failed, attempts exhausted", "attempts", attempt, "err", err)
			return err
		}
		r.logger.Debug("operation failed, will retry",
			"attempt", attempt, "max_attempts", r.maxAttempts, "delay", delay, "err", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return r.retryable == nil || r.retryable(err)
}

// permanentError marks a failure that repeating the operation cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so a Retrier stops at once and returns err.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
