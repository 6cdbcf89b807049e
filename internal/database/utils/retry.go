// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/gofrs/uuid"

	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/pkg/log"
)

// RetryPolicy bounds retries of connection-level operations.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy returns a default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// NewRetryPolicy builds a policy from configured attempts and base delay.
func NewRetryPolicy(attempts int, baseDelay time.Duration) *RetryPolicy {
	policy := DefaultRetryPolicy()
	if attempts > 0 {
		policy.MaxAttempts = attempts
	}
	if baseDelay > 0 {
		policy.InitialDelay = baseDelay
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	return policy
}

// IsRetryableError reports whether err is a transient store failure. Caller errors such as
// not-found or invalid filters are never retried.
func IsRetryableError(err error) bool {
	return errors.Is(err, interfaces.ErrStoreUnavailable)
}

// CalculateBackoffDelay calculates the delay before retry number attempt (0-based).
func CalculateBackoffDelay(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil {
		return time.Second
	}

	delay := policy.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * policy.BackoffFactor)
		if delay > policy.MaxDelay {
			return policy.MaxDelay
		}
	}
	return delay
}

// ExecuteWithRetry runs fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts.
func ExecuteWithRetry(ctx context.Context, policy *RetryPolicy, op string, fn func(ctx context.Context) error) error {
	if policy == nil || policy.MaxAttempts <= 1 {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts-1 || !IsRetryableError(err) {
			break
		}

		delay := CalculateBackoffDelay(attempt, policy)
		log.Warn("%s failed (attempt %d/%d), retrying in %v: %v", op, attempt+1, policy.MaxAttempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// GenerateSessionID generates a unique unit-of-work identifier
func GenerateSessionID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("sess_%d", time.Now().UnixNano())
	}
	return "sess_" + id.String()
}
