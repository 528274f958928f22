// Package dbretry retries database operations that fail for transient reasons.
package dbretry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	maxElapsedTime  = 30 * time.Second
	initialInterval = 500 * time.Millisecond
	maxInterval     = 5 * time.Second
	maxRetries      = 5
)

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// retryableClasses are SQLSTATE classes worth retrying:
// connection exceptions, transaction rollbacks, insufficient resources and operator intervention.
var retryableClasses = []string{"08", "40", "53", "57"}

// retryableCodes are individual SQLSTATEs outside those classes worth retrying.
var retryableCodes = map[string]struct{}{
	"55006": {}, // object_in_use
	"55P03": {}, // lock_not_available
}

// transientMessages are fragments of network errors raised below the protocol layer.
var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"connection refused",
	"no connection",
	"i/o timeout",
	"EOF",
}

// sqlState returns the SQLSTATE of a PostgreSQL error, or "" for other errors.
func sqlState(err error) string {
	var pgerr pgdriver.Error
	if errors.As(err, &pgerr) {
		return pgerr.Field('C')
	}

	return ""
}

// IsUniqueViolation reports whether the error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	return sqlState(err) == uniqueViolation
}

// IsRetryableError reports whether retrying the failed operation may succeed.
// Cancellation of the caller's context is never retryable.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if code := sqlState(err); code != "" {
		if _, ok := retryableCodes[code]; ok {
			return true
		}

		for _, class := range retryableClasses {
			if strings.HasPrefix(code, class) {
				return true
			}
		}

		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	for _, fragment := range transientMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// policy returns the backoff used for every retried operation, bound to ctx.
func policy(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(maxElapsedTime),
		backoff.WithInitialInterval(initialInterval),
		backoff.WithMaxInterval(maxInterval),
	), maxRetries), ctx)
}

// Operation runs a database operation, retrying transient failures.
// Non-retryable errors are returned unchanged after the first attempt.
func Operation[T any](ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	attempts := 0

	result, err := backoff.RetryWithData(func() (T, error) {
		attempts++

		result, err := operation(ctx)
		if err != nil && !IsRetryableError(err) {
			return result, backoff.Permanent(err)
		}

		return result, err
	}, policy(ctx))

	if err != nil && IsRetryableError(err) {
		return result, fmt.Errorf("database operation failed after %d attempts: %w", attempts, err)
	}

	return result, nil
}

// NoResult runs a database operation without a result, retrying transient failures.
func NoResult(ctx context.Context, operation func(context.Context) error) error {
	_, err := Operation(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})

	return err
}

// Transaction runs fn in a transaction, retrying the whole transaction on transient failures.
func Transaction(ctx context.Context, db *bun.DB, fn func(context.Context, bun.Tx) error) error {
	return NoResult(ctx, func(ctx context.Context) error {
		return db.RunInTx(ctx, nil, fn)
	})
}
