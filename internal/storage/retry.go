package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres conditions under which a key transaction is rerun from scratch.
var retriableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && retriableCodes[pgErr.Code]
}

// backoff returns the wait before retry n (0-based): base doubled n times
// plus up to the same amount of jitter.
func backoff(base time.Duration, n int) time.Duration {
	d := base << n
	if d <= 0 {
		return base
	}
	return d + time.Duration(rand.Int64N(int64(d))) //nolint:gosec // jitter only
}

// WithRetry calls fn until it succeeds, fails with a non-retriable error or
// has been retried maxRetries times. The last error is returned.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	err := fn()
	for n := 0; n < maxRetries && isRetriable(err); n++ {
		t := time.NewTimer(backoff(baseDelay, n))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		err = fn()
	}
	return err
}
