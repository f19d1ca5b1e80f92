package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// postgresRetryMaxElapsed bounds how long withRetry keeps retrying a transient
// Postgres error before giving up, grounded on the teacher's serverRetryMaxElapsed
// (internal/storage/dolt/store.go).
const postgresRetryMaxElapsed = 30 * time.Second

func newPostgresRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = postgresRetryMaxElapsed
	return bo
}

// withRetry retries op with exponential backoff when it fails with a transient
// connection error, the way the teacher's DoltStore.withRetry does for its
// server-mode MySQL driver. SQLite runs a single in-process connection with no
// network in the loop, so it has nothing transient to retry against — only
// Postgres op calls pay the backoff cost.
func withRetry(ctx context.Context, dialect Dialect, op func() error) error {
	if dialect != DialectPostgres {
		return op()
	}
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err // retryable - backoff will retry
		}
		if err != nil {
			return backoff.Permanent(err) // non-retryable - stop immediately
		}
		return nil
	}, backoff.WithContext(newPostgresRetryBackoff(), ctx))
}

// isRetryableError reports whether err looks like a transient connection
// error worth retrying, grounded on the teacher's isRetryableError
// (internal/storage/dolt/store.go), adapted from MySQL's error vocabulary to
// lib/pq's.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "driver: bad connection"),
		strings.Contains(errStr, "invalid connection"),
		strings.Contains(errStr, "broken pipe"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "i/o timeout"),
		strings.Contains(errStr, "too many connections"),
		strings.Contains(errStr, "the database system is starting up"):
		return true
	}
	return false
}
