package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"
)

// AdvisoryLocker hands out session-level advisory locks. Each lease pins its own
// connection, so leases exclude each other across goroutines and processes.
//
// The pool must not be the one the repositories use: a lease holder queries
// through the repositories, and a shared pool fills up with lease connections
// whose holders all wait for one more.
type AdvisoryLocker struct {
	db *sql.DB
}

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// OpenLeaseDB opens the pool reserved for advisory leases. Lease holders never
// need a second lease connection, so waiters here only wait for releases.
func OpenLeaseDB(dsn string, maxLeases int) (*sql.DB, error) {
	if maxLeases < 1 {
		maxLeases = 1
	}
	return openPool(dsn, maxLeases, min(maxLeases, 4))
}

// LeasePoolSize covers every request the API admits at once plus the worker's handlers.
func LeasePoolSize(apiMaxInFlight, workerConcurrency int) int {
	return max(apiMaxInFlight, 0) + max(workerConcurrency, 0) + 2
}

func (l *AdvisoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve lock connection: %w", err)
	}
	lockID := advisoryKey(key)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquire advisory lock %q: %w", key, err)
	}

	release := func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, lockID); err != nil {
			slog.Warn("advisory_unlock_failed", "key", key, "error", err)
			// Drop the session so the server releases the lock with it.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
	}
	return release, nil
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
