package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026101601

// OpenDB opens the pool shared by the repositories.
func OpenDB(dsn string) (*sql.DB, error) {
	return openPool(dsn, 20, 10)
}

func openPool(dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS submissions (
	id BIGSERIAL PRIMARY KEY,
	author_id BIGINT NOT NULL,
	conference_id BIGINT NOT NULL,
	title TEXT NOT NULL,
	authors TEXT NOT NULL DEFAULT '',
	abstract TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	final_file TEXT NOT NULL DEFAULT '',
	conversion_state TEXT NOT NULL DEFAULT 'none',
	conversion_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT submissions_author_conference_key UNIQUE (author_id, conference_id)
);

CREATE INDEX IF NOT EXISTS idx_submissions_conference_status ON submissions(conference_id, status);

CREATE TABLE IF NOT EXISTS submission_versions (
	id BIGSERIAL PRIMARY KEY,
	submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
	number INTEGER NOT NULL,
	source_file TEXT NOT NULL,
	original_filename TEXT NOT NULL DEFAULT '',
	size_bytes BIGINT NOT NULL DEFAULT 0,
	author_comment TEXT NOT NULL DEFAULT '',
	organizer_comment TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT submission_versions_number_key UNIQUE (submission_id, number)
);

CREATE TABLE IF NOT EXISTS proceedings (
	id BIGSERIAL PRIMARY KEY,
	conference_id BIGINT NOT NULL UNIQUE,
	file TEXT NOT NULL,
	submission_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	page_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}
