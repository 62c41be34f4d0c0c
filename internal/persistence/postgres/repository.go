// Package postgres provides pgx-backed persistence for the canonical
// store, the annotation store, and the source staging tables.
package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides Postgres-backed persistence for all training-log tables.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// WithClock overrides the audit-timestamp clock, for deterministic tests.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// All timestamps cross the storage boundary as ISO-8601 UTC text, e.g.
// "2025-01-15T05:30:00Z". Fixed-width UTC text compares lexicographically
// the same way it compares chronologically, which the candidate window
// query relies on.

func utcText(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseUTCText(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func utcTextPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := utcText(*t)
	return &s
}

func parseUTCTextPtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseUTCText(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const uniqueViolationCode = "23505"

// isUniqueViolation detects the constraint collision that the
// reconciliation flow converts into an update.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
