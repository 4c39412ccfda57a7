package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a task or listing does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTerminal is returned when a terminal ledger row is asked to
	// transition again.
	ErrTerminal = errors.New("task already terminal")

	// ErrUnavailable wraps transient storage failures so callers can surface
	// a retryable-service error instead of leaking driver errors.
	ErrUnavailable = errors.New("storage unavailable")
)

// Postgres error codes worth distinguishing at the ledger boundary.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

// mapPgError converts driver errors into repository sentinels, preserving the
// original error for logging via %w.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode, foreignKeyViolationCode:
			return fmt.Errorf("constraint violation (%s): %w", pgErr.ConstraintName, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
