package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/admarket/moderation/pkg/domain"
)

// LedgerRepository is the durable record of every moderation task. It is the
// source of truth for task state; the cache only ever holds derived copies.
type LedgerRepository interface {
	// CreateTask inserts a pending row and returns it with its assigned id.
	CreateTask(ctx context.Context, listingID int64) (*domain.ModerationTask, error)
	// CompleteTask transitions a pending row to completed with the verdict.
	// Terminal rows are left untouched and ErrTerminal is returned.
	CompleteTask(ctx context.Context, taskID int64, isViolation bool, probability float64) error
	// FailTask transitions a pending row to failed with the error text.
	// Terminal rows are left untouched and ErrTerminal is returned.
	FailTask(ctx context.Context, taskID int64, errMsg string) error
	GetTask(ctx context.Context, taskID int64) (*domain.ModerationTask, error)
	// LatestPendingForListing resolves the newest pending task for a listing,
	// used when a bus message carries no task id.
	LatestPendingForListing(ctx context.Context, listingID int64) (*domain.ModerationTask, error)
	// TaskIDsForListing enumerates every task ever created for a listing.
	TaskIDsForListing(ctx context.Context, listingID int64) ([]int64, error)
}

// DB is the subset of pgxpool.Pool the repositories depend on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ledgerPgRepo struct {
	db DB
}

func NewLedgerRepository(db DB) LedgerRepository {
	return &ledgerPgRepo{db: db}
}

func (r *ledgerPgRepo) CreateTask(ctx context.Context, listingID int64) (*domain.ModerationTask, error) {
	query := `
		INSERT INTO moderation_tasks (listing_id, status)
		VALUES ($1, 'pending')
		RETURNING id, created_at
	`
	t := domain.ModerationTask{ListingID: listingID, Status: domain.StatusPending}
	if err := r.db.QueryRow(ctx, query, listingID).Scan(&t.TaskID, &t.CreatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &t, nil
}

func (r *ledgerPgRepo) CompleteTask(ctx context.Context, taskID int64, isViolation bool, probability float64) error {
	query := `
		UPDATE moderation_tasks
		SET status = 'completed',
		    is_violation = $1,
		    probability = $2,
		    processed_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, isViolation, probability, taskID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyNoRows(ctx, taskID)
	}
	return nil
}

func (r *ledgerPgRepo) FailTask(ctx context.Context, taskID int64, errMsg string) error {
	query := `
		UPDATE moderation_tasks
		SET status = 'failed',
		    error_message = $1,
		    processed_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, errMsg, taskID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyNoRows(ctx, taskID)
	}
	return nil
}

// classifyNoRows decides whether a guarded update missed because the row is
// absent or because it is already terminal.
func (r *ledgerPgRepo) classifyNoRows(ctx context.Context, taskID int64) error {
	t, err := r.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: task %d is %s", ErrTerminal, taskID, t.Status)
	}
	return fmt.Errorf("%w: task %d not updated", ErrUnavailable, taskID)
}

func (r *ledgerPgRepo) GetTask(ctx context.Context, taskID int64) (*domain.ModerationTask, error) {
	query := `
		SELECT id, listing_id, status, is_violation, probability,
		       COALESCE(error_message, ''), created_at, processed_at
		FROM moderation_tasks
		WHERE id = $1
	`
	return r.scanTask(r.db.QueryRow(ctx, query, taskID))
}

func (r *ledgerPgRepo) LatestPendingForListing(ctx context.Context, listingID int64) (*domain.ModerationTask, error) {
	query := `
		SELECT id, listing_id, status, is_violation, probability,
		       COALESCE(error_message, ''), created_at, processed_at
		FROM moderation_tasks
		WHERE listing_id = $1 AND status = 'pending'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.scanTask(r.db.QueryRow(ctx, query, listingID))
}

func (r *ledgerPgRepo) TaskIDsForListing(ctx context.Context, listingID int64) ([]int64, error) {
	query := `SELECT id FROM moderation_tasks WHERE listing_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, listingID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, mapPgError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return ids, nil
}

func (r *ledgerPgRepo) scanTask(row pgx.Row) (*domain.ModerationTask, error) {
	var t domain.ModerationTask
	err := row.Scan(&t.TaskID, &t.ListingID, &t.Status, &t.IsViolation,
		&t.Probability, &t.ErrorMessage, &t.CreatedAt, &t.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: task", ErrNotFound)
		}
		return nil, mapPgError(err)
	}
	return &t, nil
}

// EnsureSchema creates the ledger and listing tables when they do not exist.
// The composite index supports latest-pending-for-listing resolution.
func EnsureSchema(ctx context.Context, db DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sellers (
			seller_id   BIGSERIAL PRIMARY KEY,
			username    TEXT NOT NULL,
			email       TEXT NOT NULL,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS listings (
			listing_id  BIGSERIAL PRIMARY KEY,
			seller_id   BIGINT NOT NULL REFERENCES sellers (seller_id),
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category    INT NOT NULL DEFAULT 0,
			images_qty  INT NOT NULL DEFAULT 0,
			is_closed   BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS moderation_tasks (
			id            BIGSERIAL PRIMARY KEY,
			listing_id    BIGINT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'pending',
			is_violation  BOOLEAN,
			probability   DOUBLE PRECISION,
			error_message TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at  TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_moderation_tasks_listing_status_created
			ON moderation_tasks (listing_id, status, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return mapPgError(err)
		}
	}
	return nil
}
