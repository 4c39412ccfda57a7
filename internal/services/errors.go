package services

import "errors"

var (
	// ErrQueueUnavailable means the bus rejected a publish; the ledger row
	// was created and marked failed before this is returned.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrLedgerUnavailable wraps transient storage failures surfaced to API
	// callers as a retryable-service condition.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)
