package domain

import (
	"encoding"
	"time"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ModerationTask is a row of the task ledger, the source of truth for the
// lifecycle of one asynchronous moderation request. Rows are created pending
// and move exactly once to completed or failed; terminal rows never change.
type ModerationTask struct {
	TaskID       int64      `json:"task_id"`
	ListingID    int64      `json:"listing_id"`
	Status       TaskStatus `json:"status"`
	IsViolation  *bool      `json:"is_violation,omitempty"`
	Probability  *float64   `json:"probability,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

var (
	_ encoding.BinaryMarshaler = TaskStatus("")
	_ encoding.TextMarshaler   = TaskStatus("")
)

func (s TaskStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s TaskStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }
