// Package runs tracks settlement requests by idempotency key so a retried
// request observes the first outcome instead of executing twice.
package runs

import (
	"context"
	"time"
)

// Status is the lifecycle state of a run record.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is the idempotency record for one request id.
type Record struct {
	RequestID    string    `json:"request_id"`
	OwnerID      string    `json:"owner_id"`
	Status       Status    `json:"status"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ResultRef    string    `json:"result_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TTLs bounds how long each state is remembered.
type TTLs struct {
	InProgress time.Duration `yaml:"in_progress" json:"in_progress"`
	Completed  time.Duration `yaml:"completed" json:"completed"`
	Failed     time.Duration `yaml:"failed" json:"failed"`
}

// DefaultTTLs returns the production expiry policy.
func DefaultTTLs() TTLs {
	return TTLs{
		InProgress: 2 * time.Minute,
		Completed:  24 * time.Hour,
		Failed:     time.Hour,
	}
}

func (t TTLs) withDefaults() TTLs {
	d := DefaultTTLs()
	if t.InProgress <= 0 {
		t.InProgress = d.InProgress
	}
	if t.Completed <= 0 {
		t.Completed = d.Completed
	}
	if t.Failed <= 0 {
		t.Failed = d.Failed
	}
	return t
}

// Store persists run records. InsertRun must be atomic on RequestID: of any
// number of concurrent inserts for one id exactly one reports inserted.
type Store interface {
	InsertRun(ctx context.Context, rec Record) (inserted bool, err error)
	// GetRun returns a NOT_FOUND error when no row exists, expired or not.
	GetRun(ctx context.Context, requestID string) (Record, error)
	// ReplaceExpiredRun overwrites the row for rec.RequestID only if it
	// expired at or before now.
	ReplaceExpiredRun(ctx context.Context, rec Record, now time.Time) (bool, error)
	// FinishRun applies a terminal status only if the row is in_progress.
	FinishRun(ctx context.Context, requestID string, terminal Record) (bool, error)
	DeleteExpiredRuns(ctx context.Context, now time.Time) (int64, error)
}
