package runs

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/MJE43/arenacore/internal/apperr"
)

const beginAttempts = 3

// Tracker implements begin/complete/fail over a Store.
type Tracker struct {
	store  Store
	ttl    TTLs
	now    func() time.Time
	logger *log.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the tracker logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker returns a Tracker. Zero TTL fields fall back to DefaultTTLs.
func NewTracker(store Store, ttl TTLs, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		ttl:    ttl.withDefaults(),
		now:    time.Now,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TTLs returns the effective expiry policy.
func (t *Tracker) TTLs() TTLs { return t.ttl }

// Begin claims requestID for ownerID. created is true only for the caller
// whose insert won; everyone else sees the existing record. A live record
// owned by someone else is a CONFLICT. Expired records count as absent.
func (t *Tracker) Begin(ctx context.Context, requestID, ownerID string) (Record, bool, error) {
	requestID = strings.TrimSpace(requestID)
	ownerID = strings.TrimSpace(ownerID)
	if requestID == "" {
		return Record{}, false, apperr.Validation("request_id", "request id is required")
	}
	if ownerID == "" {
		return Record{}, false, apperr.Validation("owner_id", "owner id is required")
	}

	for attempt := 0; attempt < beginAttempts; attempt++ {
		now := t.now().UTC()
		fresh := Record{
			RequestID: requestID,
			OwnerID:   ownerID,
			Status:    StatusInProgress,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(t.ttl.InProgress),
		}

		inserted, err := t.store.InsertRun(ctx, fresh)
		if err != nil {
			return Record{}, false, err
		}
		if inserted {
			t.logger.Printf("run_begin request=%s owner=%s", requestID, ownerID)
			return fresh, true, nil
		}

		existing, err := t.store.GetRun(ctx, requestID)
		if err != nil {
			if apperr.HasCode(err, apperr.CodeNotFound) {
				// swept between insert and read
				continue
			}
			return Record{}, false, err
		}

		if existing.Expired(now) {
			replaced, err := t.store.ReplaceExpiredRun(ctx, fresh, now)
			if err != nil {
				return Record{}, false, err
			}
			if replaced {
				t.logger.Printf("run_rearm request=%s owner=%s previous_status=%s previous_owner=%s",
					requestID, ownerID, existing.Status, existing.OwnerID)
				return fresh, true, nil
			}
			continue
		}

		if existing.OwnerID != ownerID {
			return Record{}, false, apperr.WithMetadata(apperr.CodeConflict,
				"request id is owned by another actor", map[string]string{"request_id": requestID})
		}
		return existing, false, nil
	}

	return Record{}, false, apperr.WithMetadata(apperr.CodeConflict,
		"request id is contended", map[string]string{"request_id": requestID})
}

// Complete marks an in_progress record completed. On a terminal record it
// is a no-op returning the stored outcome.
func (t *Tracker) Complete(ctx context.Context, requestID, resultRef string) (Record, error) {
	now := t.now().UTC()
	return t.finish(ctx, requestID, Record{
		Status:    StatusCompleted,
		ResultRef: resultRef,
		UpdatedAt: now,
		ExpiresAt: now.Add(t.ttl.Completed),
	})
}

// Fail marks an in_progress record failed with code and message. On a
// terminal record it is a no-op returning the stored outcome.
func (t *Tracker) Fail(ctx context.Context, requestID string, code apperr.Code, message string) (Record, error) {
	now := t.now().UTC()
	if code == "" {
		code = apperr.CodeInternal
	}
	return t.finish(ctx, requestID, Record{
		Status:       StatusFailed,
		ErrorCode:    string(code),
		ErrorMessage: message,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(t.ttl.Failed),
	})
}

// FailWith records err on the run, deriving the code from its apperr chain.
func (t *Tracker) FailWith(ctx context.Context, requestID string, err error) (Record, error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return t.Fail(ctx, requestID, ae.Code, ae.Message)
	}
	return t.Fail(ctx, requestID, apperr.CodeInternal, err.Error())
}

func (t *Tracker) finish(ctx context.Context, requestID string, terminal Record) (Record, error) {
	if strings.TrimSpace(requestID) == "" {
		return Record{}, apperr.Validation("request_id", "request id is required")
	}
	applied, err := t.store.FinishRun(ctx, requestID, terminal)
	if err != nil {
		return Record{}, err
	}
	rec, err := t.store.GetRun(ctx, requestID)
	if err != nil {
		return Record{}, err
	}
	if applied {
		t.logger.Printf("run_%s request=%s code=%s", rec.Status, requestID, rec.ErrorCode)
	}
	return rec, nil
}

// Get returns the live record for requestID. Expired records are NOT_FOUND.
func (t *Tracker) Get(ctx context.Context, requestID string) (Record, error) {
	rec, err := t.store.GetRun(ctx, requestID)
	if err != nil {
		return Record{}, err
	}
	if rec.Expired(t.now().UTC()) {
		return Record{}, apperr.WithMetadata(apperr.CodeNotFound, "run record expired",
			map[string]string{"request_id": requestID})
	}
	return rec, nil
}

// Sweep removes expired records and returns how many were deleted.
func (t *Tracker) Sweep(ctx context.Context) (int64, error) {
	return t.store.DeleteExpiredRuns(ctx, t.now().UTC())
}
