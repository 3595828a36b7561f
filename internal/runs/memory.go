package runs

import (
	"context"
	"sync"
	"time"

	"github.com/MJE43/arenacore/internal/apperr"
)

// MemoryStore is a process-local Store. The mutex plays the role of the
// unique index on request id.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) InsertRun(_ context.Context, rec Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.RequestID]; exists {
		return false, nil
	}
	m.records[rec.RequestID] = rec
	return true, nil
}

func (m *MemoryStore) GetRun(_ context.Context, requestID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[requestID]
	if !ok {
		return Record{}, apperr.WithMetadata(apperr.CodeNotFound, "run record not found",
			map[string]string{"request_id": requestID})
	}
	return rec, nil
}

func (m *MemoryStore) ReplaceExpiredRun(_ context.Context, rec Record, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.RequestID]
	if !ok || !cur.Expired(now) {
		return false, nil
	}
	m.records[rec.RequestID] = rec
	return true, nil
}

func (m *MemoryStore) FinishRun(_ context.Context, requestID string, terminal Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[requestID]
	if !ok {
		return false, apperr.WithMetadata(apperr.CodeNotFound, "run record not found",
			map[string]string{"request_id": requestID})
	}
	if cur.Status != StatusInProgress {
		return false, nil
	}
	cur.Status = terminal.Status
	cur.ErrorCode = terminal.ErrorCode
	cur.ErrorMessage = terminal.ErrorMessage
	cur.ResultRef = terminal.ResultRef
	cur.UpdatedAt = terminal.UpdatedAt
	cur.ExpiresAt = terminal.ExpiresAt
	m.records[requestID] = cur
	return true, nil
}

func (m *MemoryStore) DeleteExpiredRuns(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if rec.Expired(now) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}
