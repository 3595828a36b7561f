package tournament

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MJE43/arenacore/internal/apperr"
)

// MemoryStore is a process-local Store guarded by one mutex.
type MemoryStore struct {
	mu          sync.Mutex
	tournaments map[string]Tournament
	entries     map[string]Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tournaments: make(map[string]Tournament),
		entries:     make(map[string]Entry),
	}
}

func (m *MemoryStore) CreateTournament(_ context.Context, t Tournament) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tournaments[t.ID]; exists {
		return apperr.New(apperr.CodeConflict, "tournament already exists")
	}
	t.Entries = nil
	m.tournaments[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTournament(_ context.Context, id string) (Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *MemoryStore) getLocked(id string) (Tournament, error) {
	t, ok := m.tournaments[id]
	if !ok {
		return Tournament{}, apperr.WithMetadata(apperr.CodeNotFound, "tournament not found",
			map[string]string{"tournament_id": id})
	}
	t.PrizeSplit = append([]int(nil), t.PrizeSplit...)
	t.Entries = nil
	for _, e := range m.entries {
		if e.TournamentID == id {
			t.Entries = append(t.Entries, e)
		}
	}
	sort.Slice(t.Entries, func(a, b int) bool { return t.Entries[a].Position < t.Entries[b].Position })
	return t, nil
}

func (m *MemoryStore) AddEntry(_ context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.getLocked(e.TournamentID)
	if err != nil {
		return Entry{}, err
	}
	if t.Status != StatusOpen {
		return Entry{}, apperr.New(apperr.CodeConflict, "tournament is not open")
	}
	if t.Full() {
		return Entry{}, apperr.New(apperr.CodeConflict, "tournament is full")
	}
	for _, existing := range t.Entries {
		if existing.OwnerID == e.OwnerID {
			return Entry{}, apperr.New(apperr.CodeConflict, "owner already entered")
		}
	}
	e.Position = len(t.Entries)
	m.entries[e.ID] = e

	stored := m.tournaments[t.ID]
	stored.PrizePool += e.PaidAmount
	m.tournaments[t.ID] = stored
	return e, nil
}

func (m *MemoryStore) StartBracket(_ context.Context, id, seedHex string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok {
		return false, apperr.New(apperr.CodeNotFound, "tournament not found")
	}
	if t.Status != StatusOpen {
		return false, nil
	}
	t.Status = StatusRunning
	if t.SeedHex == "" {
		t.SeedHex = seedHex
	}
	t.UpdatedAt = now
	m.tournaments[id] = t
	return true, nil
}

func (m *MemoryStore) SaveStandings(_ context.Context, _ string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		cur, ok := m.entries[e.ID]
		if !ok {
			return apperr.New(apperr.CodeNotFound, "entry not found")
		}
		cur.Wins = e.Wins
		cur.Rank = e.Rank
		m.entries[e.ID] = cur
	}
	return nil
}

func (m *MemoryStore) RecordPrize(_ context.Context, entryID string, reward int64, status PrizeStatus, prizeErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[entryID]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "entry not found")
	}
	cur.Reward = reward
	cur.PrizeStatus = status
	cur.PrizeError = prizeErr
	m.entries[entryID] = cur
	return nil
}

func (m *MemoryStore) TransitionStatus(_ context.Context, id string, from, to Status, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok {
		return false, apperr.New(apperr.CodeNotFound, "tournament not found")
	}
	if t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = now
	m.tournaments[id] = t
	return true, nil
}

func (m *MemoryStore) ClaimPrize(_ context.Context, entryID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[entryID]
	if !ok {
		return false, apperr.New(apperr.CodeNotFound, "entry not found")
	}
	if cur.PrizeStatus != PrizeNone || m.tournaments[cur.TournamentID].Status != StatusRunning {
		return false, nil
	}
	cur.PrizeStatus = PrizePending
	m.entries[entryID] = cur
	return true, nil
}

func (m *MemoryStore) CancelStalled(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok {
		return false, apperr.New(apperr.CodeNotFound, "tournament not found")
	}
	if t.Status != StatusRunning {
		return false, nil
	}
	for _, e := range m.entries {
		if e.TournamentID == id && e.PrizeStatus != PrizeNone {
			return false, nil
		}
	}
	t.Status = StatusCancelled
	t.UpdatedAt = now
	m.tournaments[id] = t
	return true, nil
}
