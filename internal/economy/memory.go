package economy

import (
	"context"
	"sync"
	"time"

	"github.com/MJE43/arenacore/internal/apperr"
)

// MemoryLedger is a process-local Ledger used by tests and single-node
// development runs.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	emitted  map[string]int64
	cfg      CapConfiguration
	now      func() time.Time
}

// NewMemoryLedger returns an empty ledger enforcing cfg.
func NewMemoryLedger(cfg CapConfiguration) *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
		emitted:  make(map[string]int64),
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock overrides the clock used for windows and day buckets.
func (m *MemoryLedger) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetConfig replaces the cap configuration.
func (m *MemoryLedger) SetConfig(cfg CapConfiguration) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// SaveConfig implements ConfigWriter.
func (m *MemoryLedger) SaveConfig(_ context.Context, cfg CapConfiguration) error {
	m.SetConfig(cfg)
	return nil
}

// BalanceOf implements BalanceReader.
func (m *MemoryLedger) BalanceOf(_ context.Context, owner string) (int64, error) {
	return m.Balance(owner), nil
}

// Balance returns owner's balance.
func (m *MemoryLedger) Balance(owner string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner]
}

// EmittedToday returns what arena emitted in the current UTC day.
func (m *MemoryLedger) EmittedToday(arena string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitted[emissionKey(arena, m.now())]
}

func (m *MemoryLedger) Debit(_ context.Context, amount int64, ec Context) (Result, error) {
	if amount < 0 {
		return Result{}, apperr.Validation("amount", "amount must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[ec.OwnerID] < amount {
		return Result{OK: false, Reason: "insufficient_balance"}, nil
	}
	m.balances[ec.OwnerID] -= amount
	return Result{OK: true}, nil
}

func (m *MemoryLedger) Credit(_ context.Context, amount int64, ec Context) error {
	if amount < 0 {
		return apperr.Validation("amount", "amount must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[ec.OwnerID] += amount
	return nil
}

func (m *MemoryLedger) TryEmit(_ context.Context, amount int64, ec Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	key := emissionKey(ec.Arena, now)
	res := m.cfg.CheckEmission(ec, amount, m.emitted[key], now)
	if res.OK {
		m.emitted[key] += amount
	}
	return res, nil
}

func (m *MemoryLedger) Config(context.Context) (CapConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, nil
}

// DayKey is the UTC day bucket emissions are counted in.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func emissionKey(arena string, t time.Time) string {
	return arena + "|" + DayKey(t)
}
