package economy

import "context"

// Context describes who and what a ledger movement is for.
type Context struct {
	OwnerID string `json:"owner_id"`
	Arena   string `json:"arena,omitempty"`
	League  string `json:"league,omitempty"`
	Reason  string `json:"reason"`
	Ref     string `json:"ref,omitempty"`
}

// Result is a pass/fail ledger decision.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Ledger is the economy the settlement core draws from. Implementations are
// atomic with respect to balances; a declined movement changes nothing.
type Ledger interface {
	// Debit removes amount from ec.OwnerID's balance.
	Debit(ctx context.Context, amount int64, ec Context) (Result, error)
	// Credit adds amount to ec.OwnerID's balance.
	Credit(ctx context.Context, amount int64, ec Context) error
	// TryEmit checks window and cap for ec.Arena and, if allowed, records the
	// emission. It never credits anyone.
	TryEmit(ctx context.Context, amount int64, ec Context) (Result, error)
	// Config returns the current sanitized cap configuration.
	Config(ctx context.Context) (CapConfiguration, error)
}

// ConfigWriter persists a sanitized cap configuration.
type ConfigWriter interface {
	SaveConfig(ctx context.Context, cfg CapConfiguration) error
}

// BalanceReader exposes balances for the read side of the API.
type BalanceReader interface {
	BalanceOf(ctx context.Context, ownerID string) (int64, error)
}
