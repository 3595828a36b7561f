// Package tournament runs all-pairs battle brackets and pays prizes through
// the economy ledger.
package tournament

import (
	"context"
	"time"

	"github.com/MJE43/arenacore/internal/sim"
)

// Status is the one-way tournament lifecycle.
type Status string

const (
	StatusOpen      Status = "open"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// PrizeStatus records what happened to an entry's prize step.
type PrizeStatus string

const (
	PrizeNone     PrizeStatus = "none"
	PrizePending  PrizeStatus = "pending"
	PrizePaid     PrizeStatus = "paid"
	PrizeFailed   PrizeStatus = "failed"
	PrizeRefunded PrizeStatus = "refunded"
)

const (
	MinEntries = 2
	MaxEntries = 64
)

// DefaultPrizeSplit is the percentage paid to ranks 1..4.
var DefaultPrizeSplit = []int{50, 30, 15, 5}

// Spec describes a tournament to create.
type Spec struct {
	Arena      string     `json:"arena"`
	League     sim.League `json:"league"`
	MaxEntries int        `json:"max_entries"`
	EntryFee   int64      `json:"entry_fee"`
	PrizeSplit []int      `json:"prize_split,omitempty"`
}

// Tournament is the persisted tournament state.
type Tournament struct {
	ID         string     `json:"id"`
	Arena      string     `json:"arena"`
	League     sim.League `json:"league"`
	MaxEntries int        `json:"max_entries"`
	EntryFee   int64      `json:"entry_fee"`
	PrizeSplit []int      `json:"prize_split"`
	SeedHex    string     `json:"seed,omitempty"`
	Status     Status     `json:"status"`
	PrizePool  int64      `json:"prize_pool"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Entries    []Entry    `json:"entries"`
}

// Full reports whether every seat is taken.
func (t Tournament) Full() bool {
	return len(t.Entries) >= t.MaxEntries
}

// Entry is one paid seat.
type Entry struct {
	ID           string          `json:"id"`
	TournamentID string          `json:"tournament_id"`
	OwnerID      string          `json:"owner_id"`
	SubjectID    string          `json:"subject_id"`
	Stats        sim.BattleStats `json:"stats"`
	PaidAmount   int64           `json:"paid_amount"`
	Position     int             `json:"position"`
	Wins         int             `json:"wins"`
	Rank         int             `json:"rank,omitempty"`
	Reward       int64           `json:"reward"`
	PrizeStatus  PrizeStatus     `json:"prize_status"`
	PrizeError   string          `json:"prize_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// JoinRequest is a request for a seat.
type JoinRequest struct {
	OwnerID   string          `json:"owner_id"`
	SubjectID string          `json:"subject_id"`
	Stats     sim.BattleStats `json:"stats"`
}

// Store persists tournaments. AddEntry and the status transitions must be
// atomic conditional writes.
type Store interface {
	CreateTournament(ctx context.Context, t Tournament) error
	// GetTournament returns the tournament with entries ordered by Position.
	GetTournament(ctx context.Context, id string) (Tournament, error)
	// AddEntry seats e while the tournament is open and not full, assigning
	// Position and adding PaidAmount to the pool. A second seat for the same
	// owner is a CONFLICT, as is a full or closed tournament.
	AddEntry(ctx context.Context, e Entry) (Entry, error)
	// StartBracket flips open to running and sets the seed if none is set.
	// Only one caller ever sees started == true.
	StartBracket(ctx context.Context, id, seedHex string, now time.Time) (started bool, err error)
	SaveStandings(ctx context.Context, id string, entries []Entry) error
	// ClaimPrize moves an entry's prize step from none to pending while its
	// tournament is running. Only one caller ever sees claimed == true.
	ClaimPrize(ctx context.Context, entryID string) (claimed bool, err error)
	RecordPrize(ctx context.Context, entryID string, reward int64, status PrizeStatus, prizeErr string) error
	// TransitionStatus moves id from one status to another, reporting
	// whether this caller performed the move.
	TransitionStatus(ctx context.Context, id string, from, to Status, now time.Time) (bool, error)
	// CancelStalled moves a running tournament to cancelled only while no
	// entry's prize step has left none.
	CancelStalled(ctx context.Context, id string, now time.Time) (bool, error)
}
