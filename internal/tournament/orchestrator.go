package tournament

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/economy"
	"github.com/MJE43/arenacore/internal/engine"
	"github.com/MJE43/arenacore/internal/journal"
	"github.com/MJE43/arenacore/internal/sim"
)

// PrizeFailure is one prize step that did not pay.
type PrizeFailure struct {
	EntryID string `json:"entry_id"`
	OwnerID string `json:"owner_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

// Report is the outcome of a bracket run.
type Report struct {
	Tournament    Tournament     `json:"tournament"`
	Matches       []Match        `json:"matches"`
	PrizeFailures []PrizeFailure `json:"prize_failures,omitempty"`
}

// JoinResult is the outcome of Join. Bracket is set when this join filled
// the tournament and this caller ran the bracket.
type JoinResult struct {
	Entry      Entry      `json:"entry"`
	Tournament Tournament `json:"tournament"`
	Bracket    *Report    `json:"bracket,omitempty"`
}

// Orchestrator owns the tournament lifecycle.
type Orchestrator struct {
	store        Store
	ledger       economy.Ledger
	journal      journal.Recorder
	arenas       sim.Arenas
	defaultSplit []int
	logger       *log.Logger
	now          func() time.Time
	newID        func() string
	newSeed      func() (string, error)
}

// NewOrchestrator wires an Orchestrator. rec and logger may be nil; a nil
// split uses DefaultPrizeSplit.
func NewOrchestrator(store Store, ledger economy.Ledger, arenas sim.Arenas, split []int, rec journal.Recorder, logger *log.Logger) *Orchestrator {
	if arenas == nil {
		arenas = sim.DefaultArenas()
	}
	if len(split) == 0 {
		split = DefaultPrizeSplit
	}
	if rec == nil {
		rec = journal.Nop{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Orchestrator{
		store:        store,
		ledger:       ledger,
		journal:      rec,
		arenas:       arenas,
		defaultSplit: append([]int(nil), split...),
		logger:       logger,
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
		newSeed:      engine.NewSeedHex,
	}
}

// Create validates spec and stores an open tournament.
func (o *Orchestrator) Create(ctx context.Context, spec Spec) (Tournament, error) {
	if _, err := o.arenas.Lookup(spec.Arena); err != nil {
		return Tournament{}, err
	}
	if _, ok := spec.League.Multiplier(); !ok {
		return Tournament{}, apperr.Validation("league", "unknown league "+string(spec.League))
	}
	if spec.MaxEntries < MinEntries || spec.MaxEntries > MaxEntries {
		return Tournament{}, apperr.Validation("max_entries", fmt.Sprintf("max entries must be between %d and %d", MinEntries, MaxEntries))
	}
	if spec.EntryFee < 0 {
		return Tournament{}, apperr.Validation("entry_fee", "entry fee must be non-negative")
	}
	split := spec.PrizeSplit
	if len(split) == 0 {
		split = o.defaultSplit
	}
	if err := ValidateSplit(split); err != nil {
		return Tournament{}, err
	}

	now := o.now().UTC()
	t := Tournament{
		ID:         o.newID(),
		Arena:      spec.Arena,
		League:     spec.League,
		MaxEntries: spec.MaxEntries,
		EntryFee:   spec.EntryFee,
		PrizeSplit: append([]int(nil), split...),
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.CreateTournament(ctx, t); err != nil {
		return Tournament{}, err
	}
	o.logger.Printf("tournament_created id=%s arena=%s league=%s max_entries=%d fee=%d", t.ID, t.Arena, t.League, t.MaxEntries, t.EntryFee)
	return t, nil
}

// Get returns a tournament with its entries.
func (o *Orchestrator) Get(ctx context.Context, id string) (Tournament, error) {
	if strings.TrimSpace(id) == "" {
		return Tournament{}, apperr.Validation("tournament_id", "tournament id is required")
	}
	return o.store.GetTournament(ctx, id)
}

// Join pays the entry fee and takes a seat. Any failure after the debit
// refunds the fee. The join that fills the tournament runs the bracket.
func (o *Orchestrator) Join(ctx context.Context, tournamentID string, req JoinRequest) (JoinResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return JoinResult{}, apperr.Validation("owner_id", "owner id is required")
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		return JoinResult{}, apperr.Validation("subject_id", "subject id is required")
	}
	t, err := o.Get(ctx, tournamentID)
	if err != nil {
		return JoinResult{}, err
	}
	if t.Status != StatusOpen {
		return JoinResult{}, apperr.WithMetadata(apperr.CodeConflict, "tournament is not open",
			map[string]string{"status": string(t.Status)})
	}

	ec := economy.Context{
		OwnerID: req.OwnerID,
		Arena:   t.Arena,
		League:  string(t.League),
		Ref:     t.ID,
	}
	if t.EntryFee > 0 {
		ec.Reason = "tournament_entry_fee"
		res, err := o.ledger.Debit(ctx, t.EntryFee, ec)
		if err != nil {
			return JoinResult{}, err
		}
		if !res.OK {
			return JoinResult{}, apperr.WithMetadata(apperr.CodeInsufficientFunds, "entry fee declined",
				map[string]string{"reason": res.Reason})
		}
	}

	entry, err := o.store.AddEntry(ctx, Entry{
		ID:           o.newID(),
		TournamentID: t.ID,
		OwnerID:      req.OwnerID,
		SubjectID:    req.SubjectID,
		Stats:        req.Stats,
		PaidAmount:   t.EntryFee,
		PrizeStatus:  PrizeNone,
		CreatedAt:    o.now().UTC(),
	})
	if err != nil {
		o.refund(ctx, t.EntryFee, ec, "tournament_entry_refund")
		return JoinResult{}, err
	}
	o.logger.Printf("tournament_joined id=%s entry=%s owner=%s position=%d", t.ID, entry.ID, entry.OwnerID, entry.Position)

	out := JoinResult{Entry: entry}
	var bracketErr error
	if entry.Position+1 >= t.MaxEntries {
		report, err := o.RunBracket(ctx, t.ID)
		switch {
		case err == nil:
			out.Bracket = &report
		case apperr.HasCode(err, apperr.CodeConflict):
			// another caller already started it
		default:
			bracketErr = err
			o.logger.Printf("tournament_bracket_failed id=%s err=%v", t.ID, err)
		}
	}

	out.Tournament, err = o.store.GetTournament(ctx, t.ID)
	if err != nil {
		return JoinResult{}, err
	}
	if bracketErr != nil {
		// the seat is paid and kept; the caller learns the bracket is stalled
		return out, &apperr.Error{
			Code:     apperr.CodeOf(bracketErr),
			Message:  "entry recorded but the bracket did not finish; resume or cancel the tournament",
			Metadata: map[string]string{"tournament_id": t.ID, "entry_id": entry.ID},
			Cause:    bracketErr,
		}
	}
	return out, nil
}

// RunBracket runs the round-robin once. Only the caller that flips the
// tournament from open to running proceeds; every other caller gets CONFLICT.
func (o *Orchestrator) RunBracket(ctx context.Context, id string) (Report, error) {
	t, err := o.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if t.Status != StatusOpen {
		return Report{}, apperr.WithMetadata(apperr.CodeConflict, "bracket already run",
			map[string]string{"status": string(t.Status)})
	}
	if len(t.Entries) < MinEntries {
		return Report{}, apperr.WithMetadata(apperr.CodeConflict, "not enough entries",
			map[string]string{"entries": fmt.Sprint(len(t.Entries))})
	}
	weights, err := o.arenas.Lookup(t.Arena)
	if err != nil {
		return Report{}, err
	}

	seed := t.SeedHex
	if seed == "" {
		if seed, err = o.newSeed(); err != nil {
			return Report{}, apperr.Wrap(apperr.CodeInternal, "generate tournament seed", err)
		}
	}
	started, err := o.store.StartBracket(ctx, t.ID, seed, o.now().UTC())
	if err != nil {
		return Report{}, err
	}
	if !started {
		return Report{}, apperr.New(apperr.CodeConflict, "bracket already run")
	}
	return o.finishBracket(ctx, t.ID, weights)
}

// ResumeBracket finishes a tournament left running by a bracket run that
// failed part way. The seed is already fixed, so standings come out the
// same; prize steps that were already claimed are not repeated.
func (o *Orchestrator) ResumeBracket(ctx context.Context, id string) (Report, error) {
	t, err := o.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if t.Status != StatusRunning {
		return Report{}, apperr.WithMetadata(apperr.CodeConflict, "only running tournaments can be resumed",
			map[string]string{"status": string(t.Status)})
	}
	weights, err := o.arenas.Lookup(t.Arena)
	if err != nil {
		return Report{}, err
	}
	o.logger.Printf("tournament_bracket_resumed id=%s", t.ID)
	return o.finishBracket(ctx, t.ID, weights)
}

// finishBracket runs everything after the open->running flip. Every step is
// safe to repeat, so a failure here leaves the tournament resumable.
func (o *Orchestrator) finishBracket(ctx context.Context, id string, weights sim.Weights) (Report, error) {
	// re-read: the seed kept is whichever was stored first, and the entry
	// list is frozen now that the status left open
	t, err := o.store.GetTournament(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if t.SeedHex == "" {
		return Report{}, apperr.New(apperr.CodeInternal, "running tournament has no seed")
	}
	o.logger.Printf("tournament_bracket_started id=%s entries=%d seed_hash=%s", t.ID, len(t.Entries), engine.HashSeed(t.SeedHex))

	stats := make([]sim.BattleStats, len(t.Entries))
	for i, e := range t.Entries {
		stats[i] = e.Stats
	}
	standings, matches, err := RoundRobin(stats, t.SeedHex, weights, t.League)
	if err != nil {
		return Report{}, err
	}

	ranked := make([]Entry, len(standings))
	for i, st := range standings {
		e := t.Entries[st.Index]
		e.Wins = st.Wins
		e.Rank = st.Rank
		ranked[i] = e
	}
	if err := o.store.SaveStandings(ctx, t.ID, ranked); err != nil {
		return Report{}, err
	}

	failures := o.payPrizes(ctx, t, ranked)

	moved, err := o.store.TransitionStatus(ctx, t.ID, StatusRunning, StatusCompleted, o.now().UTC())
	if err != nil {
		return Report{}, err
	}
	final, err := o.store.GetTournament(ctx, t.ID)
	if err != nil {
		return Report{}, err
	}
	if !moved && final.Status != StatusCompleted {
		return Report{}, apperr.WithMetadata(apperr.CodeConflict, "tournament left running during the bracket",
			map[string]string{"status": string(final.Status)})
	}

	report := Report{Tournament: final, Matches: matches, PrizeFailures: failures}
	if moved {
		if jerr := o.journal.Record(journal.KindBracketCompleted, report); jerr != nil {
			o.logger.Printf("journal_write_failed kind=%s id=%s err=%v", journal.KindBracketCompleted, t.ID, jerr)
		}
	}
	o.logger.Printf("tournament_completed id=%s pool=%d prize_failures=%d", t.ID, final.PrizePool, len(failures))
	return report, nil
}

// payPrizes runs one emit+credit step per paid rank. A failed step is
// recorded on its entry and never retried into a credit here.
func (o *Orchestrator) payPrizes(ctx context.Context, t Tournament, ranked []Entry) []PrizeFailure {
	shares := PrizeShares(t.PrizePool, t.PrizeSplit)
	var (
		failures []PrizeFailure
		combined error
	)
	for i, e := range ranked {
		if i >= len(shares) {
			break
		}
		amount := shares[i]
		if amount <= 0 {
			continue
		}
		if reason := o.payPrize(ctx, t, e, amount); reason != "" {
			failures = append(failures, PrizeFailure{EntryID: e.ID, OwnerID: e.OwnerID, Amount: amount, Reason: reason})
			combined = multierr.Append(combined, fmt.Errorf("entry %s: %s", e.ID, reason))
		}
	}
	if combined != nil {
		o.logger.Printf("tournament_prize_failures id=%s err=%v", t.ID, combined)
	}
	return failures
}

func (o *Orchestrator) payPrize(ctx context.Context, t Tournament, e Entry, amount int64) string {
	ec := economy.Context{
		OwnerID: e.OwnerID,
		Arena:   t.Arena,
		League:  string(t.League),
		Reason:  "tournament_prize",
		Ref:     t.ID + ":" + e.ID,
	}

	fail := func(reason string) string {
		if err := o.store.RecordPrize(ctx, e.ID, 0, PrizeFailed, reason); err != nil {
			o.logger.Printf("tournament_prize_record_failed entry=%s err=%v", e.ID, err)
		}
		return reason
	}

	claimed, err := o.store.ClaimPrize(ctx, e.ID)
	if err != nil {
		return fail("claim: " + err.Error())
	}
	if !claimed {
		// paid, failed or in flight elsewhere, or the tournament left running
		return ""
	}

	res, err := o.ledger.TryEmit(ctx, amount, ec)
	if err != nil {
		return fail("emit: " + err.Error())
	}
	if !res.OK {
		return fail(string(apperr.CodeEmissionCapExceeded) + ": " + res.Reason)
	}
	if err := o.ledger.Credit(ctx, amount, ec); err != nil {
		return fail("credit: " + err.Error())
	}
	if err := o.store.RecordPrize(ctx, e.ID, amount, PrizePaid, ""); err != nil {
		// credited but not recorded; surface it without undoing the credit
		o.logger.Printf("tournament_prize_record_failed entry=%s amount=%d err=%v", e.ID, amount, err)
	}
	return ""
}

// Cancel closes a tournament and refunds every paid seat. Open tournaments
// can always be cancelled; a running one only while no prize step has started.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (Tournament, error) {
	t, err := o.Get(ctx, id)
	if err != nil {
		return Tournament{}, err
	}
	now := o.now().UTC()
	ok, err := o.store.TransitionStatus(ctx, t.ID, StatusOpen, StatusCancelled, now)
	if err != nil {
		return Tournament{}, err
	}
	if !ok {
		if ok, err = o.store.CancelStalled(ctx, t.ID, now); err != nil {
			return Tournament{}, err
		}
		if ok {
			o.logger.Printf("tournament_stalled_cancelled id=%s", t.ID)
		}
	}
	if !ok {
		return Tournament{}, apperr.WithMetadata(apperr.CodeConflict, "tournament is past the point of cancellation",
			map[string]string{"status": string(t.Status)})
	}

	t, err = o.store.GetTournament(ctx, t.ID)
	if err != nil {
		return Tournament{}, err
	}
	var refundErr error
	for _, e := range t.Entries {
		if e.PaidAmount <= 0 {
			continue
		}
		ec := economy.Context{OwnerID: e.OwnerID, Arena: t.Arena, League: string(t.League), Reason: "tournament_cancel_refund", Ref: t.ID}
		if err := o.ledger.Credit(ctx, e.PaidAmount, ec); err != nil {
			refundErr = multierr.Append(refundErr, fmt.Errorf("refund entry %s: %w", e.ID, err))
			if rerr := o.store.RecordPrize(ctx, e.ID, 0, PrizeFailed, "refund: "+err.Error()); rerr != nil {
				o.logger.Printf("tournament_refund_record_failed entry=%s err=%v", e.ID, rerr)
			}
			continue
		}
		if rerr := o.store.RecordPrize(ctx, e.ID, 0, PrizeRefunded, ""); rerr != nil {
			// refunded but not recorded; the movement is in the ledger
			o.logger.Printf("tournament_refund_record_failed entry=%s amount=%d err=%v", e.ID, e.PaidAmount, rerr)
		}
	}
	if refundErr != nil {
		o.logger.Printf("tournament_refund_failures id=%s err=%v", t.ID, refundErr)
	}
	if jerr := o.journal.Record(journal.KindTournamentCanceled, t); jerr != nil {
		o.logger.Printf("journal_write_failed kind=%s id=%s err=%v", journal.KindTournamentCanceled, t.ID, jerr)
	}
	o.logger.Printf("tournament_cancelled id=%s refunded_entries=%d", t.ID, len(t.Entries))

	final, err := o.store.GetTournament(ctx, t.ID)
	if err != nil {
		return Tournament{}, err
	}
	return final, refundErr
}

func (o *Orchestrator) refund(ctx context.Context, amount int64, ec economy.Context, reason string) {
	if amount <= 0 {
		return
	}
	ec.Reason = reason
	if err := o.ledger.Credit(ctx, amount, ec); err != nil {
		o.logger.Printf("refund_failed owner=%s amount=%d ref=%s err=%v", ec.OwnerID, amount, ec.Ref, err)
	}
}
