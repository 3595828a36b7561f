// Package settlement settles battles exactly once per request id: it charges
// the entry fee, runs the seeded battle, mints the reward within emission caps
// and records the outcome.
package settlement

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/economy"
	"github.com/MJE43/arenacore/internal/engine"
	"github.com/MJE43/arenacore/internal/journal"
	"github.com/MJE43/arenacore/internal/runs"
	"github.com/MJE43/arenacore/internal/sim"
)

// BattleModeKey separates battle seeds from other modes sharing a request id.
const BattleModeKey = "battle"

// BattleRequest is one settlement request.
type BattleRequest struct {
	RequestID      string          `json:"request_id"`
	OwnerID        string          `json:"owner_id"`
	SubjectID      string          `json:"subject_id"`
	Stats          sim.BattleStats `json:"stats"`
	Arena          string          `json:"arena"`
	League         sim.League      `json:"league"`
	CounterpartyID string          `json:"counterparty_id,omitempty"`
	EntryFee       int64           `json:"entry_fee"`
}

// BattleRecord is a persisted settled battle.
type BattleRecord struct {
	ID             string          `json:"id"`
	RequestID      string          `json:"request_id"`
	OwnerID        string          `json:"owner_id"`
	SubjectID      string          `json:"subject_id"`
	Arena          string          `json:"arena"`
	League         sim.League      `json:"league"`
	CounterpartyID string          `json:"counterparty_id,omitempty"`
	Stats          sim.BattleStats `json:"stats"`
	Weights        sim.Weights     `json:"weights"`
	Seed           engine.Seed     `json:"seed"`
	Score          int             `json:"score"`
	EntryFee       int64           `json:"entry_fee"`
	Reward         int64           `json:"reward"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Outcome is what a settlement call returns. Replayed is true when the
// request id had already been seen.
type Outcome struct {
	Run      runs.Record   `json:"run"`
	Battle   *BattleRecord `json:"battle,omitempty"`
	Replayed bool          `json:"replayed"`
}

// Verification compares a stored battle with a fresh replay of its seed.
type Verification struct {
	ResultID      string      `json:"result_id"`
	Seed          engine.Seed `json:"seed"`
	StoredScore   int         `json:"stored_score"`
	ReplayedScore int         `json:"replayed_score"`
	Match         bool        `json:"match"`
}

// ResultStore persists settled battles.
type ResultStore interface {
	SaveBattle(ctx context.Context, rec BattleRecord) error
	GetBattle(ctx context.Context, id string) (BattleRecord, error)
	// DeleteBattle removes a battle whose settlement was unwound. A missing
	// id is not an error.
	DeleteBattle(ctx context.Context, id string) error
}

// RewardRates maps a league to the currency minted per point of score.
type RewardRates map[sim.League]decimal.Decimal

// DefaultRewardRates pays one unit per point, scaled by league.
func DefaultRewardRates() RewardRates {
	return RewardRates{
		sim.LeagueRookie: decimal.NewFromInt(1),
		sim.LeaguePro:    decimal.RequireFromString("1.2"),
		sim.LeagueElite:  decimal.RequireFromString("1.5"),
	}
}

// Reward returns floor(score * rate[league]).
func (r RewardRates) Reward(league sim.League, score int) int64 {
	rate, ok := r[league]
	if !ok || score <= 0 {
		return 0
	}
	return decimal.NewFromInt(int64(score)).Mul(rate).Floor().IntPart()
}

// Config carries the injected secrets and tables.
type Config struct {
	SeedKey     []byte
	Arenas      sim.Arenas
	RewardRates RewardRates
}

// Service settles battles.
type Service struct {
	tracker *runs.Tracker
	ledger  economy.Ledger
	results ResultStore
	journal journal.Recorder
	cfg     Config
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
}

// NewService wires a Service. journal and logger may be nil.
func NewService(cfg Config, tracker *runs.Tracker, ledger economy.Ledger, results ResultStore, rec journal.Recorder, logger *log.Logger) *Service {
	if cfg.Arenas == nil {
		cfg.Arenas = sim.DefaultArenas()
	}
	if cfg.RewardRates == nil {
		cfg.RewardRates = DefaultRewardRates()
	}
	if rec == nil {
		rec = journal.Nop{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		tracker: tracker,
		ledger:  ledger,
		results: results,
		journal: rec,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

func (r BattleRequest) validate(arenas sim.Arenas) (sim.Weights, error) {
	if strings.TrimSpace(r.SubjectID) == "" {
		return sim.Weights{}, apperr.Validation("subject_id", "subject id is required")
	}
	if r.EntryFee < 0 {
		return sim.Weights{}, apperr.Validation("entry_fee", "entry fee must be non-negative")
	}
	if _, ok := r.League.Multiplier(); !ok {
		return sim.Weights{}, apperr.Validation("league", "unknown league "+string(r.League))
	}
	return arenas.Lookup(r.Arena)
}

// SettleBattle settles req at most once per request id. A repeated request
// returns the stored run (and battle, when completed) without touching the
// ledger again.
func (s *Service) SettleBattle(ctx context.Context, req BattleRequest) (Outcome, error) {
	weights, err := req.validate(s.cfg.Arenas)
	if err != nil {
		return Outcome{}, err
	}

	run, created, err := s.tracker.Begin(ctx, req.RequestID, req.OwnerID)
	if err != nil {
		return Outcome{}, err
	}
	if !created {
		return s.replay(ctx, run)
	}

	battle, err := s.execute(ctx, req, weights)
	if err != nil {
		failed, ferr := s.tracker.FailWith(ctx, req.RequestID, err)
		if ferr != nil {
			s.logger.Printf("settle_fail_record_failed request=%s err=%v", req.RequestID, ferr)
			return Outcome{}, err
		}
		s.logger.Printf("settle_failed request=%s code=%s", req.RequestID, failed.ErrorCode)
		return Outcome{Run: failed}, err
	}

	done, err := s.tracker.Complete(ctx, req.RequestID, battle.ID)
	if err != nil {
		return Outcome{}, err
	}
	if jerr := s.journal.Record(journal.KindBattleSettled, battle); jerr != nil {
		s.logger.Printf("journal_write_failed kind=%s result=%s err=%v", journal.KindBattleSettled, battle.ID, jerr)
	}
	s.logger.Printf("settle_completed request=%s result=%s score=%d reward=%d", req.RequestID, battle.ID, battle.Score, battle.Reward)
	return Outcome{Run: done, Battle: &battle}, nil
}

func (s *Service) replay(ctx context.Context, run runs.Record) (Outcome, error) {
	out := Outcome{Run: run, Replayed: true}
	if run.Status != runs.StatusCompleted || run.ResultRef == "" {
		return out, nil
	}
	battle, err := s.results.GetBattle(ctx, run.ResultRef)
	if err != nil {
		return Outcome{}, err
	}
	out.Battle = &battle
	return out, nil
}

func (s *Service) execute(ctx context.Context, req BattleRequest, weights sim.Weights) (BattleRecord, error) {
	ec := economy.Context{
		OwnerID: req.OwnerID,
		Arena:   req.Arena,
		League:  string(req.League),
		Ref:     req.RequestID,
	}

	if req.EntryFee > 0 {
		ec.Reason = "battle_entry_fee"
		res, err := s.ledger.Debit(ctx, req.EntryFee, ec)
		if err != nil {
			return BattleRecord{}, err
		}
		if !res.OK {
			return BattleRecord{}, apperr.WithMetadata(apperr.CodeInsufficientFunds, "entry fee declined",
				map[string]string{"reason": res.Reason})
		}
	}

	seed := engine.DeriveSeed(s.cfg.SeedKey, engine.SeedMessage{
		ActorID:        req.OwnerID,
		SubjectID:      req.SubjectID,
		ModeKey:        BattleModeKey,
		Arena:          req.Arena,
		League:         string(req.League),
		RequestID:      req.RequestID,
		CounterpartyID: req.CounterpartyID,
	})
	result, err := sim.SimulateBattle(sim.BattleInput{Stats: req.Stats, Weights: weights, League: req.League, Seed: seed})
	if err != nil {
		s.refund(ctx, req.EntryFee, ec)
		return BattleRecord{}, err
	}

	rec := BattleRecord{
		ID:             s.newID(),
		RequestID:      req.RequestID,
		OwnerID:        req.OwnerID,
		SubjectID:      req.SubjectID,
		Arena:          req.Arena,
		League:         req.League,
		CounterpartyID: req.CounterpartyID,
		Stats:          req.Stats,
		Weights:        weights,
		Seed:           seed,
		Score:          result.Score,
		EntryFee:       req.EntryFee,
		Reward:         s.cfg.RewardRates.Reward(req.League, result.Score),
		CreatedAt:      s.now().UTC(),
	}

	// Stored before any currency is minted.
	if err := s.results.SaveBattle(ctx, rec); err != nil {
		s.refund(ctx, req.EntryFee, ec)
		return BattleRecord{}, err
	}

	if rec.Reward > 0 {
		ec.Reason = "battle_reward"
		res, err := s.ledger.TryEmit(ctx, rec.Reward, ec)
		if err != nil {
			s.unwind(ctx, rec, ec)
			return BattleRecord{}, err
		}
		if !res.OK {
			s.unwind(ctx, rec, ec)
			return BattleRecord{}, apperr.WithMetadata(apperr.CodeEmissionCapExceeded, "reward emission declined",
				map[string]string{"reason": res.Reason, "arena": req.Arena})
		}
		if err := s.ledger.Credit(ctx, rec.Reward, ec); err != nil {
			// The emission stays counted; the cap only ever over-reports.
			s.unwind(ctx, rec, ec)
			return BattleRecord{}, err
		}
	}
	return rec, nil
}

// unwind drops a stored battle whose reward was never paid and refunds its
// entry fee.
func (s *Service) unwind(ctx context.Context, rec BattleRecord, ec economy.Context) {
	if err := s.results.DeleteBattle(ctx, rec.ID); err != nil {
		s.logger.Printf("battle_unwind_failed result=%s ref=%s err=%v", rec.ID, ec.Ref, err)
	}
	s.refund(ctx, rec.EntryFee, ec)
}

func (s *Service) refund(ctx context.Context, amount int64, ec economy.Context) {
	if amount <= 0 {
		return
	}
	ec.Reason = "battle_entry_refund"
	if err := s.ledger.Credit(ctx, amount, ec); err != nil {
		s.logger.Printf("refund_failed owner=%s amount=%d ref=%s err=%v", ec.OwnerID, amount, ec.Ref, err)
		return
	}
	s.logger.Printf("refund_issued owner=%s amount=%d ref=%s", ec.OwnerID, amount, ec.Ref)
}

// VerifyBattle replays a stored battle from its seed and inputs.
func (s *Service) VerifyBattle(ctx context.Context, resultID string) (Verification, error) {
	if strings.TrimSpace(resultID) == "" {
		return Verification{}, apperr.Validation("result_id", "result id is required")
	}
	rec, err := s.results.GetBattle(ctx, resultID)
	if err != nil {
		return Verification{}, err
	}
	replayed, err := sim.SimulateBattle(sim.BattleInput{
		Stats:   rec.Stats,
		Weights: rec.Weights,
		League:  rec.League,
		Seed:    rec.Seed,
	})
	if err != nil {
		return Verification{}, err
	}
	return Verification{
		ResultID:      rec.ID,
		Seed:          rec.Seed,
		StoredScore:   rec.Score,
		ReplayedScore: replayed.Score,
		Match:         replayed.Score == rec.Score,
	}, nil
}
