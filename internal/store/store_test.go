package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/economy"
	"github.com/MJE43/arenacore/internal/runs"
	"github.com/MJE43/arenacore/internal/settlement"
	"github.com/MJE43/arenacore/internal/sim"
	"github.com/MJE43/arenacore/internal/tournament"
	"github.com/MJE43/arenacore/internal/vault"
)

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath, Options{Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  ", Options{}); !apperr.HasCode(err, apperr.CodeValidation) {
		t.Fatalf("Open(blank) error = %v, want VALIDATION_ERROR", err)
	}
}

func TestDriverErrorClassification(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	insert := `INSERT INTO battle_results (id, request_id, owner_id, subject_id, arena, league, counterparty_id,
		stats_json, weights_json, seed, score, entry_fee, reward, created_at)
		VALUES ('b-1', 'req-1', 'u', 's', 'prediction', 'pro', '', '{}', '{}', 1, 1, 0, 0, 0)`
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		t.Fatalf("first insert error = %v", err)
	}
	_, dupErr := s.db.ExecContext(ctx, insert)
	if dupErr == nil {
		t.Fatal("duplicate insert succeeded")
	}

	tests := []struct {
		name           string
		err            error
		wantConstraint bool
	}{
		{"driver constraint", dupErr, true},
		{"wrapped constraint", fmt.Errorf("save: %w", dupErr), true},
		{"look-alike text", errors.New("UNIQUE constraint failed: database is locked"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConstraintErr(tt.err); got != tt.wantConstraint {
				t.Errorf("isConstraintErr() = %v, want %v", got, tt.wantConstraint)
			}
			if isBusyErr(tt.err) {
				t.Error("isBusyErr() = true, want false")
			}
		})
	}
}

func TestRunsInsertIsUnique(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	rec := runs.Record{
		RequestID: "req-1", OwnerID: "alice", Status: runs.StatusInProgress,
		CreatedAt: testNow, UpdatedAt: testNow, ExpiresAt: testNow.Add(time.Minute),
	}
	ok, err := s.InsertRun(ctx, rec)
	if err != nil || !ok {
		t.Fatalf("first InsertRun() = %v, %v", ok, err)
	}
	ok, err = s.InsertRun(ctx, rec)
	if err != nil || ok {
		t.Fatalf("second InsertRun() = %v, %v, want false", ok, err)
	}

	got, err := s.GetRun(ctx, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerID != "alice" || got.Status != runs.StatusInProgress || !got.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Errorf("GetRun() = %+v", got)
	}
	if _, err := s.GetRun(ctx, "missing"); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("GetRun(missing) error = %v", err)
	}
}

func TestRunsFinishAndExpiry(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	rec := runs.Record{
		RequestID: "req-2", OwnerID: "alice", Status: runs.StatusInProgress,
		CreatedAt: testNow, UpdatedAt: testNow, ExpiresAt: testNow.Add(time.Minute),
	}
	if _, err := s.InsertRun(ctx, rec); err != nil {
		t.Fatal(err)
	}

	replaced, err := s.ReplaceExpiredRun(ctx, rec, testNow)
	if err != nil || replaced {
		t.Fatalf("ReplaceExpiredRun(live) = %v, %v", replaced, err)
	}

	done := runs.Record{Status: runs.StatusCompleted, ResultRef: "battle-1", UpdatedAt: testNow, ExpiresAt: testNow.Add(time.Hour)}
	if ok, err := s.FinishRun(ctx, "req-2", done); err != nil || !ok {
		t.Fatalf("FinishRun() = %v, %v", ok, err)
	}
	if ok, err := s.FinishRun(ctx, "req-2", runs.Record{Status: runs.StatusFailed}); err != nil || ok {
		t.Fatalf("second FinishRun() = %v, %v, want false", ok, err)
	}
	if _, err := s.FinishRun(ctx, "missing", done); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("FinishRun(missing) error = %v", err)
	}

	later := testNow.Add(2 * time.Hour)
	fresh := rec
	fresh.OwnerID = "bob"
	fresh.ExpiresAt = later.Add(time.Minute)
	if ok, err := s.ReplaceExpiredRun(ctx, fresh, later); err != nil || !ok {
		t.Fatalf("ReplaceExpiredRun(expired) = %v, %v", ok, err)
	}
	got, _ := s.GetRun(ctx, "req-2")
	if got.OwnerID != "bob" || got.Status != runs.StatusInProgress || got.ResultRef != "" {
		t.Errorf("replaced record = %+v", got)
	}

	n, err := s.DeleteExpiredRuns(ctx, later.Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredRuns() = %d, %v", n, err)
	}
}

func TestTrackerConcurrentBegin(t *testing.T) {
	s := openTest(t)
	tracker := runs.NewTracker(s, runs.DefaultTTLs(), runs.WithClock(func() time.Time { return testNow }))

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, isNew, err := tracker.Begin(context.Background(), "req-race", "alice")
			if err != nil {
				t.Errorf("Begin() error = %v", err)
				return
			}
			if isNew {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	if created.Load() != 1 {
		t.Fatalf("created = %d, want 1", created.Load())
	}
}

func TestLedgerDebitCredit(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	ec := economy.Context{OwnerID: "alice", Reason: "test"}

	res, err := s.Debit(ctx, 10, ec)
	if err != nil || res.OK {
		t.Fatalf("Debit(empty) = %+v, %v", res, err)
	}
	if err := s.Credit(ctx, 100, ec); err != nil {
		t.Fatal(err)
	}
	if err := s.Credit(ctx, 50, ec); err != nil {
		t.Fatal(err)
	}
	res, err = s.Debit(ctx, 120, ec)
	if err != nil || !res.OK {
		t.Fatalf("Debit() = %+v, %v", res, err)
	}
	res, err = s.Debit(ctx, 31, ec)
	if err != nil || res.OK || res.Reason != reasonInsufficientBalance {
		t.Fatalf("Debit(over) = %+v, %v", res, err)
	}
	if bal, _ := s.BalanceOf(ctx, "alice"); bal != 30 {
		t.Errorf("balance = %d, want 30", bal)
	}
	if _, err := s.Debit(ctx, -1, ec); !apperr.HasCode(err, apperr.CodeValidation) {
		t.Errorf("Debit(-1) error = %v", err)
	}
}

func TestLedgerTryEmit(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	cfg, err := s.Config(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Caps) != 0 {
		t.Fatalf("default config = %+v, want empty", cfg)
	}
	if err := s.SaveConfig(ctx, economy.CapConfiguration{
		Caps:    map[string]int64{"prediction": 100},
		Windows: map[string]economy.Window{"racing": {StartHourUTC: 0, EndHourUTC: 6}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SeedConfig(ctx, economy.CapConfiguration{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		arena  string
		amount int64
		ok     bool
		reason string
	}{
		{"under cap", "prediction", 60, true, ""},
		{"reaches cap", "prediction", 40, true, ""},
		{"over cap", "prediction", 1, false, economy.ReasonCapExceeded},
		{"outside window", "racing", 1, false, economy.ReasonOutsideWindow},
		{"uncapped", "strategy", 1_000_000, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.TryEmit(ctx, tt.amount, economy.Context{Arena: tt.arena})
			if err != nil {
				t.Fatal(err)
			}
			if res.OK != tt.ok || res.Reason != tt.reason {
				t.Errorf("TryEmit() = %+v, want ok=%v reason=%q", res, tt.ok, tt.reason)
			}
		})
	}
	if got, _ := s.EmittedOn(ctx, "prediction", economy.DayKey(testNow)); got != 100 {
		t.Errorf("emitted = %d, want 100", got)
	}
}

func TestBattleResults(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	rec := settlement.BattleRecord{
		ID: "b-1", RequestID: "req-1", OwnerID: "alice", SubjectID: "broker-1",
		Arena: "prediction", League: sim.LeaguePro,
		Stats:   sim.BattleStats{Intelligence: 60, Speed: 50, Risk: 30},
		Weights: sim.Weights{Intelligence: 0.5, Speed: 0.3, Risk: 0.2},
		Seed:    4_000_000_000, Score: 77, EntryFee: 10, Reward: 92, CreatedAt: testNow,
	}
	if err := s.SaveBattle(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetBattle(ctx, "b-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Seed != rec.Seed || got.Stats != rec.Stats || got.Weights != rec.Weights || !got.CreatedAt.Equal(testNow) {
		t.Errorf("GetBattle() = %+v", got)
	}
	dup := rec
	dup.ID = "b-2"
	if err := s.SaveBattle(ctx, dup); err == nil {
		t.Error("SaveBattle(same request) succeeded")
	}
	if _, err := s.GetBattle(ctx, "nope"); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("GetBattle(missing) error = %v", err)
	}

	if err := s.DeleteBattle(ctx, "b-1"); err != nil {
		t.Fatalf("DeleteBattle() error = %v", err)
	}
	if _, err := s.GetBattle(ctx, "b-1"); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("GetBattle(deleted) error = %v", err)
	}
	if err := s.DeleteBattle(ctx, "b-1"); err != nil {
		t.Errorf("DeleteBattle(missing) error = %v", err)
	}
	if err := s.SaveBattle(ctx, dup); err != nil {
		t.Errorf("SaveBattle(after delete) error = %v", err)
	}
}

func newTestTournament(t *testing.T, s *Store, maxEntries int) tournament.Tournament {
	t.Helper()
	return newTestTournamentID(t, s, "t-1", maxEntries)
}

func newTestTournamentID(t *testing.T, s *Store, id string, maxEntries int) tournament.Tournament {
	t.Helper()
	tour := tournament.Tournament{
		ID: id, Arena: "prediction", League: sim.LeaguePro, MaxEntries: maxEntries, EntryFee: 100,
		PrizeSplit: []int{50, 30, 15, 5}, Status: tournament.StatusOpen, CreatedAt: testNow, UpdatedAt: testNow,
	}
	if err := s.CreateTournament(context.Background(), tour); err != nil {
		t.Fatal(err)
	}
	return tour
}

func TestTournamentEntries(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	newTestTournament(t, s, 2)

	join := func(id, owner string) (tournament.Entry, error) {
		return s.AddEntry(ctx, tournament.Entry{
			ID: id, TournamentID: "t-1", OwnerID: owner, SubjectID: "s-" + owner,
			Stats: sim.BattleStats{Intelligence: 1, Speed: 2, Risk: 3}, PaidAmount: 100, CreatedAt: testNow,
		})
	}
	e0, err := join("e-0", "alice")
	if err != nil || e0.Position != 0 {
		t.Fatalf("AddEntry() = %+v, %v", e0, err)
	}
	if _, err := join("e-dup", "alice"); !apperr.HasCode(err, apperr.CodeConflict) {
		t.Fatalf("AddEntry(duplicate owner) error = %v", err)
	}
	e1, err := join("e-1", "bob")
	if err != nil || e1.Position != 1 {
		t.Fatalf("AddEntry() = %+v, %v", e1, err)
	}
	if _, err := join("e-2", "carol"); !apperr.HasCode(err, apperr.CodeConflict) {
		t.Fatalf("AddEntry(full) error = %v", err)
	}
	if _, err := s.AddEntry(ctx, tournament.Entry{ID: "x", TournamentID: "nope", OwnerID: "x"}); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("AddEntry(missing tournament) error = %v", err)
	}

	got, err := s.GetTournament(ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PrizePool != 200 || len(got.Entries) != 2 || got.Entries[1].OwnerID != "bob" {
		t.Fatalf("GetTournament() = %+v", got)
	}
	if got.Entries[0].PrizeStatus != tournament.PrizeNone {
		t.Errorf("prize status = %q", got.Entries[0].PrizeStatus)
	}

	standings := []tournament.Entry{{ID: "e-0", Wins: 0, Rank: 2}, {ID: "e-1", Wins: 1, Rank: 1}}
	if err := s.SaveStandings(ctx, "t-1", standings); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordPrize(ctx, "e-1", 100, tournament.PrizePaid, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordPrize(ctx, "nope", 1, tournament.PrizePaid, ""); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("RecordPrize(missing) error = %v", err)
	}
	got, _ = s.GetTournament(ctx, "t-1")
	if got.Entries[1].Rank != 1 || got.Entries[1].Reward != 100 || got.Entries[1].PrizeStatus != tournament.PrizePaid {
		t.Errorf("entry after prize = %+v", got.Entries[1])
	}
}

func TestStartBracketOnce(t *testing.T) {
	s := openTest(t)
	newTestTournament(t, s, 4)

	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.StartBracket(context.Background(), "t-1", "seed-a", testNow)
			if err != nil {
				t.Errorf("StartBracket() error = %v", err)
				return
			}
			if ok {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	if started.Load() != 1 {
		t.Fatalf("started = %d, want 1", started.Load())
	}

	ctx := context.Background()
	got, _ := s.GetTournament(ctx, "t-1")
	if got.Status != tournament.StatusRunning || got.SeedHex != "seed-a" {
		t.Errorf("tournament = %+v", got)
	}
	if ok, err := s.TransitionStatus(ctx, "t-1", tournament.StatusOpen, tournament.StatusCancelled, testNow); err != nil || ok {
		t.Errorf("TransitionStatus(open->cancelled) = %v, %v", ok, err)
	}
	if ok, err := s.TransitionStatus(ctx, "t-1", tournament.StatusRunning, tournament.StatusCompleted, testNow); err != nil || !ok {
		t.Errorf("TransitionStatus(running->completed) = %v, %v", ok, err)
	}
	if _, err := s.StartBracket(ctx, "nope", "x", testNow); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("StartBracket(missing) error = %v", err)
	}
}

func TestClaimPrizeAndCancelStalled(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	newTestTournament(t, s, 2)
	for i, owner := range []string{"alice", "bob"} {
		if _, err := s.AddEntry(ctx, tournament.Entry{
			ID: fmt.Sprintf("e-%d", i), TournamentID: "t-1", OwnerID: owner, SubjectID: "s-" + owner,
			PaidAmount: 100, CreatedAt: testNow,
		}); err != nil {
			t.Fatal(err)
		}
	}

	if ok, err := s.ClaimPrize(ctx, "e-0"); err != nil || ok {
		t.Fatalf("ClaimPrize(open tournament) = %v, %v", ok, err)
	}
	if _, err := s.StartBracket(ctx, "t-1", "seed-a", testNow); err != nil {
		t.Fatal(err)
	}

	// no prize step yet: a stalled run may be cancelled, and a cancelled
	// tournament hands out no prize claims
	if ok, err := s.CancelStalled(ctx, "t-1", testNow); err != nil || !ok {
		t.Fatalf("CancelStalled() = %v, %v", ok, err)
	}
	if ok, err := s.ClaimPrize(ctx, "e-0"); err != nil || ok {
		t.Errorf("ClaimPrize(cancelled tournament) = %v, %v", ok, err)
	}

	newTestTournamentID(t, s, "t-2", 2)
	if _, err := s.AddEntry(ctx, tournament.Entry{ID: "f-0", TournamentID: "t-2", OwnerID: "alice", SubjectID: "s", CreatedAt: testNow}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StartBracket(ctx, "t-2", "seed-b", testNow); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.ClaimPrize(ctx, "f-0"); err != nil || !ok {
		t.Fatalf("ClaimPrize() = %v, %v", ok, err)
	}
	if ok, err := s.ClaimPrize(ctx, "f-0"); err != nil || ok {
		t.Errorf("second ClaimPrize() = %v, %v", ok, err)
	}
	if ok, err := s.CancelStalled(ctx, "t-2", testNow); err != nil || ok {
		t.Errorf("CancelStalled(after a prize claim) = %v, %v", ok, err)
	}
	if _, err := s.ClaimPrize(ctx, "nope"); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("ClaimPrize(missing) error = %v", err)
	}
	if _, err := s.CancelStalled(ctx, "nope", testNow); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("CancelStalled(missing) error = %v", err)
	}
}

var (
	testVault = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testAsset = common.HexToAddress("0x2222222222222222222222222222222222222222")
	alice     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	bob       = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func TestNextSeqnoPerRecipient(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for want := uint64(1); want <= 3; want++ {
		got, err := s.NextSeqno(ctx, testVault, alice)
		if err != nil || got != want {
			t.Fatalf("NextSeqno(alice) = %d, %v, want %d", got, err, want)
		}
	}
	if got, _ := s.NextSeqno(ctx, testVault, bob); got != 1 {
		t.Errorf("NextSeqno(bob) = %d, want 1", got)
	}
}

func TestIssuedClaims(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	amount, _ := uint256.FromDecimal("1000000000000000000000")
	ic := vault.IssuedClaim{
		ID: "c-1", RequestID: "req-1", OwnerID: "alice", Debited: 1000,
		Signed: vault.SignedClaim{
			Claim:     vault.Claim{VaultID: testVault, AssetID: testAsset, Recipient: alice, Amount: amount, Seqno: 1, ValidUntil: 1_800_000_000},
			Signature: []byte{1, 2, 3},
		},
		CreatedAt: testNow,
	}
	if err := s.SaveIssuedClaim(ctx, ic); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetIssuedClaim(ctx, "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Signed.Claim.Amount.Cmp(amount) != 0 || got.Signed.Claim.Recipient != alice || len(got.Signed.Signature) != 3 {
		t.Errorf("GetIssuedClaim() = %+v", got)
	}
	dup := ic
	dup.ID = "c-2"
	if err := s.SaveIssuedClaim(ctx, dup); !apperr.HasCode(err, apperr.CodeConflict) {
		t.Errorf("SaveIssuedClaim(dup) error = %v", err)
	}
}

func TestVaultConsume(t *testing.T) {
	s := openTest(t)
	ledger := s.VaultLedger()
	ctx := context.Background()

	if err := ledger.Deposit(ctx, testVault, testAsset, uint256.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	claim := vault.Claim{VaultID: testVault, AssetID: testAsset, Recipient: alice, Amount: uint256.NewInt(60), Seqno: 5}
	if err := ledger.Consume(ctx, claim, testNow); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if err := ledger.Consume(ctx, claim, testNow); !apperr.HasCode(err, apperr.CodeReplayedSeqno) {
		t.Fatalf("Consume(replay) error = %v", err)
	}

	big := claim
	big.Seqno = 6
	big.Amount = uint256.NewInt(41)
	if err := ledger.Consume(ctx, big, testNow); !apperr.HasCode(err, apperr.CodeVaultInsufficientReserve) {
		t.Fatalf("Consume(over reserve) error = %v", err)
	}
	if used, _ := ledger.IsConsumed(ctx, testVault, alice, 6); used {
		t.Error("rejected claim left its seqno consumed")
	}
	if used, _ := ledger.IsConsumed(ctx, testVault, alice, 5); !used {
		t.Error("seqno 5 not consumed")
	}

	reserve, _ := ledger.Reserve(ctx, testVault, testAsset)
	balance, _ := ledger.BalanceOf(ctx, testVault, testAsset, alice)
	if reserve.Uint64() != 40 || balance.Uint64() != 60 {
		t.Errorf("reserve=%s balance=%s, want 40/60", reserve.Dec(), balance.Dec())
	}
}
