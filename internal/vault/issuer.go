package vault

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/economy"
	"github.com/MJE43/arenacore/internal/journal"
	"github.com/MJE43/arenacore/internal/runs"
)

// LedgerArena is the system arena claims are debited under.
const LedgerArena = "vault"

// IssueRequest converts off-chain balance into a signed claim.
type IssueRequest struct {
	RequestID string         `json:"request_id"`
	OwnerID   string         `json:"owner_id"`
	Recipient common.Address `json:"recipient"`
	Amount    int64          `json:"amount"`
}

// IssuedClaim is a persisted signed claim.
type IssuedClaim struct {
	ID        string      `json:"id"`
	RequestID string      `json:"request_id"`
	OwnerID   string      `json:"owner_id"`
	Debited   int64       `json:"debited"`
	Signed    SignedClaim `json:"claim"`
	CreatedAt time.Time   `json:"created_at"`
}

// IssueOutcome is returned by Issue. Claim is nil while a first attempt is
// still running or after it failed.
type IssueOutcome struct {
	Run      runs.Record  `json:"run"`
	Claim    *IssuedClaim `json:"issued,omitempty"`
	Replayed bool         `json:"replayed"`
}

// ClaimStore allocates seqnos and keeps issued claims.
type ClaimStore interface {
	// NextSeqno returns the next unused seqno for (vault, recipient),
	// starting at 1. Concurrent callers never get the same value.
	NextSeqno(ctx context.Context, vaultID, recipient common.Address) (uint64, error)
	SaveIssuedClaim(ctx context.Context, ic IssuedClaim) error
	GetIssuedClaim(ctx context.Context, id string) (IssuedClaim, error)
}

// Issuer debits the off-chain ledger and hands out signed claims.
type Issuer struct {
	oracle  *Oracle
	tracker *runs.Tracker
	ledger  economy.Ledger
	claims  ClaimStore
	scale   *uint256.Int
	journal journal.Recorder
	logger  *log.Logger
	now     func() time.Time
}

// NewIssuer wires an Issuer. scale converts one ledger unit into on-chain
// base units; nil means 1.
func NewIssuer(oracle *Oracle, tracker *runs.Tracker, ledger economy.Ledger, claims ClaimStore, scale *uint256.Int, rec journal.Recorder, logger *log.Logger) *Issuer {
	if scale == nil || scale.IsZero() {
		scale = uint256.NewInt(1)
	}
	if rec == nil {
		rec = journal.Nop{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Issuer{
		oracle:  oracle,
		tracker: tracker,
		ledger:  ledger,
		claims:  claims,
		scale:   scale,
		journal: rec,
		logger:  logger,
		now:     time.Now,
	}
}

// Issue is idempotent on RequestID: a retry returns the claim signed the
// first time and never debits twice.
func (is *Issuer) Issue(ctx context.Context, req IssueRequest) (IssueOutcome, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return IssueOutcome{}, apperr.Validation("owner_id", "owner id is required")
	}
	if req.Recipient == (common.Address{}) {
		return IssueOutcome{}, apperr.Validation("recipient", "recipient is required")
	}
	if req.Amount <= 0 {
		return IssueOutcome{}, apperr.Validation("amount", "amount must be positive")
	}
	onchain, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(req.Amount)), is.scale)
	if overflow {
		return IssueOutcome{}, apperr.Validation("amount", "amount overflows the asset range")
	}

	run, created, err := is.tracker.Begin(ctx, req.RequestID, req.OwnerID)
	if err != nil {
		return IssueOutcome{}, err
	}
	if !created {
		out := IssueOutcome{Run: run, Replayed: true}
		if run.Status == runs.StatusCompleted && run.ResultRef != "" {
			ic, err := is.claims.GetIssuedClaim(ctx, run.ResultRef)
			if err != nil {
				return IssueOutcome{}, err
			}
			out.Claim = &ic
		}
		return out, nil
	}

	ic, err := is.issue(ctx, req, onchain)
	if err != nil {
		failed, ferr := is.tracker.FailWith(ctx, req.RequestID, err)
		if ferr != nil {
			is.logger.Printf("claim_fail_record_failed request=%s err=%v", req.RequestID, ferr)
			return IssueOutcome{}, err
		}
		return IssueOutcome{Run: failed}, err
	}

	done, err := is.tracker.Complete(ctx, req.RequestID, ic.ID)
	if err != nil {
		return IssueOutcome{}, err
	}
	if jerr := is.journal.Record(journal.KindClaimIssued, ic); jerr != nil {
		is.logger.Printf("journal_write_failed kind=%s claim=%s err=%v", journal.KindClaimIssued, ic.ID, jerr)
	}
	is.logger.Printf("claim_issued request=%s recipient=%s seqno=%d amount=%s",
		req.RequestID, req.Recipient.Hex(), ic.Signed.Claim.Seqno, onchain.Dec())
	return IssueOutcome{Run: done, Claim: &ic}, nil
}

func (is *Issuer) issue(ctx context.Context, req IssueRequest, onchain *uint256.Int) (IssuedClaim, error) {
	ec := economy.Context{
		OwnerID: req.OwnerID,
		Arena:   LedgerArena,
		Reason:  "vault_claim",
		Ref:     req.RequestID,
	}
	res, err := is.ledger.Debit(ctx, req.Amount, ec)
	if err != nil {
		return IssuedClaim{}, err
	}
	if !res.OK {
		return IssuedClaim{}, apperr.WithMetadata(apperr.CodeInsufficientFunds, "claim amount declined",
			map[string]string{"reason": res.Reason})
	}

	refund := func(cause error) (IssuedClaim, error) {
		ec.Reason = "vault_claim_refund"
		if err := is.ledger.Credit(ctx, req.Amount, ec); err != nil {
			is.logger.Printf("refund_failed owner=%s amount=%d ref=%s err=%v", req.OwnerID, req.Amount, req.RequestID, err)
		}
		return IssuedClaim{}, cause
	}

	seqno, err := is.claims.NextSeqno(ctx, is.oracle.VaultID(), req.Recipient)
	if err != nil {
		return refund(err)
	}
	signed, err := is.oracle.Sign(req.Recipient, onchain, seqno)
	if err != nil {
		return refund(err)
	}
	ic := IssuedClaim{
		ID:        uuid.NewString(),
		RequestID: req.RequestID,
		OwnerID:   req.OwnerID,
		Debited:   req.Amount,
		Signed:    signed,
		CreatedAt: is.now().UTC(),
	}
	if err := is.claims.SaveIssuedClaim(ctx, ic); err != nil {
		return refund(err)
	}
	return ic, nil
}
