package vault

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/journal"
)

// Ledger holds vault reserves, recipient balances and the consumed seqno set.
type Ledger interface {
	// Consume marks (vault, recipient, seqno) used and moves Amount from the
	// vault reserve to the recipient in one atomic step. A used seqno is
	// REPLAYED_SEQNO; a short reserve is VAULT_INSUFFICIENT_RESERVE. On error
	// nothing changes.
	Consume(ctx context.Context, c Claim, now time.Time) error
	Deposit(ctx context.Context, vaultID, assetID common.Address, amount *uint256.Int) error
	Reserve(ctx context.Context, vaultID, assetID common.Address) (*uint256.Int, error)
	BalanceOf(ctx context.Context, vaultID, assetID, holder common.Address) (*uint256.Int, error)
	IsConsumed(ctx context.Context, vaultID, recipient common.Address, seqno uint64) (bool, error)
}

// Receipt describes a successful redemption.
type Receipt struct {
	VaultID    common.Address `json:"vault_id"`
	AssetID    common.Address `json:"asset_id"`
	Recipient  common.Address `json:"recipient"`
	Amount     string         `json:"amount"`
	Seqno      uint64         `json:"seqno"`
	RedeemedAt time.Time      `json:"redeemed_at"`
}

// Vault verifies and redeems claims signed by one trusted oracle.
type Vault struct {
	id      common.Address
	oracle  common.Address
	ledger  Ledger
	journal journal.Recorder
	logger  *log.Logger
	now     func() time.Time
}

// NewVault returns a verifier for vault id trusting oracle.
func NewVault(id, oracle common.Address, ledger Ledger, rec journal.Recorder, logger *log.Logger) *Vault {
	if rec == nil {
		rec = journal.Nop{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Vault{id: id, oracle: oracle, ledger: ledger, journal: rec, logger: logger, now: time.Now}
}

// ID is the vault address.
func (v *Vault) ID() common.Address { return v.id }

// Redeem pays sc to its recipient. sender is the authenticated submitter
// and must be the recipient. Rejections leave the seqno set and balances untouched.
func (v *Vault) Redeem(ctx context.Context, sender common.Address, sc SignedClaim) (Receipt, error) {
	c := sc.Claim
	if c.VaultID != v.id {
		return Receipt{}, apperr.WithMetadata(apperr.CodeValidation, "claim is for another vault",
			map[string]string{"vault_id": c.VaultID.Hex()})
	}
	if c.Amount == nil || c.Amount.IsZero() {
		return Receipt{}, apperr.Validation("amount", "claim amount must be positive")
	}

	signer, err := RecoverAddress(c.Digest(), sc.Signature)
	if err != nil {
		return Receipt{}, err
	}
	if signer != v.oracle {
		return Receipt{}, apperr.New(apperr.CodeSignatureInvalid, "claim not signed by the vault oracle")
	}

	now := v.now().UTC()
	if c.ValidUntil <= uint64(now.Unix()) {
		return Receipt{}, apperr.WithMetadata(apperr.CodeClaimExpired, "claim expired",
			map[string]string{"recipient": c.Recipient.Hex()})
	}
	if sender != c.Recipient {
		return Receipt{}, apperr.WithMetadata(apperr.CodeSenderMismatch, "sender is not the claim recipient",
			map[string]string{"sender": sender.Hex()})
	}

	if err := v.ledger.Consume(ctx, c, now); err != nil {
		v.logger.Printf("claim_rejected vault=%s recipient=%s seqno=%d code=%s", c.VaultID.Hex(), c.Recipient.Hex(), c.Seqno, apperr.CodeOf(err))
		return Receipt{}, err
	}

	receipt := Receipt{
		VaultID:    c.VaultID,
		AssetID:    c.AssetID,
		Recipient:  c.Recipient,
		Amount:     c.Amount.Dec(),
		Seqno:      c.Seqno,
		RedeemedAt: now,
	}
	if jerr := v.journal.Record(journal.KindClaimRedeemed, receipt); jerr != nil {
		v.logger.Printf("journal_write_failed kind=%s seqno=%d err=%v", journal.KindClaimRedeemed, c.Seqno, jerr)
	}
	v.logger.Printf("claim_redeemed vault=%s recipient=%s seqno=%d amount=%s", c.VaultID.Hex(), c.Recipient.Hex(), c.Seqno, receipt.Amount)
	return receipt, nil
}

// ApplyTx decodes a ClaimTx, recovers its sender and redeems the claim.
func (v *Vault) ApplyTx(ctx context.Context, raw []byte) (Receipt, error) {
	tx, err := DecodeClaimTx(raw)
	if err != nil {
		return Receipt{}, err
	}
	sc, err := tx.SignedClaim()
	if err != nil {
		return Receipt{}, err
	}
	sender, err := tx.Sender()
	if err != nil {
		return Receipt{}, err
	}
	return v.Redeem(ctx, sender, sc)
}

// Deposit funds the reserve for assetID.
func (v *Vault) Deposit(ctx context.Context, assetID common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return apperr.Validation("amount", "deposit must be positive")
	}
	return v.ledger.Deposit(ctx, v.id, assetID, amount)
}
