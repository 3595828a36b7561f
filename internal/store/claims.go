package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/vault"
)

var _ vault.ClaimStore = (*Store)(nil)

// NextSeqno bumps the per-(vault, recipient) counter and returns the new value.
func (s *Store) NextSeqno(ctx context.Context, vaultID, recipient common.Address) (uint64, error) {
	var next int64
	err := s.inTx(ctx, "next seqno", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO claim_seqnos (vault_id, recipient, last_seqno) VALUES (?, ?, 1)
			ON CONFLICT(vault_id, recipient) DO UPDATE SET last_seqno = last_seqno + 1`,
			vaultID.Hex(), recipient.Hex()); err != nil {
			return fmt.Errorf("bump seqno: %w", err)
		}
		return tx.QueryRowContext(ctx, `SELECT last_seqno FROM claim_seqnos WHERE vault_id = ? AND recipient = ?`,
			vaultID.Hex(), recipient.Hex()).Scan(&next)
	})
	if err != nil {
		return 0, err
	}
	return uint64(next), nil
}

func (s *Store) SaveIssuedClaim(ctx context.Context, ic vault.IssuedClaim) error {
	c := ic.Signed.Claim
	if c.Amount == nil {
		return apperr.Validation("amount", "claim amount is required")
	}
	return s.withRetry(ctx, "save issued claim", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO issued_claims (id, request_id, owner_id, debited, vault_id, asset_id, recipient, amount,
				seqno, valid_until, signature, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ic.ID, ic.RequestID, ic.OwnerID, ic.Debited, c.VaultID.Hex(), c.AssetID.Hex(), c.Recipient.Hex(),
			c.Amount.Dec(), int64(c.Seqno), int64(c.ValidUntil), hexutil.Encode(ic.Signed.Signature),
			toMillis(ic.CreatedAt))
		if isConstraintErr(err) {
			return apperr.WithMetadata(apperr.CodeConflict, "claim already issued",
				map[string]string{"request_id": ic.RequestID})
		}
		if err != nil {
			return fmt.Errorf("save issued claim: %w", err)
		}
		return nil
	})
}

func (s *Store) GetIssuedClaim(ctx context.Context, id string) (vault.IssuedClaim, error) {
	var (
		ic                        vault.IssuedClaim
		vaultHex, assetHex, recip string
		amount, sig               string
		seqno, validUntil, create int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, owner_id, debited, vault_id, asset_id, recipient, amount, seqno, valid_until,
			signature, created_at
		FROM issued_claims WHERE id = ?`, id).Scan(
		&ic.ID, &ic.RequestID, &ic.OwnerID, &ic.Debited, &vaultHex, &assetHex, &recip, &amount,
		&seqno, &validUntil, &sig, &create)
	if isNoRows(err) {
		return vault.IssuedClaim{}, notFound("claim", "claim_id", id)
	}
	if err != nil {
		return vault.IssuedClaim{}, fmt.Errorf("get issued claim: %w", err)
	}

	amt, err := uint256.FromDecimal(amount)
	if err != nil {
		return vault.IssuedClaim{}, fmt.Errorf("decode claim amount: %w", err)
	}
	signature, err := hexutil.Decode(sig)
	if err != nil {
		return vault.IssuedClaim{}, fmt.Errorf("decode claim signature: %w", err)
	}
	ic.Signed = vault.SignedClaim{
		Claim: vault.Claim{
			VaultID:    common.HexToAddress(vaultHex),
			AssetID:    common.HexToAddress(assetHex),
			Recipient:  common.HexToAddress(recip),
			Amount:     amt,
			Seqno:      uint64(seqno),
			ValidUntil: uint64(validUntil),
		},
		Signature: signature,
	}
	ic.CreatedAt = fromMillis(create)
	return ic, nil
}
