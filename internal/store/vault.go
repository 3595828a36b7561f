package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/vault"
)

var _ vault.Ledger = (*VaultLedger)(nil)

// VaultLedger is the vault.Ledger view of a Store. It is a separate type
// because its BalanceOf is keyed by address rather than owner id.
type VaultLedger struct {
	s *Store
}

// VaultLedger returns the vault ledger backed by s.
func (s *Store) VaultLedger() *VaultLedger {
	return &VaultLedger{s: s}
}

// Consume records the seqno and moves the amount in one transaction. The
// nonce primary key rejects a replay even under concurrent redemption.
func (v *VaultLedger) Consume(ctx context.Context, c vault.Claim, now time.Time) error {
	if c.Amount == nil {
		return apperr.Validation("amount", "claim amount is required")
	}
	return v.s.inTx(ctx, "consume claim", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vault_nonces (vault_id, recipient, seqno, consumed_at) VALUES (?, ?, ?, ?)`,
			c.VaultID.Hex(), c.Recipient.Hex(), int64(c.Seqno), toMillis(now))
		if isConstraintErr(err) {
			return apperr.ErrReplayedSeqno
		}
		if err != nil {
			return fmt.Errorf("record nonce: %w", err)
		}

		reserve, err := readAmount(ctx, tx, `SELECT amount FROM vault_reserves WHERE vault_id = ? AND asset_id = ?`,
			c.VaultID.Hex(), c.AssetID.Hex())
		if err != nil {
			return err
		}
		if reserve.Lt(c.Amount) {
			return apperr.New(apperr.CodeVaultInsufficientReserve, "vault reserve too low")
		}
		left := new(uint256.Int).Sub(reserve, c.Amount)
		if _, err := tx.ExecContext(ctx, `UPDATE vault_reserves SET amount = ? WHERE vault_id = ? AND asset_id = ?`,
			left.Dec(), c.VaultID.Hex(), c.AssetID.Hex()); err != nil {
			return fmt.Errorf("debit reserve: %w", err)
		}

		bal, err := readAmount(ctx, tx, `SELECT amount FROM vault_balances WHERE vault_id = ? AND asset_id = ? AND holder = ?`,
			c.VaultID.Hex(), c.AssetID.Hex(), c.Recipient.Hex())
		if err != nil {
			return err
		}
		sum, overflow := new(uint256.Int).AddOverflow(bal, c.Amount)
		if overflow {
			return apperr.Validation("amount", "balance overflow")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vault_balances (vault_id, asset_id, holder, amount) VALUES (?, ?, ?, ?)
			ON CONFLICT(vault_id, asset_id, holder) DO UPDATE SET amount = excluded.amount`,
			c.VaultID.Hex(), c.AssetID.Hex(), c.Recipient.Hex(), sum.Dec()); err != nil {
			return fmt.Errorf("credit holder: %w", err)
		}
		return nil
	})
}

func (v *VaultLedger) Deposit(ctx context.Context, vaultID, assetID common.Address, amount *uint256.Int) error {
	if amount == nil {
		return apperr.Validation("amount", "deposit amount is required")
	}
	return v.s.inTx(ctx, "vault deposit", func(tx *sql.Tx) error {
		cur, err := readAmount(ctx, tx, `SELECT amount FROM vault_reserves WHERE vault_id = ? AND asset_id = ?`,
			vaultID.Hex(), assetID.Hex())
		if err != nil {
			return err
		}
		sum, overflow := new(uint256.Int).AddOverflow(cur, amount)
		if overflow {
			return apperr.Validation("amount", "reserve overflow")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vault_reserves (vault_id, asset_id, amount) VALUES (?, ?, ?)
			ON CONFLICT(vault_id, asset_id) DO UPDATE SET amount = excluded.amount`,
			vaultID.Hex(), assetID.Hex(), sum.Dec()); err != nil {
			return fmt.Errorf("credit reserve: %w", err)
		}
		return nil
	})
}

func (v *VaultLedger) Reserve(ctx context.Context, vaultID, assetID common.Address) (*uint256.Int, error) {
	return readAmount(ctx, v.s.db, `SELECT amount FROM vault_reserves WHERE vault_id = ? AND asset_id = ?`,
		vaultID.Hex(), assetID.Hex())
}

func (v *VaultLedger) BalanceOf(ctx context.Context, vaultID, assetID, holder common.Address) (*uint256.Int, error) {
	return readAmount(ctx, v.s.db, `SELECT amount FROM vault_balances WHERE vault_id = ? AND asset_id = ? AND holder = ?`,
		vaultID.Hex(), assetID.Hex(), holder.Hex())
}

func (v *VaultLedger) IsConsumed(ctx context.Context, vaultID, recipient common.Address, seqno uint64) (bool, error) {
	var one int
	err := v.s.db.QueryRowContext(ctx, `SELECT 1 FROM vault_nonces WHERE vault_id = ? AND recipient = ? AND seqno = ?`,
		vaultID.Hex(), recipient.Hex(), int64(seqno)).Scan(&one)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read nonce: %w", err)
	}
	return true, nil
}

// readAmount reads a uint256 decimal column, treating a missing row as zero.
func readAmount(ctx context.Context, q queryer, query string, args ...any) (*uint256.Int, error) {
	var dec string
	err := q.QueryRowContext(ctx, query, args...).Scan(&dec)
	if isNoRows(err) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read amount: %w", err)
	}
	v, err := uint256.FromDecimal(dec)
	if err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", dec, err)
	}
	return v, nil
}
