package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/economy"
)

var (
	_ economy.Ledger        = (*Store)(nil)
	_ economy.ConfigWriter  = (*Store)(nil)
	_ economy.BalanceReader = (*Store)(nil)
)

const reasonInsufficientBalance = "insufficient_balance"

// Debit decrements the owner's balance only when it covers amount.
func (s *Store) Debit(ctx context.Context, amount int64, ec economy.Context) (economy.Result, error) {
	if amount < 0 {
		return economy.Result{}, apperr.Validation("amount", "amount must be non-negative")
	}
	var res economy.Result
	err := s.inTx(ctx, "ledger debit", func(tx *sql.Tx) error {
		now := toMillis(s.now())
		out, err := tx.ExecContext(ctx, `
			UPDATE ledger_balances SET balance = balance - ?, updated_at = ?
			WHERE owner_id = ? AND balance >= ?`,
			amount, now, ec.OwnerID, amount)
		if err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}
		n, err := out.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if amount == 0 {
				res = economy.Result{OK: true}
				return nil
			}
			res = economy.Result{OK: false, Reason: reasonInsufficientBalance}
			return nil
		}
		if err := insertMovement(ctx, tx, -amount, ec, now); err != nil {
			return err
		}
		res = economy.Result{OK: true}
		return nil
	})
	return res, err
}

func (s *Store) Credit(ctx context.Context, amount int64, ec economy.Context) error {
	if amount < 0 {
		return apperr.Validation("amount", "amount must be non-negative")
	}
	return s.inTx(ctx, "ledger credit", func(tx *sql.Tx) error {
		now := toMillis(s.now())
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_balances (owner_id, balance, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(owner_id) DO UPDATE SET balance = balance + excluded.balance, updated_at = excluded.updated_at`,
			ec.OwnerID, amount, now); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		return insertMovement(ctx, tx, amount, ec, now)
	})
}

// TryEmit reads today's emission and the config inside one transaction so two
// concurrent emissions cannot both squeeze under the cap.
func (s *Store) TryEmit(ctx context.Context, amount int64, ec economy.Context) (economy.Result, error) {
	var res economy.Result
	err := s.inTx(ctx, "ledger emit", func(tx *sql.Tx) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		day := economy.DayKey(now)
		var emitted int64
		err = tx.QueryRowContext(ctx, `SELECT amount FROM emissions WHERE arena = ? AND day = ?`, ec.Arena, day).Scan(&emitted)
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("read emissions: %w", err)
		}
		res = cfg.CheckEmission(ec, amount, emitted, now)
		if !res.OK {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO emissions (arena, day, amount) VALUES (?, ?, ?)
			ON CONFLICT(arena, day) DO UPDATE SET amount = amount + excluded.amount`,
			ec.Arena, day, amount); err != nil {
			return fmt.Errorf("record emission: %w", err)
		}
		return nil
	})
	return res, err
}

// Config returns the stored configuration; with none stored every arena is
// uncapped and always open.
func (s *Store) Config(ctx context.Context) (economy.CapConfiguration, error) {
	var cfg economy.CapConfiguration
	err := s.withRetry(ctx, "read economy config", func(ctx context.Context) error {
		var err error
		cfg, err = loadConfig(ctx, s.db)
		return err
	})
	return cfg, err
}

func (s *Store) SaveConfig(ctx context.Context, cfg economy.CapConfiguration) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode economy config: %w", err)
	}
	return s.withRetry(ctx, "save economy config", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO economy_config (id, config_json, updated_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET config_json = excluded.config_json, updated_at = excluded.updated_at`,
			string(body), toMillis(s.now()))
		if err != nil {
			return fmt.Errorf("save economy config: %w", err)
		}
		return nil
	})
}

// SeedConfig stores cfg only if no configuration exists yet.
func (s *Store) SeedConfig(ctx context.Context, cfg economy.CapConfiguration) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode economy config: %w", err)
	}
	return s.withRetry(ctx, "seed economy config", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO economy_config (id, config_json, updated_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			string(body), toMillis(s.now()))
		return err
	})
}

func (s *Store) BalanceOf(ctx context.Context, ownerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM ledger_balances WHERE owner_id = ?`, ownerID).Scan(&balance)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// EmittedOn returns what arena emitted on the UTC day key.
func (s *Store) EmittedOn(ctx context.Context, arena, day string) (int64, error) {
	var amount int64
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM emissions WHERE arena = ? AND day = ?`, arena, day).Scan(&amount)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read emissions: %w", err)
	}
	return amount, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadConfig(ctx context.Context, q queryer) (economy.CapConfiguration, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT config_json FROM economy_config WHERE id = 1`).Scan(&body)
	if isNoRows(err) {
		return economy.CapConfiguration{}, nil
	}
	if err != nil {
		return economy.CapConfiguration{}, fmt.Errorf("read economy config: %w", err)
	}
	var cfg economy.CapConfiguration
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return economy.CapConfiguration{}, fmt.Errorf("decode economy config: %w", err)
	}
	return cfg, nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, delta int64, ec economy.Context, at int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_movements (owner_id, delta, arena, league, reason, ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ec.OwnerID, delta, ec.Arena, ec.League, ec.Reason, ec.Ref, at); err != nil {
		return fmt.Errorf("record movement: %w", err)
	}
	return nil
}
