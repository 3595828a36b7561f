package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MJE43/arenacore/internal/settlement"
	"github.com/MJE43/arenacore/internal/sim"
)

var _ settlement.ResultStore = (*Store)(nil)

func (s *Store) SaveBattle(ctx context.Context, rec settlement.BattleRecord) error {
	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	weights, err := json.Marshal(rec.Weights)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	return s.withRetry(ctx, "save battle", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO battle_results (id, request_id, owner_id, subject_id, arena, league, counterparty_id,
				stats_json, weights_json, seed, score, entry_fee, reward, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.RequestID, rec.OwnerID, rec.SubjectID, rec.Arena, string(rec.League), rec.CounterpartyID,
			string(stats), string(weights), int64(rec.Seed), rec.Score, rec.EntryFee, rec.Reward, toMillis(rec.CreatedAt))
		if err != nil {
			if isConstraintErr(err) {
				return fmt.Errorf("battle for request %s already stored: %w", rec.RequestID, err)
			}
			return fmt.Errorf("save battle: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteBattle(ctx context.Context, id string) error {
	return s.withRetry(ctx, "delete battle", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM battle_results WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete battle: %w", err)
		}
		return nil
	})
}

func (s *Store) GetBattle(ctx context.Context, id string) (settlement.BattleRecord, error) {
	var (
		rec            settlement.BattleRecord
		league         string
		stats, weights string
		seed, created  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, owner_id, subject_id, arena, league, counterparty_id,
			stats_json, weights_json, seed, score, entry_fee, reward, created_at
		FROM battle_results WHERE id = ?`, id).Scan(
		&rec.ID, &rec.RequestID, &rec.OwnerID, &rec.SubjectID, &rec.Arena, &league, &rec.CounterpartyID,
		&stats, &weights, &seed, &rec.Score, &rec.EntryFee, &rec.Reward, &created)
	if isNoRows(err) {
		return settlement.BattleRecord{}, notFound("battle result", "result_id", id)
	}
	if err != nil {
		return settlement.BattleRecord{}, fmt.Errorf("get battle: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &rec.Stats); err != nil {
		return settlement.BattleRecord{}, fmt.Errorf("decode stats: %w", err)
	}
	if err := json.Unmarshal([]byte(weights), &rec.Weights); err != nil {
		return settlement.BattleRecord{}, fmt.Errorf("decode weights: %w", err)
	}
	rec.League = sim.League(league)
	rec.Seed = uint32(seed)
	rec.CreatedAt = fromMillis(created)
	return rec, nil
}
