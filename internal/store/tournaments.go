package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MJE43/arenacore/internal/apperr"
	"github.com/MJE43/arenacore/internal/sim"
	"github.com/MJE43/arenacore/internal/tournament"
)

var _ tournament.Store = (*Store)(nil)

func (s *Store) CreateTournament(ctx context.Context, t tournament.Tournament) error {
	split, err := json.Marshal(t.PrizeSplit)
	if err != nil {
		return fmt.Errorf("encode prize split: %w", err)
	}
	return s.withRetry(ctx, "create tournament", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tournaments (id, arena, league, max_entries, entry_fee, prize_split_json, seed_hex,
				status, prize_pool, entry_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
			t.ID, t.Arena, string(t.League), t.MaxEntries, t.EntryFee, string(split), t.SeedHex,
			string(t.Status), toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
		if isConstraintErr(err) {
			return apperr.New(apperr.CodeConflict, "tournament already exists")
		}
		if err != nil {
			return fmt.Errorf("create tournament: %w", err)
		}
		return nil
	})
}

func (s *Store) GetTournament(ctx context.Context, id string) (tournament.Tournament, error) {
	var t tournament.Tournament
	err := s.inTx(ctx, "get tournament", func(tx *sql.Tx) error {
		var err error
		t, err = loadTournament(ctx, tx, id)
		if err != nil {
			return err
		}
		t.Entries, err = loadEntries(ctx, tx, id)
		return err
	})
	return t, err
}

// AddEntry seats e in one transaction. The tournament row update doubles as
// the open and capacity check; the unique owner index catches double entry.
func (s *Store) AddEntry(ctx context.Context, e tournament.Entry) (tournament.Entry, error) {
	stats, err := json.Marshal(e.Stats)
	if err != nil {
		return tournament.Entry{}, fmt.Errorf("encode stats: %w", err)
	}
	if e.PrizeStatus == "" {
		e.PrizeStatus = tournament.PrizeNone
	}
	err = s.inTx(ctx, "add entry", func(tx *sql.Tx) error {
		var (
			status          string
			count, capacity int
		)
		err := tx.QueryRowContext(ctx, `SELECT status, entry_count, max_entries FROM tournaments WHERE id = ?`,
			e.TournamentID).Scan(&status, &count, &capacity)
		if isNoRows(err) {
			return notFound("tournament", "tournament_id", e.TournamentID)
		}
		if err != nil {
			return fmt.Errorf("read tournament: %w", err)
		}
		if tournament.Status(status) != tournament.StatusOpen {
			return apperr.New(apperr.CodeConflict, "tournament is not open")
		}
		if count >= capacity {
			return apperr.New(apperr.CodeConflict, "tournament is full")
		}

		e.Position = count
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tournament_entries (id, tournament_id, owner_id, subject_id, stats_json, paid_amount,
				position, wins, rank, reward, prize_status, prize_error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, '', ?)`,
			e.ID, e.TournamentID, e.OwnerID, e.SubjectID, string(stats), e.PaidAmount,
			e.Position, string(e.PrizeStatus), toMillis(e.CreatedAt))
		if isConstraintErr(err) {
			return apperr.WithMetadata(apperr.CodeConflict, "owner already entered",
				map[string]string{"owner_id": e.OwnerID})
		}
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE tournaments SET entry_count = entry_count + 1, prize_pool = prize_pool + ?, updated_at = ?
			WHERE id = ?`,
			e.PaidAmount, toMillis(e.CreatedAt), e.TournamentID)
		if err != nil {
			return fmt.Errorf("update tournament pool: %w", err)
		}
		return nil
	})
	if err != nil {
		return tournament.Entry{}, err
	}
	return e, nil
}

func (s *Store) StartBracket(ctx context.Context, id, seedHex string, now time.Time) (bool, error) {
	var started bool
	err := s.inTx(ctx, "start bracket", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tournaments
			SET status = ?, seed_hex = CASE WHEN seed_hex = '' THEN ? ELSE seed_hex END, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(tournament.StatusRunning), seedHex, toMillis(now), id, string(tournament.StatusOpen))
		if err != nil {
			return fmt.Errorf("start bracket: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			started = true
			return nil
		}
		return ensureTournament(ctx, tx, id)
	})
	return started, err
}

func (s *Store) SaveStandings(ctx context.Context, id string, entries []tournament.Entry) error {
	return s.inTx(ctx, "save standings", func(tx *sql.Tx) error {
		for _, e := range entries {
			res, err := tx.ExecContext(ctx, `
				UPDATE tournament_entries SET wins = ?, rank = ? WHERE id = ? AND tournament_id = ?`,
				e.Wins, e.Rank, e.ID, id)
			if err != nil {
				return fmt.Errorf("save standing: %w", err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return notFound("entry", "entry_id", e.ID)
			}
		}
		return nil
	})
}

func (s *Store) RecordPrize(ctx context.Context, entryID string, reward int64, status tournament.PrizeStatus, prizeErr string) error {
	return s.withRetry(ctx, "record prize", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE tournament_entries SET reward = ?, prize_status = ?, prize_error = ? WHERE id = ?`,
			reward, string(status), prizeErr, entryID)
		if err != nil {
			return fmt.Errorf("record prize: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound("entry", "entry_id", entryID)
		}
		return nil
	})
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from, to tournament.Status, now time.Time) (bool, error) {
	var moved bool
	err := s.inTx(ctx, "transition tournament", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tournaments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(to), toMillis(now), id, string(from))
		if err != nil {
			return fmt.Errorf("transition tournament: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			moved = true
			return nil
		}
		return ensureTournament(ctx, tx, id)
	})
	return moved, err
}

func (s *Store) ClaimPrize(ctx context.Context, entryID string) (bool, error) {
	var claimed bool
	err := s.inTx(ctx, "claim prize", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tournament_entries SET prize_status = ?
			WHERE id = ? AND prize_status = ?
				AND EXISTS (SELECT 1 FROM tournaments t
					WHERE t.id = tournament_entries.tournament_id AND t.status = ?)`,
			string(tournament.PrizePending), entryID, string(tournament.PrizeNone), string(tournament.StatusRunning))
		if err != nil {
			return fmt.Errorf("claim prize: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			claimed = true
			return nil
		}
		var one int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM tournament_entries WHERE id = ?`, entryID).Scan(&one)
		if isNoRows(err) {
			return notFound("entry", "entry_id", entryID)
		}
		return err
	})
	return claimed, err
}

func (s *Store) CancelStalled(ctx context.Context, id string, now time.Time) (bool, error) {
	var cancelled bool
	err := s.inTx(ctx, "cancel stalled tournament", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tournaments SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?
				AND NOT EXISTS (SELECT 1 FROM tournament_entries
					WHERE tournament_id = ? AND prize_status <> ?)`,
			string(tournament.StatusCancelled), toMillis(now), id, string(tournament.StatusRunning),
			id, string(tournament.PrizeNone))
		if err != nil {
			return fmt.Errorf("cancel stalled tournament: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			cancelled = true
			return nil
		}
		return ensureTournament(ctx, tx, id)
	})
	return cancelled, err
}

func ensureTournament(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM tournaments WHERE id = ?`, id).Scan(&one)
	if isNoRows(err) {
		return notFound("tournament", "tournament_id", id)
	}
	return err
}

func loadTournament(ctx context.Context, tx *sql.Tx, id string) (tournament.Tournament, error) {
	var (
		t                tournament.Tournament
		league, status   string
		split            string
		created, updated int64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, arena, league, max_entries, entry_fee, prize_split_json, seed_hex, status, prize_pool,
			created_at, updated_at
		FROM tournaments WHERE id = ?`, id).Scan(
		&t.ID, &t.Arena, &league, &t.MaxEntries, &t.EntryFee, &split, &t.SeedHex, &status, &t.PrizePool,
		&created, &updated)
	if isNoRows(err) {
		return tournament.Tournament{}, notFound("tournament", "tournament_id", id)
	}
	if err != nil {
		return tournament.Tournament{}, fmt.Errorf("get tournament: %w", err)
	}
	if err := json.Unmarshal([]byte(split), &t.PrizeSplit); err != nil {
		return tournament.Tournament{}, fmt.Errorf("decode prize split: %w", err)
	}
	t.League = sim.League(league)
	t.Status = tournament.Status(status)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return t, nil
}

func loadEntries(ctx context.Context, tx *sql.Tx, id string) ([]tournament.Entry, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, tournament_id, owner_id, subject_id, stats_json, paid_amount, position, wins, rank,
			reward, prize_status, prize_error, created_at
		FROM tournament_entries WHERE tournament_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []tournament.Entry
	for rows.Next() {
		var (
			e             tournament.Entry
			stats, status string
			created       int64
		)
		if err := rows.Scan(&e.ID, &e.TournamentID, &e.OwnerID, &e.SubjectID, &stats, &e.PaidAmount,
			&e.Position, &e.Wins, &e.Rank, &e.Reward, &status, &e.PrizeError, &created); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(stats), &e.Stats); err != nil {
			return nil, fmt.Errorf("decode entry stats: %w", err)
		}
		e.PrizeStatus = tournament.PrizeStatus(status)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
