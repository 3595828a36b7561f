package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MJE43/arenacore/internal/runs"
)

var _ runs.Store = (*Store)(nil)

const runColumns = `request_id, owner_id, status, error_code, error_message, result_ref, created_at, updated_at, expires_at`

// InsertRun relies on the primary key of run_records: concurrent inserts for
// one request id leave exactly one row.
func (s *Store) InsertRun(ctx context.Context, rec runs.Record) (bool, error) {
	var inserted bool
	err := s.withRetry(ctx, "insert run", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO run_records (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(request_id) DO NOTHING`,
			rec.RequestID, rec.OwnerID, string(rec.Status), rec.ErrorCode, rec.ErrorMessage, rec.ResultRef,
			toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt), toMillis(rec.ExpiresAt))
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n == 1
		return nil
	})
	return inserted, err
}

func (s *Store) GetRun(ctx context.Context, requestID string) (runs.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM run_records WHERE request_id = ?`, requestID)
	rec, err := scanRun(row)
	if isNoRows(err) {
		return runs.Record{}, notFound("run record", "request_id", requestID)
	}
	if err != nil {
		return runs.Record{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

func (s *Store) ReplaceExpiredRun(ctx context.Context, rec runs.Record, now time.Time) (bool, error) {
	var replaced bool
	err := s.withRetry(ctx, "replace expired run", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE run_records
			SET owner_id = ?, status = ?, error_code = ?, error_message = ?, result_ref = ?,
			    created_at = ?, updated_at = ?, expires_at = ?
			WHERE request_id = ? AND expires_at <= ?`,
			rec.OwnerID, string(rec.Status), rec.ErrorCode, rec.ErrorMessage, rec.ResultRef,
			toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt), toMillis(rec.ExpiresAt),
			rec.RequestID, toMillis(now))
		if err != nil {
			return fmt.Errorf("replace expired run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		replaced = n == 1
		return nil
	})
	return replaced, err
}

func (s *Store) FinishRun(ctx context.Context, requestID string, terminal runs.Record) (bool, error) {
	var finished bool
	err := s.inTx(ctx, "finish run", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE run_records
			SET status = ?, error_code = ?, error_message = ?, result_ref = ?, updated_at = ?, expires_at = ?
			WHERE request_id = ? AND status = ?`,
			string(terminal.Status), terminal.ErrorCode, terminal.ErrorMessage, terminal.ResultRef,
			toMillis(terminal.UpdatedAt), toMillis(terminal.ExpiresAt),
			requestID, string(runs.StatusInProgress))
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			finished = true
			return nil
		}
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM run_records WHERE request_id = ?`, requestID).Scan(&exists)
		if isNoRows(err) {
			return notFound("run record", "request_id", requestID)
		}
		return err
	})
	return finished, err
}

func (s *Store) DeleteExpiredRuns(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := s.withRetry(ctx, "delete expired runs", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM run_records WHERE expires_at <= ?`, toMillis(now))
		if err != nil {
			return fmt.Errorf("delete expired runs: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (runs.Record, error) {
	var (
		rec                  runs.Record
		status               string
		created, upd, expire int64
	)
	if err := row.Scan(&rec.RequestID, &rec.OwnerID, &status, &rec.ErrorCode, &rec.ErrorMessage,
		&rec.ResultRef, &created, &upd, &expire); err != nil {
		return runs.Record{}, err
	}
	rec.Status = runs.Status(status)
	rec.CreatedAt = fromMillis(created)
	rec.UpdatedAt = fromMillis(upd)
	rec.ExpiresAt = fromMillis(expire)
	return rec, nil
}
