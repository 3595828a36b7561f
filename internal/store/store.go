// Package store persists run records, the economy ledger, battle results,
// tournaments, issued claims and the vault ledger in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MJE43/arenacore/internal/apperr"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options tunes Open.
type Options struct {
	// BusyRetries is how many times a write hitting SQLITE_BUSY is retried.
	BusyRetries uint64
	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase time.Duration
	Logger    *log.Logger
	Now       func() time.Time
}

// Store is the SQLite implementation of every persistence interface.
type Store struct {
	db      *sql.DB
	retries uint64
	base    time.Duration
	logger  *log.Logger
	now     func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, apperr.Validation("db_path", "storage path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	if path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("ping sqlite db: %w", err), db.Close())
	}

	if opts.BusyRetries == 0 {
		opts.BusyRetries = 5
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 20 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{db: db, retries: opts.BusyRetries, base: opts.RetryBase, logger: opts.Logger, now: opts.Now}
	if err := s.migrate(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("run migrations: %w", err), db.Close())
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperr.Wrap(apperr.CodeStorageUnavailable, "database unreachable", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		s.logger.Printf("migration_applied version=%d duration=%s", r.Source.Version, r.Duration)
	}
	return nil
}

// withRetry runs fn, retrying while SQLite reports the database busy.
// Exhausted retries surface as STORAGE_UNAVAILABLE.
func (s *Store) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	backoff := retry.WithMaxRetries(s.retries, retry.NewExponential(s.base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isBusyErr(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && isBusyErr(err) {
		s.logger.Printf("storage_busy op=%s err=%v", op, err)
		return apperr.Wrap(apperr.CodeStorageUnavailable, op+": database busy", err)
	}
	return err
}

// inTx runs fn in one transaction under withRetry. fn must only use tx.
func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	return s.withRetry(ctx, op, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", op, err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return multierr.Append(err, fmt.Errorf("rollback %s: %w", op, rbErr))
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", op, err)
		}
		return nil
	})
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// sqliteCode returns the primary result code of a driver error, or 0.
func sqliteCode(err error) int {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0
	}
	// extended codes carry the primary code in the low byte
	return sqliteErr.Code() & 0xff
}

func isConstraintErr(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT
}

func isBusyErr(err error) bool {
	code := sqliteCode(err)
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func notFound(what, key, value string) error {
	return apperr.WithMetadata(apperr.CodeNotFound, what+" not found", map[string]string{key: value})
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
