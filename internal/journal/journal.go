// Package journal writes an append-only audit trail of settlements,
// brackets and claims as zstd-compressed JSON lines, one file per UTC day.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"
)

// Entry kinds written by the settlement components.
const (
	KindBattleSettled      = "battle_settled"
	KindBracketCompleted   = "bracket_completed"
	KindTournamentCanceled = "tournament_cancelled"
	KindClaimIssued        = "claim_issued"
	KindClaimRedeemed      = "claim_redeemed"
	KindEconomyConfig      = "economy_config"
)

// Entry is one journal line.
type Entry struct {
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Recorder is what components depend on.
type Recorder interface {
	Record(kind string, payload any) error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(string, any) error { return nil }

// Writer is a Recorder backed by rotating .jsonl.zst files.
type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

// NewWriter returns a Writer creating files under baseDir. Nothing is
// opened until the first Record.
func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{baseDir: baseDir, prefix: prefix, now: time.Now}
}

// Record appends one entry.
func (w *Writer) Record(kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	at := w.now().UTC()
	day := at.Format("2006-01-02")
	if day != w.curDay {
		if err := w.rotateLocked(day); err != nil {
			return err
		}
	}

	line, err := json.Marshal(Entry{Kind: kind, At: at, Payload: body})
	if err != nil {
		return err
	}
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// PathFor returns the file a given UTC day is written to.
func (w *Writer) PathFor(day time.Time) string {
	return w.pathForDay(day.UTC().Format("2006-01-02"))
}

func (w *Writer) rotateLocked(day string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForDay(day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curDay = day
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		err = multierr.Append(err, w.w.Flush())
	}
	if w.enc != nil {
		err = multierr.Append(err, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		err = multierr.Append(err, w.f.Close())
		w.f = nil
	}
	w.w = nil
	w.curDay = ""
	return err
}

func (w *Writer) pathForDay(day string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, day))
}

// ReadFile decodes every entry of a closed journal file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes entries from a zstd stream of JSON lines.
func Read(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Entry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("decode journal line %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
