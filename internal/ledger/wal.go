package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// walRecord is one append-only event in the write-ahead log. Events carry a
// sequence number so replay after a crash can skip everything the snapshot
// already reflects.
type walRecord struct {
	Seq       uint64                `json:"seq"`
	Kind      string                `json:"kind"` // "trade" | "error"
	Round     uint64                `json:"round"`
	Trade     *domain.ExecutedTrade `json:"trade,omitempty"`
	Failure   *domain.FailedTrade   `json:"failure,omitempty"`
	WrittenAt time.Time             `json:"writtenAt"`
}

// walWriter appends newline-delimited JSON records to the WAL file,
// flushing after every record so a crash loses at most the record being
// written, never a confirmed one.
type walWriter struct {
	path string
	file *os.File
	w    *bufio.Writer
}

func newWALWriter(path string) *walWriter {
	return &walWriter{path: path}
}

func (w *walWriter) ensureOpen() error {
	if w.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.w = bufio.NewWriter(f)
	return nil
}

// append writes one record and flushes.
func (w *walWriter) append(rec walRecord) error {
	if err := w.ensureOpen(); err != nil {
		return fmt.Errorf("ledger: open wal %q: %w", w.path, err)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: marshal wal record: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// truncate resets the WAL. Called after a round archive: the archived
// snapshot supersedes every event logged so far.
func (w *walWriter) truncate() error {
	if w.file != nil {
		w.w.Flush()
		w.file.Close()
		w.file = nil
		w.w = nil
	}
	if err := os.Truncate(w.path, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (w *walWriter) close() error {
	if w.file == nil {
		return nil
	}
	w.w.Flush()
	err := w.file.Close()
	w.file = nil
	w.w = nil
	return err
}

// readWAL parses every record in the WAL file. Missing file means no
// pending events. A truncated trailing line (crash mid-write) is skipped.
func readWAL(path string) ([]walRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: open wal %q: %w", path, err)
	}
	defer f.Close()

	var records []walRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec walRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Partial last line after a crash — nothing after it can be valid.
			break
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
