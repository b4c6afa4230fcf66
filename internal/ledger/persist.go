package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// persist rewrites the full snapshot atomically: the document is written to a
// temp file and renamed over the target, so a crash mid-write leaves the old
// snapshot intact. Caller holds the lock.
func (l *Ledger) persist() error {
	b, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshal state: %w", err)
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ledger: mkdir for %q: %w", l.path, err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("ledger: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("ledger: rename %q: %w", l.path, err)
	}
	return nil
}

// archive writes an immutable full copy of the current state keyed by the
// round it belongs to. Caller holds the lock.
func (l *Ledger) archive(round uint64) error {
	if err := os.MkdirAll(l.archiveDir, 0o755); err != nil {
		return fmt.Errorf("ledger: mkdir archive %q: %w", l.archiveDir, err)
	}

	b, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshal archive: %w", err)
	}
	b = append(b, '\n')

	path := filepath.Join(l.archiveDir, fmt.Sprintf("round_%d.json", round))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("ledger: write archive %q: %w", path, err)
	}
	return nil
}

// loadSnapshot reads the snapshot file, returning a fresh state when the
// file does not exist yet.
func loadSnapshot(path string) (State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newState(), nil
		}
		return State{}, fmt.Errorf("ledger: read %q: %w", path, err)
	}

	state := newState()
	if err := json.Unmarshal(b, &state); err != nil {
		return State{}, fmt.Errorf("ledger: parse %q: %w", path, err)
	}
	// Maps may be null in hand-edited or very old files.
	if state.TradedMarkets == nil {
		state.TradedMarkets = make(map[uint64][]string)
	}
	if state.Positions == nil {
		state.Positions = make(map[uint64]map[string]string)
	}
	if state.Allocations == nil {
		state.Allocations = make(map[uint64]map[string]string)
	}
	return state, nil
}
