// Package ledger owns the per-round trading state: which markets were traded,
// on which side, and how much capital remains per market. It enforces the
// at-most-one-side-per-market-per-round invariant and persists every mutation
// durably before the caller proceeds.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// ErrRoundRegression is returned when a rollover targets an older round.
// Rounds are monotonic; a regression means the chain state and the local
// ledger disagree and nothing should be mutated.
var ErrRoundRegression = errors.New("ledger: round regression")

// State is the serialized ledger document. Field names match the historical
// on-disk layout, so old ledgers load without migration.
type State struct {
	LatestRound   uint64                       `json:"latestRound"`
	TradedMarkets map[uint64][]string          `json:"tradedMarkets"`
	Positions     map[uint64]map[string]string `json:"tradingMarketPositionPerRound"`
	Allocations   map[uint64]map[string]string `json:"availableAllocationPerMarket"` // decimal-as-string
	TradeLog      []domain.ExecutedTrade       `json:"tradeLog"`
	ErrorLog      []domain.FailedTrade         `json:"errorLog"`
	AppliedSeq    uint64                       `json:"appliedSeq"` // last WAL seq reflected here
}

func newState() State {
	return State{
		TradedMarkets: make(map[uint64][]string),
		Positions:     make(map[uint64]map[string]string),
		Allocations:   make(map[uint64]map[string]string),
	}
}

// Eligibility is the result of the pre-trade ledger check.
type Eligibility struct {
	Eligible bool
	// Traded is true if the market was already traded this round
	// (same side — a top-up is still eligible).
	Traded bool
	// ConflictingSide is set when Eligible is false: the side already
	// committed this round.
	ConflictingSide domain.Position
}

// Ledger is the process-wide allocation state for one network. It is owned
// by a single orchestrator; the mutex only guards against accidental misuse.
type Ledger struct {
	mu         sync.Mutex
	path       string
	archiveDir string
	wal        *walWriter
	state      State
	seq        uint64
}

// Open loads the ledger from path, creating a fresh one if none exists.
// WAL events newer than the snapshot are replayed, so a fill confirmed just
// before a crash is never silently lost.
func Open(path, archiveDir string) (*Ledger, error) {
	state, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		path:       path,
		archiveDir: archiveDir,
		wal:        newWALWriter(path + ".wal"),
		state:      state,
		seq:        state.AppliedSeq,
	}

	replayed, err := l.replayWAL()
	if err != nil {
		return nil, err
	}
	if replayed > 0 {
		slog.Warn("ledger: replayed events from wal after unclean shutdown",
			"path", path, "events", replayed)
		if err := l.persist(); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// LatestRound returns the round the ledger currently tracks.
func (l *Ledger) LatestRound() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.LatestRound
}

// IsEligible reports whether a market may be traded on the given side this
// round. A market already traded with a different side is rejected; trading
// the same side again is an idempotent top-up and stays eligible.
func (l *Ledger) IsEligible(round uint64, market string, pos domain.Position) Eligibility {
	l.mu.Lock()
	defer l.mu.Unlock()

	prior, traded := l.state.Positions[round][market]
	if !traded {
		return Eligibility{Eligible: true}
	}
	priorPos := domain.ParsePosition(prior)
	if priorPos == pos {
		return Eligibility{Eligible: true, Traded: true}
	}
	return Eligibility{Eligible: false, Traded: true, ConflictingSide: priorPos}
}

// RemainingFor returns the capital still available for a market this round,
// lazily initializing the per-market cap to totalAllocation*perMarketFraction
// on first access.
func (l *Ledger) RemainingFor(round uint64, market string, totalAllocation, perMarketFraction float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if allocs, ok := l.state.Allocations[round]; ok {
		if s, ok := allocs[market]; ok {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, fmt.Errorf("ledger.RemainingFor: corrupt allocation %q for %s: %w", s, market, err)
			}
			return v, nil
		}
	}

	cap := totalAllocation * perMarketFraction
	l.setAllocation(round, market, cap)
	if err := l.persist(); err != nil {
		return 0, err
	}
	return cap, nil
}

// Record appends an executed trade, decrements the market's allocation, and
// marks the market and side as traded this round. The WAL entry is written
// before the state mutates, then the full snapshot is rewritten.
func (l *Ledger) Record(round uint64, trade domain.ExecutedTrade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	if err := l.wal.append(walRecord{
		Seq:       l.seq,
		Kind:      "trade",
		Round:     round,
		Trade:     &trade,
		WrittenAt: trade.Timestamp,
	}); err != nil {
		l.seq--
		return fmt.Errorf("ledger.Record: wal append: %w", err)
	}

	l.applyTrade(round, trade)
	l.state.AppliedSeq = l.seq
	return l.persist()
}

// RecordFailure appends a failed-trade record to the error log. It never
// returns an error to the caller: a failure to log a failure is logged and
// swallowed so the cycle always continues.
func (l *Ledger) RecordFailure(round uint64, failure domain.FailedTrade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	if err := l.wal.append(walRecord{
		Seq:       l.seq,
		Kind:      "error",
		Round:     round,
		Failure:   &failure,
		WrittenAt: failure.Timestamp,
	}); err != nil {
		l.seq--
		slog.Warn("ledger: could not append failure to wal", "err", err)
	}

	l.applyFailure(failure)
	l.state.AppliedSeq = l.seq
	if err := l.persist(); err != nil {
		slog.Warn("ledger: could not persist after failure record", "err", err)
	}
}

// RollRound advances the ledger to a new round. The current state is
// archived under the previous round number before the per-round maps and
// logs reset. Rolling to the current round is a no-op; rolling backwards is
// a consistency violation and mutates nothing.
func (l *Ledger) RollRound(newRound uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case newRound == l.state.LatestRound:
		return nil
	case newRound < l.state.LatestRound:
		return fmt.Errorf("%w: have %d, got %d", ErrRoundRegression, l.state.LatestRound, newRound)
	}

	// First ever round: nothing to archive.
	if l.state.LatestRound > 0 {
		if err := l.archive(newRound - 1); err != nil {
			return err
		}
	}

	l.state.TradedMarkets = make(map[uint64][]string)
	l.state.Positions = make(map[uint64]map[string]string)
	l.state.Allocations = make(map[uint64]map[string]string)
	l.state.TradeLog = nil
	l.state.ErrorLog = nil
	l.state.LatestRound = newRound

	if err := l.wal.truncate(); err != nil {
		slog.Warn("ledger: could not truncate wal after roll", "err", err)
	}
	l.seq = l.state.AppliedSeq

	return l.persist()
}

// TradeCount returns how many trades this round's log holds. For reporting.
func (l *Ledger) TradeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state.TradeLog)
}

// Close flushes and closes the WAL.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wal.close()
}

// --- internal mutation helpers (callers hold the lock) ---

func (l *Ledger) applyTrade(round uint64, trade domain.ExecutedTrade) {
	l.state.TradeLog = append(l.state.TradeLog, trade)

	if !contains(l.state.TradedMarkets[round], trade.Market) {
		l.state.TradedMarkets[round] = append(l.state.TradedMarkets[round], trade.Market)
	}

	if l.state.Positions[round] == nil {
		l.state.Positions[round] = make(map[string]string)
	}
	if _, set := l.state.Positions[round][trade.Market]; !set {
		// At most one side per market per round; a same-side top-up
		// must not rewrite it.
		l.state.Positions[round][trade.Market] = trade.Position
	}

	remaining := l.allocationOrZero(round, trade.Market)
	l.setAllocation(round, trade.Market, remaining-trade.Quote)
}

func (l *Ledger) applyFailure(failure domain.FailedTrade) {
	l.state.ErrorLog = append(l.state.ErrorLog, failure)
}

func (l *Ledger) allocationOrZero(round uint64, market string) float64 {
	if s, ok := l.state.Allocations[round][market]; ok {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return 0
}

func (l *Ledger) setAllocation(round uint64, market string, v float64) {
	if l.state.Allocations[round] == nil {
		l.state.Allocations[round] = make(map[string]string)
	}
	l.state.Allocations[round][market] = strconv.FormatFloat(v, 'f', -1, 64)
}

// replayWAL applies WAL events newer than the snapshot's AppliedSeq.
func (l *Ledger) replayWAL() (int, error) {
	records, err := readWAL(l.wal.path)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, rec := range records {
		if rec.Seq <= l.state.AppliedSeq {
			continue
		}
		switch rec.Kind {
		case "trade":
			if rec.Trade != nil {
				l.applyTrade(rec.Round, *rec.Trade)
			}
		case "error":
			if rec.Failure != nil {
				l.applyFailure(*rec.Failure)
			}
		}
		l.state.AppliedSeq = rec.Seq
		replayed++
	}
	if l.seq < l.state.AppliedSeq {
		l.seq = l.state.AppliedSeq
	}
	return replayed, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
