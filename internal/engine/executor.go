package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/vaultbot/internal/domain"
	"github.com/alejandrodnm/vaultbot/internal/ledger"
	"github.com/alejandrodnm/vaultbot/internal/ports"
)

// ErrZeroSized guards the executor against a sizer sentinel leaking through.
var ErrZeroSized = errors.New("engine: zero-sized trade")

// ErrConflictingSide is returned when the pre-submit ledger re-check finds
// the market committed to the other side this round.
var ErrConflictingSide = errors.New("engine: market traded with different side this round")

// Outcome is what a single execution attempt produced: exactly one of the
// two fields is set.
type Outcome struct {
	Executed *domain.ExecutedTrade
	Failed   *domain.FailedTrade
}

// Executor submits sized trades to the AMM and records the result.
type Executor struct {
	submitter ports.TradeSubmitter
	ledger    *ledger.Ledger
	history   ports.HistoryStorage // optional
	network   string
}

// NewExecutor creates a trade executor. history may be nil.
func NewExecutor(submitter ports.TradeSubmitter, led *ledger.Ledger, history ports.HistoryStorage, network string) *Executor {
	return &Executor{
		submitter: submitter,
		ledger:    led,
		history:   history,
		network:   network,
	}
}

// Execute submits one sized trade and blocks until it is mined. The ledger
// eligibility is re-checked immediately before submission: the sizing loop is
// slow and an earlier market in the same cycle may have committed this one.
//
// On success the trade is recorded through the ledger. On submission or
// confirmation failure a FailedTrade is recorded instead and returned in the
// Outcome — the caller continues with the next market either way.
func (e *Executor) Execute(ctx context.Context, trade domain.EligibleTrade, sz domain.SizingResult, round uint64) (Outcome, error) {
	if !sz.ShouldTrade() {
		return Outcome{}, ErrZeroSized
	}

	if elig := e.ledger.IsEligible(round, trade.MarketAddress, trade.Position); !elig.Eligible {
		return Outcome{}, fmt.Errorf("%w: %s already %s", ErrConflictingSide,
			trade.MarketAddress, elig.ConflictingSide.String())
	}

	slog.Info("executor: submitting trade",
		"network", e.network,
		"market", trade.MarketAddress,
		"currency", trade.CurrencyKey,
		"side", trade.Position.String(),
		"amount", sz.Amount,
		"quote", fmt.Sprintf("$%.2f", sz.Quote),
	)

	txHash, err := e.submitter.BuyFromAMM(ctx, trade, sz.Amount, sz.Quote)
	if err != nil {
		failed := domain.FailedTrade{
			ID:          uuid.New().String(),
			Network:     e.network,
			Round:       round,
			CurrencyKey: trade.CurrencyKey,
			Market:      trade.MarketAddress,
			Position:    trade.Position.String(),
			Amount:      sz.Amount,
			Quote:       sz.Quote,
			Error:       failureReason(err),
			Timestamp:   time.Now().UTC(),
		}
		e.ledger.RecordFailure(round, failed)
		e.saveFailureHistory(ctx, failed)
		slog.Warn("executor: trade failed",
			"network", e.network,
			"market", trade.MarketAddress,
			"reason", failed.Error,
		)
		return Outcome{Failed: &failed}, nil
	}

	executed := domain.ExecutedTrade{
		ID:          uuid.New().String(),
		Network:     e.network,
		Round:       round,
		CurrencyKey: trade.CurrencyKey,
		Market:      trade.MarketAddress,
		Position:    trade.Position.String(),
		Amount:      sz.Amount,
		Quote:       sz.Quote,
		Timestamp:   time.Now().UTC(),
		TxHash:      txHash,
	}

	if err := e.ledger.Record(round, executed); err != nil {
		// The fill is on-chain; the WAL kept the record even if the
		// snapshot write failed. Surface loudly but do not fail the trade.
		slog.Error("executor: trade mined but ledger persist failed",
			"tx", txHash, "err", err)
	}
	e.saveTradeHistory(ctx, executed)

	slog.Info("executor: trade confirmed",
		"network", e.network,
		"market", trade.MarketAddress,
		"tx", txHash,
	)
	return Outcome{Executed: &executed}, nil
}

func (e *Executor) saveTradeHistory(ctx context.Context, t domain.ExecutedTrade) {
	if e.history == nil {
		return
	}
	if err := e.history.SaveTrade(ctx, t); err != nil {
		slog.Warn("executor: history save failed", "err", err)
	}
}

func (e *Executor) saveFailureHistory(ctx context.Context, f domain.FailedTrade) {
	if e.history == nil {
		return
	}
	if err := e.history.SaveFailure(ctx, f); err != nil {
		slog.Warn("executor: history save failed", "err", err)
	}
}

// failureReason extracts a human-readable reason from a submission error,
// preferring the structured revert reason the node attaches over the raw
// message chain.
func failureReason(err error) string {
	type dataError interface {
		Error() string
		ErrorData() interface{}
	}

	var de dataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok && s != "" {
			return fmt.Sprintf("%s (%s)", de.Error(), s)
		}
		return de.Error()
	}
	return err.Error()
}
