// Package engine drives the per-network polling cycle: fetch round state,
// reconcile rollovers against the ledger, filter markets, size and execute
// trades, persist, sleep, repeat.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/vaultbot/internal/domain"
	"github.com/alejandrodnm/vaultbot/internal/filter"
	"github.com/alejandrodnm/vaultbot/internal/ledger"
	"github.com/alejandrodnm/vaultbot/internal/ports"
	"github.com/alejandrodnm/vaultbot/internal/sizing"
)

// Config holds the orchestrator's knobs.
type Config struct {
	Interval time.Duration
	// DryRun sizes every eligible market but submits nothing.
	DryRun bool
	// AllowMinTradeOverAllocation is the sizer's floor policy (see sizing).
	AllowMinTradeOverAllocation bool
}

// Engine runs the trading cycle for one network. Markets are processed
// strictly sequentially: the in-memory ledger stays consistent without
// locking, and the AMM quotes reflect our own earlier fills in the cycle.
type Engine struct {
	network  domain.Network
	vault    ports.VaultReader
	feed     ports.MarketFeed
	data     ports.MarketData
	amm      ports.AMMQuoter
	executor *Executor
	ledger   *ledger.Ledger
	notifier ports.Notifier
	cfg      Config
}

// New wires an engine from its collaborators.
func New(
	network domain.Network,
	vault ports.VaultReader,
	feed ports.MarketFeed,
	data ports.MarketData,
	amm ports.AMMQuoter,
	executor *Executor,
	led *ledger.Ledger,
	notifier ports.Notifier,
	cfg Config,
) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Engine{
		network:  network,
		vault:    vault,
		feed:     feed,
		data:     data,
		amm:      amm,
		executor: executor,
		ledger:   led,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Run loops until the context is cancelled. A cycle error is logged and the
// loop sleeps and retries; the process never exits on a single cycle's
// failure.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine: starting",
		"network", e.network.Name,
		"interval", e.cfg.Interval,
		"dry_run", e.cfg.DryRun,
	)

	e.cycle(ctx)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopped", "network", e.network.Name)
			return nil
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

// cycle runs one iteration and reports the result, absorbing errors.
func (e *Engine) cycle(ctx context.Context) {
	report, err := e.RunOnce(ctx)
	if err != nil {
		slog.Error("engine: cycle failed", "network", e.network.Name, "err", err)
		return
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyCycle(ctx, *report); err != nil {
			slog.Warn("engine: notifier error", "err", err)
		}
	}
}

// RunOnce executes exactly one trading cycle and returns its report.
//
// On round rollover the ledger is archived and reset and trading is skipped
// for this cycle: the round just started, there is nothing to reconcile yet.
func (e *Engine) RunOnce(ctx context.Context) (*domain.CycleReport, error) {
	start := time.Now()
	report := &domain.CycleReport{Network: e.network.Name}

	round, roundEnd, err := e.vault.RoundInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: round info: %w", err)
	}
	report.Round = round

	limits, err := e.vault.TradingLimits(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: trading limits: %w", err)
	}

	slog.Info("engine: cycle start",
		"network", e.network.Name,
		"round", round,
		"round_end", roundEnd.Format(time.RFC3339),
		"price_band", fmt.Sprintf("%.2f-%.2f", limits.PriceLowerLimit, limits.PriceUpperLimit),
		"impact_limit", limits.SkewImpactLimit,
	)

	if round != e.ledger.LatestRound() {
		if err := e.ledger.RollRound(round); err != nil {
			if errors.Is(err, ledger.ErrRoundRegression) {
				return nil, fmt.Errorf("engine.RunOnce: %w", err)
			}
			return nil, fmt.Errorf("engine.RunOnce: roll round: %w", err)
		}
		slog.Info("engine: round rolled over, skipping trading this cycle",
			"network", e.network.Name, "round", round)
		report.Rollover = true
		report.Duration = time.Since(start)
		return report, nil
	}

	eligible, candidates, err := e.filterMarkets(ctx, limits, roundEnd)
	if err != nil {
		return nil, err
	}
	report.Candidates = candidates
	report.Eligible = len(eligible)

	for _, trade := range eligible {
		e.processMarket(ctx, trade, round, limits, report)
	}

	report.Duration = time.Since(start)
	slog.Info("engine: cycle complete",
		"network", e.network.Name,
		"round", round,
		"eligible", report.Eligible,
		"executed", len(report.Executed),
		"failed", len(report.Failed),
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}

// filterMarkets fetches the feed and the on-chain tables and applies the
// eligibility filter.
func (e *Engine) filterMarkets(ctx context.Context, limits domain.TradingLimits, roundEnd time.Time) ([]domain.EligibleTrade, int, error) {
	now := time.Now()

	markets, err := e.feed.FetchOpenMarkets(ctx, now)
	if err != nil {
		return nil, 0, fmt.Errorf("engine.RunOnce: fetch markets: %w", err)
	}

	prices, err := e.data.FetchPrices(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("engine.RunOnce: fetch prices: %w", err)
	}
	impacts, err := e.data.FetchImpacts(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("engine.RunOnce: fetch impacts: %w", err)
	}

	eligible := filter.SelectEligible(markets, prices, impacts, filter.Limits{
		PriceLowerLimit: limits.PriceLowerLimit,
		PriceUpperLimit: limits.PriceUpperLimit,
		SkewImpactLimit: limits.SkewImpactLimit,
	}, now, roundEnd)

	slog.Info("engine: markets filtered",
		"network", e.network.Name,
		"candidates", len(markets),
		"eligible", len(eligible),
	)
	return eligible, len(markets), nil
}

// processMarket runs SIZE → EXECUTE for one eligible market. Any per-market
// failure is logged and skipped; it never aborts the cycle.
func (e *Engine) processMarket(ctx context.Context, trade domain.EligibleTrade, round uint64, limits domain.TradingLimits, report *domain.CycleReport) {
	log := slog.With(
		"network", e.network.Name,
		"market", trade.MarketAddress,
		"currency", trade.CurrencyKey,
		"side", trade.Position.String(),
	)

	elig := e.ledger.IsEligible(round, trade.MarketAddress, trade.Position)
	if !elig.Eligible {
		log.Info("engine: market already traded with different side, skipping",
			"prior_side", elig.ConflictingSide.String())
		return
	}
	if elig.Traded {
		log.Debug("engine: market already traded same side, topping up")
	}

	remaining, err := e.ledger.RemainingFor(round, trade.MarketAddress,
		limits.TradingAllocation, e.network.PerMarketFraction)
	if err != nil {
		log.Warn("engine: allocation lookup failed, skipping", "err", err)
		return
	}
	log.Debug("engine: allocation available", "remaining", fmt.Sprintf("$%.2f", remaining))

	available, err := e.amm.AvailableToBuy(ctx, trade.MarketAddress, trade.Position)
	if err != nil {
		log.Warn("engine: availableToBuy query failed, skipping", "err", err)
		return
	}

	sz, err := sizing.Size(ctx, trade, sizing.Params{
		RemainingAllocation:         remaining,
		MinTradeAmount:              limits.MinTradeAmount,
		SkewImpactLimit:             limits.SkewImpactLimit,
		AvailableToBuy:              available,
		AllowMinTradeOverAllocation: e.cfg.AllowMinTradeOverAllocation,
	}, e.amm)
	if err != nil {
		log.Warn("engine: sizing failed, skipping", "err", err)
		return
	}
	if !sz.ShouldTrade() {
		report.SkippedZero++
		return
	}

	if e.cfg.DryRun {
		log.Info("engine: dry run, would trade",
			"amount", sz.Amount, "quote", fmt.Sprintf("$%.2f", sz.Quote))
		return
	}

	outcome, err := e.executor.Execute(ctx, trade, sz, round)
	if err != nil {
		log.Warn("engine: execution precondition failed, skipping", "err", err)
		return
	}
	if outcome.Executed != nil {
		report.Executed = append(report.Executed, *outcome.Executed)
	}
	if outcome.Failed != nil {
		report.Failed = append(report.Failed, *outcome.Failed)
	}
}
