// Package sizing converges on a trade size against the AMM's live quotes.
//
// The algorithm is a two-phase decaying step-search, not a binary search: it
// trades precision for a bounded number of oracle queries and a bias toward
// the largest amount that satisfies the skew impact ceiling. Each AMM query
// is a rate-limited on-chain call, so iteration count matters more than
// finding the exact optimum.
package sizing

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/vaultbot/internal/domain"
	"github.com/alejandrodnm/vaultbot/internal/ports"
)

const (
	// impactDecay shrinks the amount while the skew impact is over the limit.
	impactDecay = 0.95
	// quoteDecay shrinks the amount while the quote exceeds the allocation.
	// Smaller step: by this point the amount is already near the target.
	quoteDecay = 0.99
)

// Params are the inputs the sizer needs besides the trade itself.
type Params struct {
	// RemainingAllocation is the capital still available for this market
	// in the current round, in sUSD.
	RemainingAllocation float64

	// MinTradeAmount is the floor the amount is clamped to, never zeroed.
	MinTradeAmount int64

	// SkewImpactLimit is the max skew impact accepted for the final amount.
	SkewImpactLimit float64

	// AvailableToBuy is the AMM-reported max sellable amount for this side.
	AvailableToBuy float64

	// AllowMinTradeOverAllocation lets a trade clamped at MinTradeAmount
	// proceed even when its quote still exceeds the allocation. Off by
	// default: the safe reading of the allocation cap.
	AllowMinTradeOverAllocation bool
}

// Size converges on a token amount and quote for an eligible trade.
//
// Phase A shrinks from a zero-slippage ceiling estimate until the AMM-reported
// skew impact fits under the limit. Phase B shrinks further until the quote
// fits the remaining allocation. The final quote is re-queried once at the
// settled amount so the returned value is never stale.
//
// A zero Amount in the result means "do not trade" and must short-circuit
// the executor. Size never returns a negative amount.
func Size(ctx context.Context, trade domain.EligibleTrade, p Params, amm ports.AMMQuoter) (domain.SizingResult, error) {
	zero := domain.SizingResult{Position: trade.Position}

	if trade.Price <= 0 {
		return zero, fmt.Errorf("sizing.Size: non-positive price %f for %s", trade.Price, trade.MarketAddress)
	}

	// Ceiling estimate: what the allocation buys with zero slippage.
	amount := int64(math.Round(p.RemainingAllocation / trade.Price))

	// Not enough liquidity on either side of the trade — normal outcome,
	// not an error. No oracle queries are issued.
	if p.AvailableToBuy == 0 ||
		p.AvailableToBuy < float64(p.MinTradeAmount) ||
		amount < p.MinTradeAmount {
		slog.Debug("sizing: not enough liquidity",
			"market", trade.MarketAddress,
			"available", p.AvailableToBuy,
			"ceiling", amount,
			"min", p.MinTradeAmount,
		)
		return zero, nil
	}

	amount, err := impactSearch(ctx, trade, p, amm, amount)
	if err != nil {
		return zero, err
	}

	amount, ok, err := allocationSearch(ctx, trade, p, amm, amount)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, nil
	}

	// Re-query at the settled amount: the loop's last comparison may have
	// been made against a quote for a larger amount.
	finalQuote, err := amm.BuyQuote(ctx, trade.MarketAddress, trade.Position, amount)
	if err != nil {
		return zero, fmt.Errorf("sizing.Size: final quote: %w", err)
	}

	slog.Debug("sizing: settled",
		"market", trade.MarketAddress,
		"side", trade.Position.String(),
		"amount", amount,
		"quote", finalQuote,
	)

	return domain.SizingResult{Amount: amount, Quote: finalQuote, Position: trade.Position}, nil
}

// impactSearch is phase A: shrink by impactDecay until the skew impact fits.
// The search only runs while the amount is under the AMM's available size;
// an amount at or above it would be rejected on-chain anyway.
func impactSearch(ctx context.Context, trade domain.EligibleTrade, p Params, amm ports.AMMQuoter, amount int64) (int64, error) {
	for float64(amount) < p.AvailableToBuy {
		impact, err := amm.BuyPriceImpact(ctx, trade.MarketAddress, trade.Position, amount)
		if err != nil {
			return 0, fmt.Errorf("sizing.Size: impact query at %d: %w", amount, err)
		}
		slog.Debug("sizing: simulated impact",
			"market", trade.MarketAddress,
			"side", trade.Position.String(),
			"amount", amount,
			"impact", impact,
			"limit", p.SkewImpactLimit,
		)
		if impact <= p.SkewImpactLimit {
			break
		}

		next := clampFloor(float64(amount)*impactDecay, p.MinTradeAmount)
		if next == amount {
			// Clamped at the floor; shrinking further is impossible.
			break
		}
		amount = next
	}
	return amount, nil
}

// allocationSearch is phase B: shrink by quoteDecay until the quote fits the
// remaining allocation. Returns ok=false when the amount is pinned at the
// floor with an over-allocation quote and the policy flag disallows it.
func allocationSearch(ctx context.Context, trade domain.EligibleTrade, p Params, amm ports.AMMQuoter, amount int64) (int64, bool, error) {
	quote, err := amm.BuyQuote(ctx, trade.MarketAddress, trade.Position, amount)
	if err != nil {
		return 0, false, fmt.Errorf("sizing.Size: quote at %d: %w", amount, err)
	}

	for quote > p.RemainingAllocation {
		next := clampFloor(float64(amount)*quoteDecay, p.MinTradeAmount)
		if next == amount {
			// Pinned at MinTradeAmount and still over the allocation.
			if p.AllowMinTradeOverAllocation {
				return amount, true, nil
			}
			slog.Debug("sizing: floor quote exceeds allocation",
				"market", trade.MarketAddress,
				"quote", quote,
				"allocation", p.RemainingAllocation,
			)
			return 0, false, nil
		}
		amount = next

		quote, err = amm.BuyQuote(ctx, trade.MarketAddress, trade.Position, amount)
		if err != nil {
			return 0, false, fmt.Errorf("sizing.Size: quote at %d: %w", amount, err)
		}
		slog.Debug("sizing: quote over allocation, reduced",
			"market", trade.MarketAddress,
			"amount", amount,
			"quote", quote,
			"allocation", p.RemainingAllocation,
		)
	}

	return amount, true, nil
}

// clampFloor floors v and clamps to min. Sizes are never ceiled: rounding up
// could exceed the allocation.
func clampFloor(v float64, min int64) int64 {
	n := int64(math.Floor(v))
	if n < min {
		return min
	}
	return n
}
