package ports

import (
	"context"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// AMMQuoter exposes the read-side AMM primitives the sizer converges against.
// Amounts are whole token counts; the adapter handles fixed-point scaling.
type AMMQuoter interface {
	// AvailableToBuy returns the max token amount the AMM will sell for a side.
	AvailableToBuy(ctx context.Context, market string, pos domain.Position) (float64, error)

	// BuyPriceImpact returns the skew impact a hypothetical buy of amount
	// tokens would cause, as a decimal fraction. May be negative.
	BuyPriceImpact(ctx context.Context, market string, pos domain.Position, amount int64) (float64, error)

	// BuyQuote returns the sUSD cost of buying amount tokens.
	BuyQuote(ctx context.Context, market string, pos domain.Position, amount int64) (float64, error)
}

// TradeSubmitter submits a sized buy to the AMM and waits for confirmation.
type TradeSubmitter interface {
	// BuyFromAMM sends the transaction and blocks until it is mined.
	// Returns the transaction hash on success.
	BuyFromAMM(ctx context.Context, trade domain.EligibleTrade, amount int64, expectedQuote float64) (string, error)
}
