package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

const marketsPath = "/positional-markets"

// apiMarket es el modelo del API de mercados.
type apiMarket struct {
	Address      string  `json:"address"`
	CurrencyKey  string  `json:"currencyKey"`
	StrikePrice  float64 `json:"strikePrice"`
	MaturityDate int64   `json:"maturityDate"` // unix ms
	IsOpen       bool    `json:"isOpen"`
}

// FetchOpenMarkets devuelve los mercados abiertos con vencimiento posterior
// a minMaturity, ordenados como los devuelve el API.
func (c *Client) FetchOpenMarkets(ctx context.Context, minMaturity time.Time) ([]domain.Market, error) {
	url := fmt.Sprintf("%s%s/%d?min-maturity=%d",
		c.base, marketsPath, c.chainID, minMaturity.Unix())

	var resp []apiMarket
	if err := c.get(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("feed.FetchOpenMarkets: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp))
	for _, am := range resp {
		if !am.IsOpen {
			continue
		}
		markets = append(markets, domain.Market{
			Address:      strings.ToLower(am.Address),
			CurrencyKey:  am.CurrencyKey,
			StrikePrice:  am.StrikePrice,
			MaturityDate: time.UnixMilli(am.MaturityDate),
			IsOpen:       am.IsOpen,
		})
	}

	slog.Debug("feed: mercados abiertos obtenidos",
		"total", len(resp),
		"abiertos", len(markets),
	)
	return markets, nil
}
