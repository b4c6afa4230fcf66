package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// MarketFeed obtiene los mercados posicionales abiertos de una red.
type MarketFeed interface {
	// FetchOpenMarkets devuelve los mercados abiertos cuya madurez es
	// posterior a minMaturity. Pagina automáticamente si hace falta.
	FetchOpenMarkets(ctx context.Context, minMaturity time.Time) ([]domain.Market, error)
}

// MarketData obtiene las tablas batch de precios e impacts on-chain,
// indexadas por dirección de mercado en minúsculas.
type MarketData interface {
	FetchPrices(ctx context.Context) (map[string]domain.MarketPrices, error)
	FetchImpacts(ctx context.Context) (map[string]domain.MarketImpacts, error)
}
