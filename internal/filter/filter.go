// Package filter selecciona los mercados elegibles de un ciclo: ventana de
// trading de la ronda, límites de precio y techo de skew impact.
package filter

import (
	"log/slog"
	"time"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// Limits son los umbrales numéricos del filtro.
type Limits struct {
	PriceLowerLimit float64
	PriceUpperLimit float64
	SkewImpactLimit float64
}

// SelectEligible recorre los mercados candidatos y devuelve los trades
// elegibles con su lado. Reglas:
//
//   - La madurez debe caer estrictamente entre now y roundEnd.
//   - Sin entrada de precio o impact en las tablas → se salta (feed incompleto).
//   - Un lado califica si lowerLimit < precio < upperLimit Y impact < impactLimit.
//   - UP se evalúa primero y gana — nunca se entra a los dos lados de un mercado.
//
// Ningún mercado malformado aborta el batch: se loguea y se salta.
func SelectEligible(
	markets []domain.Market,
	prices map[string]domain.MarketPrices,
	impacts map[string]domain.MarketImpacts,
	limits Limits,
	now, roundEnd time.Time,
) []domain.EligibleTrade {
	eligible := make([]domain.EligibleTrade, 0, len(markets))

	for _, market := range markets {
		if !market.InTradingWindow(now, roundEnd) {
			continue
		}

		price, okPrice := prices[market.Address]
		impact, okImpact := impacts[market.Address]
		if !okPrice || !okImpact {
			slog.Debug("filter: missing price/impact entry", "market", market.Address)
			continue
		}

		if trade, ok := pickSide(market, price, impact, limits); ok {
			eligible = append(eligible, trade)
		}
	}

	return eligible
}

// pickSide aplica la regla de elegibilidad a ambos lados. UP primero.
func pickSide(
	market domain.Market,
	price domain.MarketPrices,
	impact domain.MarketImpacts,
	limits Limits,
) (domain.EligibleTrade, bool) {
	if inPriceBand(price.Up, limits) && impact.Up < limits.SkewImpactLimit {
		return domain.EligibleTrade{
			MarketAddress: market.Address,
			Position:      domain.PositionUp,
			CurrencyKey:   market.CurrencyKey,
			Price:         price.Up,
		}, true
	}
	if inPriceBand(price.Down, limits) && impact.Down < limits.SkewImpactLimit {
		return domain.EligibleTrade{
			MarketAddress: market.Address,
			Position:      domain.PositionDown,
			CurrencyKey:   market.CurrencyKey,
			Price:         price.Down,
		}, true
	}
	return domain.EligibleTrade{}, false
}

func inPriceBand(price float64, limits Limits) bool {
	return price > limits.PriceLowerLimit && price < limits.PriceUpperLimit
}
