package filter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/vaultbot/internal/domain"
	"github.com/alejandrodnm/vaultbot/internal/filter"
)

var testLimits = filter.Limits{
	PriceLowerLimit: 0.70,
	PriceUpperLimit: 0.90,
	SkewImpactLimit: 0.015,
}

func makeMarket(addr string, maturity time.Time) domain.Market {
	return domain.Market{
		Address:      addr,
		CurrencyKey:  "ETH",
		StrikePrice:  2500,
		MaturityDate: maturity,
		IsOpen:       true,
	}
}

func TestSelectEligible_UpSideQualifies(t *testing.T) {
	now := time.Now()
	roundEnd := now.Add(7 * 24 * time.Hour)
	m := makeMarket("0xaaa", now.Add(24*time.Hour))

	prices := map[string]domain.MarketPrices{"0xaaa": {Up: 0.75, Down: 0.25}}
	impacts := map[string]domain.MarketImpacts{"0xaaa": {Up: 0.01, Down: 0.0}}

	eligible := filter.SelectEligible([]domain.Market{m}, prices, impacts, testLimits, now, roundEnd)

	require.Len(t, eligible, 1)
	assert.Equal(t, domain.PositionUp, eligible[0].Position)
	assert.Equal(t, 0.75, eligible[0].Price)
	assert.Equal(t, "ETH", eligible[0].CurrencyKey)
}

func TestSelectEligible_DownSideQualifies(t *testing.T) {
	now := time.Now()
	roundEnd := now.Add(7 * 24 * time.Hour)
	m := makeMarket("0xbbb", now.Add(24*time.Hour))

	prices := map[string]domain.MarketPrices{"0xbbb": {Up: 0.20, Down: 0.80}}
	impacts := map[string]domain.MarketImpacts{"0xbbb": {Up: 0.0, Down: 0.005}}

	eligible := filter.SelectEligible([]domain.Market{m}, prices, impacts, testLimits, now, roundEnd)

	require.Len(t, eligible, 1)
	assert.Equal(t, domain.PositionDown, eligible[0].Position)
	assert.Equal(t, 0.80, eligible[0].Price)
}

func TestSelectEligible_UpWinsWhenBothQualify(t *testing.T) {
	// Ambos lados en banda es raro pero posible con bandas anchas;
	// solo UP debe salir — nunca los dos lados del mismo mercado.
	now := time.Now()
	roundEnd := now.Add(7 * 24 * time.Hour)
	m := makeMarket("0xccc", now.Add(24*time.Hour))

	wide := filter.Limits{PriceLowerLimit: 0.10, PriceUpperLimit: 0.90, SkewImpactLimit: 0.015}
	prices := map[string]domain.MarketPrices{"0xccc": {Up: 0.45, Down: 0.55}}
	impacts := map[string]domain.MarketImpacts{"0xccc": {Up: 0.001, Down: 0.001}}

	eligible := filter.SelectEligible([]domain.Market{m}, prices, impacts, wide, now, roundEnd)

	require.Len(t, eligible, 1)
	assert.Equal(t, domain.PositionUp, eligible[0].Position)
}

func TestSelectEligible_PriceBandIsExclusive(t *testing.T) {
	now := time.Now()
	roundEnd := now.Add(7 * 24 * time.Hour)

	tests := []struct {
		name  string
		up    float64
		wants int
	}{
		{"precio en el límite inferior", 0.70, 0},
		{"precio en el límite superior", 0.90, 0},
		{"justo dentro de la banda", 0.71, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := makeMarket("0xddd", now.Add(24*time.Hour))
			prices := map[string]domain.MarketPrices{"0xddd": {Up: tt.up, Down: 1 - tt.up}}
			impacts := map[string]domain.MarketImpacts{"0xddd": {Up: 0.0, Down: 0.5}}

			eligible := filter.SelectEligible([]domain.Market{m}, prices, impacts, testLimits, now, roundEnd)
			assert.Len(t, eligible, tt.wants)
		})
	}
}

func TestSelectEligible_SkewImpactOverLimit(t *testing.T) {
	now := time.Now()
	roundEnd := now.Add(7 * 24 * time.Hour)
	m := makeMarket("0xeee", now.Add(24*time.Hour))

	prices := map[string]domain.MarketPrices{"0xeee": {Up: 0.75, Down: 0.25}}
	impacts := map[string]domain.MarketImpacts{"0xeee": {Up: 0.02, Down: 0.5}}

	eligible := filter.SelectEligible([]domain.Market{m}, prices, impacts, testLimits, now, roundEnd)
	assert.Empty(t, eligible, "impact por encima del límite debe descartar el lado")
}

func TestSelectEligible_NegativeImpactQualifies(t *testing.T) {
	// Un impact negativo reduce el skew del AMM — siempre bajo el límite.
	now := time.Now()
	roundEnd := now.Add(7 * 24 * time.Hour)
	m := makeMarket("0xfff", now.Add(24*time.Hour))

	prices := map[string]domain.MarketPrices{"0xfff": {Up: 0.75, Down: 0.25}}
	impacts := map[string]domain.MarketImpacts{"0xfff": {Up: -0.003, Down: 0.5}}

	eligible := filter.SelectEligible([]domain.Market{m}, prices, impacts, testLimits, now, roundEnd)
	require.Len(t, eligible, 1)
	assert.Equal(t, domain.PositionUp, eligible[0].Position)
}

func TestSelectEligible_MaturityOutsideWindow(t *testing.T) {
	now := time.Now()
	roundEnd := now.Add(7 * 24 * time.Hour)

	tests := []struct {
		name     string
		maturity time.Time
	}{
		{"madura antes de now", now.Add(-time.Hour)},
		{"madura después del cierre de ronda", roundEnd.Add(time.Hour)},
		{"madura exactamente al cierre", roundEnd},
	}

	prices := map[string]domain.MarketPrices{"0xabc": {Up: 0.75, Down: 0.25}}
	impacts := map[string]domain.MarketImpacts{"0xabc": {Up: 0.0, Down: 0.0}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := makeMarket("0xabc", tt.maturity)
			eligible := filter.SelectEligible([]domain.Market{m}, prices, impacts, testLimits, now, roundEnd)
			assert.Empty(t, eligible)
		})
	}
}

func TestSelectEligible_MissingTableEntriesSkipped(t *testing.T) {
	now := time.Now()
	roundEnd := now.Add(7 * 24 * time.Hour)

	withPrices := makeMarket("0x111", now.Add(24*time.Hour))
	noImpacts := makeMarket("0x222", now.Add(24*time.Hour))
	noPrices := makeMarket("0x333", now.Add(24*time.Hour))

	prices := map[string]domain.MarketPrices{
		"0x111": {Up: 0.75, Down: 0.25},
		"0x222": {Up: 0.75, Down: 0.25},
	}
	impacts := map[string]domain.MarketImpacts{
		"0x111": {Up: 0.0, Down: 0.5},
		"0x333": {Up: 0.0, Down: 0.5},
	}

	eligible := filter.SelectEligible(
		[]domain.Market{withPrices, noImpacts, noPrices},
		prices, impacts, testLimits, now, roundEnd,
	)

	// Solo el mercado con entradas en ambas tablas sobrevive; los demás se
	// saltan sin abortar el batch.
	require.Len(t, eligible, 1)
	assert.Equal(t, "0x111", eligible[0].MarketAddress)
}
