package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/vaultbot/internal/domain"
	"github.com/alejandrodnm/vaultbot/internal/engine"
	"github.com/alejandrodnm/vaultbot/internal/ledger"
)

// --- mocks ---

type mockVault struct {
	round    uint64
	roundEnd time.Time
	limits   domain.TradingLimits
	err      error
}

func (m *mockVault) RoundInfo(_ context.Context) (uint64, time.Time, error) {
	return m.round, m.roundEnd, m.err
}

func (m *mockVault) TradingLimits(_ context.Context) (domain.TradingLimits, error) {
	return m.limits, m.err
}

type mockFeed struct {
	markets []domain.Market
	calls   int
	err     error
}

func (m *mockFeed) FetchOpenMarkets(_ context.Context, _ time.Time) ([]domain.Market, error) {
	m.calls++
	return m.markets, m.err
}

type mockData struct {
	prices  map[string]domain.MarketPrices
	impacts map[string]domain.MarketImpacts
	err     error
}

func (m *mockData) FetchPrices(_ context.Context) (map[string]domain.MarketPrices, error) {
	return m.prices, m.err
}

func (m *mockData) FetchImpacts(_ context.Context) (map[string]domain.MarketImpacts, error) {
	return m.impacts, m.err
}

// mockAMM responde con un AMM lineal: impact fijo bajo y quote = amount*0.80.
type mockAMM struct {
	available      float64
	availableCalls int
}

func (m *mockAMM) AvailableToBuy(_ context.Context, _ string, _ domain.Position) (float64, error) {
	m.availableCalls++
	return m.available, nil
}

func (m *mockAMM) BuyPriceImpact(_ context.Context, _ string, _ domain.Position, _ int64) (float64, error) {
	return 0.001, nil
}

func (m *mockAMM) BuyQuote(_ context.Context, _ string, _ domain.Position, amount int64) (float64, error) {
	return float64(amount) * 0.80, nil
}

type mockSubmitter struct {
	txHash string
	calls  int
	errFor map[string]error // market → error a devolver
}

func (m *mockSubmitter) BuyFromAMM(_ context.Context, trade domain.EligibleTrade, _ int64, _ float64) (string, error) {
	m.calls++
	if err, ok := m.errFor[trade.MarketAddress]; ok {
		return "", err
	}
	return m.txHash, nil
}

type mockNotifier struct {
	reports []domain.CycleReport
}

func (m *mockNotifier) NotifyCycle(_ context.Context, r domain.CycleReport) error {
	m.reports = append(m.reports, r)
	return nil
}

// --- helpers ---

type fixture struct {
	engine    *engine.Engine
	ledger    *ledger.Ledger
	vault     *mockVault
	feed      *mockFeed
	amm       *mockAMM
	submitter *mockSubmitter
	notifier  *mockNotifier
}

func upMarket(addr string, maturity time.Time) (domain.Market, domain.MarketPrices, domain.MarketImpacts) {
	m := domain.Market{
		Address:      addr,
		CurrencyKey:  "ETH",
		StrikePrice:  2500,
		MaturityDate: maturity,
		IsOpen:       true,
	}
	return m, domain.MarketPrices{Up: 0.80, Down: 0.20}, domain.MarketImpacts{Up: 0.001, Down: 0.5}
}

func newFixture(t *testing.T, round uint64, markets []domain.Market,
	prices map[string]domain.MarketPrices, impacts map[string]domain.MarketImpacts,
	cfg engine.Config,
) *fixture {
	t.Helper()
	dir := t.TempDir()

	led, err := ledger.Open(filepath.Join(dir, "test.json"), dir)
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })
	require.NoError(t, led.RollRound(round))

	feed := &mockFeed{markets: markets}
	amm := &mockAMM{available: 10_000}
	submitter := &mockSubmitter{txHash: "0xtx"}
	notifier := &mockNotifier{}

	vault := &mockVault{
		round:    round,
		roundEnd: time.Now().Add(7 * 24 * time.Hour),
		limits: domain.TradingLimits{
			PriceLowerLimit:   0.70,
			PriceUpperLimit:   0.90,
			SkewImpactLimit:   0.015,
			MinTradeAmount:    3,
			TradingAllocation: 1000,
		},
	}

	network := domain.Network{
		Name:              "optimism",
		ChainID:           10,
		QuoteDecimals:     18,
		PerMarketFraction: 0.05,
	}

	executor := engine.NewExecutor(submitter, led, nil, network.Name)
	eng := engine.New(network, vault,
		feed, &mockData{prices: prices, impacts: impacts},
		amm, executor, led, notifier, cfg)

	return &fixture{engine: eng, ledger: led, vault: vault, feed: feed, amm: amm, submitter: submitter, notifier: notifier}
}

// --- tests ---

func TestRunOnce_ExecutesEligibleMarket(t *testing.T) {
	maturity := time.Now().Add(24 * time.Hour)
	m, p, i := upMarket("0xaaa", maturity)

	f := newFixture(t, 12, []domain.Market{m},
		map[string]domain.MarketPrices{"0xaaa": p},
		map[string]domain.MarketImpacts{"0xaaa": i},
		engine.Config{Interval: time.Minute},
	)

	report, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Eligible)
	require.Len(t, report.Executed, 1)
	assert.Empty(t, report.Failed)

	executed := report.Executed[0]
	assert.Equal(t, "0xaaa", executed.Market)
	assert.Equal(t, "UP", executed.Position)
	assert.Equal(t, "0xtx", executed.TxHash)
	assert.Greater(t, executed.Amount, int64(0))
	// Allocation por mercado: 1000 * 0.05 = 50.
	assert.LessOrEqual(t, executed.Quote, 50.0)
	assert.Equal(t, 1, f.submitter.calls)

	// El ledger queda comprometido con el lado tradeado.
	assert.False(t, f.ledger.IsEligible(12, "0xaaa", domain.PositionDown).Eligible)
}

func TestRunOnce_RolloverSkipsTrading(t *testing.T) {
	maturity := time.Now().Add(24 * time.Hour)
	m, p, i := upMarket("0xaaa", maturity)

	f := newFixture(t, 12, []domain.Market{m},
		map[string]domain.MarketPrices{"0xaaa": p},
		map[string]domain.MarketImpacts{"0xaaa": i},
		engine.Config{Interval: time.Minute},
	)

	// La ronda avanzó on-chain desde el último ciclo.
	f.vault.round = 13

	report, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Rollover)
	assert.Empty(t, report.Executed)
	assert.Equal(t, uint64(13), f.ledger.LatestRound())
	// En el ciclo de rollover no se consulta el feed ni se tradea.
	assert.Zero(t, f.feed.calls)
	assert.Zero(t, f.submitter.calls)

	// El siguiente ciclo ya tradea con normalidad en la ronda nueva.
	report, err = f.engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Rollover)
	assert.Len(t, report.Executed, 1)
}

func TestRunOnce_RoundRegressionAborts(t *testing.T) {
	maturity := time.Now().Add(24 * time.Hour)
	m, p, i := upMarket("0xaaa", maturity)

	f := newFixture(t, 12, []domain.Market{m},
		map[string]domain.MarketPrices{"0xaaa": p},
		map[string]domain.MarketImpacts{"0xaaa": i},
		engine.Config{Interval: time.Minute},
	)

	// El RPC devuelve una ronda anterior a la del ledger: estado
	// inconsistente, no se debe mutar nada.
	f.vault.round = 11

	_, err := f.engine.RunOnce(context.Background())
	require.ErrorIs(t, err, ledger.ErrRoundRegression)
	assert.Equal(t, uint64(12), f.ledger.LatestRound())
	assert.Zero(t, f.submitter.calls)
}

func TestRunOnce_ConflictingSideSkipsBeforeSizing(t *testing.T) {
	maturity := time.Now().Add(24 * time.Hour)
	m, _, _ := upMarket("0xaaa", maturity)
	// Solo DOWN califica esta vez.
	prices := map[string]domain.MarketPrices{"0xaaa": {Up: 0.20, Down: 0.80}}
	impacts := map[string]domain.MarketImpacts{"0xaaa": {Up: 0.5, Down: 0.001}}

	f := newFixture(t, 12, []domain.Market{m}, prices, impacts,
		engine.Config{Interval: time.Minute})

	// La ronda ya tiene este mercado comprometido con UP.
	require.NoError(t, f.ledger.Record(12, domain.ExecutedTrade{
		ID: "prior", Market: "0xaaa", Position: "UP", Round: 12,
		Quote: 10, Timestamp: time.Now().UTC(),
	}))

	report, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Eligible)
	assert.Empty(t, report.Executed)
	assert.Empty(t, report.Failed)
	// El skip ocurre antes del sizing: ni una query al AMM.
	assert.Zero(t, f.amm.availableCalls)
	assert.Zero(t, f.submitter.calls)
}

func TestRunOnce_FailureDoesNotAbortCycle(t *testing.T) {
	maturity := time.Now().Add(24 * time.Hour)
	m1, p1, i1 := upMarket("0xbad", maturity)
	m2, p2, i2 := upMarket("0xgood", maturity)

	f := newFixture(t, 12, []domain.Market{m1, m2},
		map[string]domain.MarketPrices{"0xbad": p1, "0xgood": p2},
		map[string]domain.MarketImpacts{"0xbad": i1, "0xgood": i2},
		engine.Config{Interval: time.Minute},
	)
	f.submitter.errFor = map[string]error{
		"0xbad": errors.New("execution reverted: Slippage too high"),
	}

	report, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	require.Len(t, report.Executed, 1)
	assert.Equal(t, "0xbad", report.Failed[0].Market)
	assert.Contains(t, report.Failed[0].Error, "Slippage")
	assert.Equal(t, "0xgood", report.Executed[0].Market)

	// El mercado fallido sigue elegible — un fallo no compromete el lado.
	assert.True(t, f.ledger.IsEligible(12, "0xbad", domain.PositionUp).Eligible)
}

func TestRunOnce_DryRunSubmitsNothing(t *testing.T) {
	maturity := time.Now().Add(24 * time.Hour)
	m, p, i := upMarket("0xaaa", maturity)

	f := newFixture(t, 12, []domain.Market{m},
		map[string]domain.MarketPrices{"0xaaa": p},
		map[string]domain.MarketImpacts{"0xaaa": i},
		engine.Config{Interval: time.Minute, DryRun: true},
	)

	report, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Eligible)
	assert.Empty(t, report.Executed)
	assert.Zero(t, f.submitter.calls)
	// En dry run sí se hace el sizing completo contra el AMM.
	assert.Equal(t, 1, f.amm.availableCalls)
	// Y el ledger no se compromete.
	assert.True(t, f.ledger.IsEligible(12, "0xaaa", domain.PositionDown).Eligible)
}

func TestRunOnce_VaultErrorAbortsCycle(t *testing.T) {
	dir := t.TempDir()
	led, err := ledger.Open(filepath.Join(dir, "test.json"), dir)
	require.NoError(t, err)
	defer led.Close()

	vault := &mockVault{err: errors.New("rpc timeout")}
	executor := engine.NewExecutor(&mockSubmitter{}, led, nil, "optimism")
	eng := engine.New(domain.Network{Name: "optimism"}, vault,
		&mockFeed{}, &mockData{}, &mockAMM{}, executor, led, nil,
		engine.Config{Interval: time.Minute})

	_, err = eng.RunOnce(context.Background())
	assert.Error(t, err)
}
