package engine_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/vaultbot/internal/domain"
	"github.com/alejandrodnm/vaultbot/internal/engine"
	"github.com/alejandrodnm/vaultbot/internal/ledger"
)

func newTestExecutor(t *testing.T, submitter *mockSubmitter) (*engine.Executor, *ledger.Ledger) {
	t.Helper()
	dir := t.TempDir()
	led, err := ledger.Open(filepath.Join(dir, "test.json"), dir)
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })
	require.NoError(t, led.RollRound(12))
	return engine.NewExecutor(submitter, led, nil, "optimism"), led
}

func eligibleTrade() domain.EligibleTrade {
	return domain.EligibleTrade{
		MarketAddress: "0xaaa",
		Position:      domain.PositionUp,
		CurrencyKey:   "ETH",
		Price:         0.80,
	}
}

func TestExecute_RecordsSuccessInLedger(t *testing.T) {
	submitter := &mockSubmitter{txHash: "0xdeadbeef"}
	executor, led := newTestExecutor(t, submitter)

	sz := domain.SizingResult{Amount: 50, Quote: 40, Position: domain.PositionUp}
	outcome, err := executor.Execute(context.Background(), eligibleTrade(), sz, 12)

	require.NoError(t, err)
	require.NotNil(t, outcome.Executed)
	assert.Nil(t, outcome.Failed)
	assert.Equal(t, "0xdeadbeef", outcome.Executed.TxHash)
	assert.NotEmpty(t, outcome.Executed.ID)
	assert.Equal(t, uint64(12), outcome.Executed.Round)

	assert.Equal(t, 1, led.TradeCount())
	assert.False(t, led.IsEligible(12, "0xaaa", domain.PositionDown).Eligible)
}

func TestExecute_ZeroSizedRejected(t *testing.T) {
	submitter := &mockSubmitter{txHash: "0xtx"}
	executor, _ := newTestExecutor(t, submitter)

	_, err := executor.Execute(context.Background(), eligibleTrade(),
		domain.SizingResult{Amount: 0}, 12)

	assert.ErrorIs(t, err, engine.ErrZeroSized)
	assert.Zero(t, submitter.calls, "un tamaño cero nunca llega al submit")
}

func TestExecute_ConflictingSideRejectedBeforeSubmit(t *testing.T) {
	submitter := &mockSubmitter{txHash: "0xtx"}
	executor, led := newTestExecutor(t, submitter)

	require.NoError(t, led.Record(12, domain.ExecutedTrade{
		ID: "prior", Market: "0xaaa", Position: "DOWN", Round: 12,
		Quote: 10, Timestamp: time.Now().UTC(),
	}))

	sz := domain.SizingResult{Amount: 50, Quote: 40, Position: domain.PositionUp}
	_, err := executor.Execute(context.Background(), eligibleTrade(), sz, 12)

	assert.ErrorIs(t, err, engine.ErrConflictingSide)
	assert.Zero(t, submitter.calls)
}

func TestExecute_SubmitErrorBecomesFailedTrade(t *testing.T) {
	submitter := &mockSubmitter{errFor: map[string]error{
		"0xaaa": assert.AnError,
	}}
	executor, led := newTestExecutor(t, submitter)

	sz := domain.SizingResult{Amount: 50, Quote: 40, Position: domain.PositionUp}
	outcome, err := executor.Execute(context.Background(), eligibleTrade(), sz, 12)

	// Un fallo de submit no es un error del executor: se registra y se sigue.
	require.NoError(t, err)
	require.NotNil(t, outcome.Failed)
	assert.Nil(t, outcome.Executed)
	assert.NotEmpty(t, outcome.Failed.Error)

	// Sin lado comprometido: el próximo ciclo puede reintentar.
	assert.True(t, led.IsEligible(12, "0xaaa", domain.PositionUp).Eligible)
	assert.Zero(t, led.TradeCount())
}
