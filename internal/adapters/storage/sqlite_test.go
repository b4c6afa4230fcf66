package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/vaultbot/internal/adapters/storage"
	"github.com/alejandrodnm/vaultbot/internal/domain"
)

func makeTrade(id, market string, round uint64, at time.Time) domain.ExecutedTrade {
	return domain.ExecutedTrade{
		ID:          id,
		Network:     "optimism",
		Round:       round,
		CurrencyKey: "ETH",
		Market:      market,
		Position:    "UP",
		Amount:      161,
		Quote:       99.82,
		Timestamp:   at,
		TxHash:      "0xdeadbeef",
	}
}

func TestSQLiteStorage_SaveAndGetTrades(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	older := makeTrade("t1", "0xaaa", 12, now.Add(-time.Hour))
	newer := makeTrade("t2", "0xbbb", 12, now)
	otherRound := makeTrade("t3", "0xccc", 11, now)

	for _, tr := range []domain.ExecutedTrade{older, newer, otherRound} {
		require.NoError(t, db.SaveTrade(context.Background(), tr))
	}

	trades, err := db.GetTrades(context.Background(), "optimism", 12)
	require.NoError(t, err)
	require.Len(t, trades, 2, "solo los trades de la ronda pedida")

	// Más recientes primero.
	assert.Equal(t, "t2", trades[0].ID)
	assert.Equal(t, "t1", trades[1].ID)
	assert.Equal(t, "0xbbb", trades[0].Market)
	assert.Equal(t, int64(161), trades[0].Amount)
	assert.InDelta(t, 99.82, trades[0].Quote, 0.001)
}

func TestSQLiteStorage_SaveTradeIdempotent(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	tr := makeTrade("t1", "0xaaa", 12, time.Now().UTC())
	require.NoError(t, db.SaveTrade(context.Background(), tr))
	require.NoError(t, db.SaveTrade(context.Background(), tr))

	trades, err := db.GetTrades(context.Background(), "optimism", 12)
	require.NoError(t, err)
	assert.Len(t, trades, 1, "el mismo ID no debe duplicar filas")
}

func TestSQLiteStorage_GetTradesEmptyRound(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	trades, err := db.GetTrades(context.Background(), "optimism", 99)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSQLiteStorage_SaveFailure(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	f := domain.FailedTrade{
		ID:          "f1",
		Network:     "optimism",
		Round:       12,
		CurrencyKey: "BTC",
		Market:      "0xddd",
		Position:    "DOWN",
		Amount:      20,
		Quote:       15.5,
		Error:       "execution reverted: Slippage too high",
		Timestamp:   time.Now().UTC(),
	}
	require.NoError(t, db.SaveFailure(context.Background(), f))

	// Los fallos no aparecen en el histórico de trades.
	trades, err := db.GetTrades(context.Background(), "optimism", 12)
	require.NoError(t, err)
	assert.Empty(t, trades)
}
