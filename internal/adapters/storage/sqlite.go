package storage

// sqlite.go — histórico consultable de trades.
//
// El ledger JSON por red es la fuente de verdad del estado por ronda; esta DB
// solo acumula histórico entre rondas para análisis posterior. Una fila por
// trade ejecutado y una por fallo, sin upserts ni caché: el volumen es bajo
// (pocos trades por ronda).

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

const schema = `
-- Trades confirmados on-chain
CREATE TABLE IF NOT EXISTS trades (
    id           TEXT PRIMARY KEY,
    network      TEXT     NOT NULL,
    round        INTEGER  NOT NULL,
    currency_key TEXT     NOT NULL,
    market       TEXT     NOT NULL,
    position     TEXT     NOT NULL,
    amount       INTEGER  NOT NULL,
    quote        REAL     NOT NULL,
    tx_hash      TEXT     NOT NULL,
    executed_at  DATETIME NOT NULL
);

-- Intentos fallidos, para diagnóstico
CREATE TABLE IF NOT EXISTS failures (
    id           TEXT PRIMARY KEY,
    network      TEXT     NOT NULL,
    round        INTEGER  NOT NULL,
    currency_key TEXT     NOT NULL,
    market       TEXT     NOT NULL,
    position     TEXT     NOT NULL,
    amount       INTEGER  NOT NULL,
    quote        REAL     NOT NULL,
    error        TEXT     NOT NULL,
    failed_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_round   ON trades(network, round);
CREATE INDEX IF NOT EXISTS idx_trades_at      ON trades(executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_failures_round ON failures(network, round);
`

// SQLiteStorage implementa ports.HistoryStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// SaveTrade inserta un trade ejecutado. El ID viene del executor, así que un
// reintento accidental con el mismo trade no duplica filas.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.ExecutedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, network, round, currency_key, market, position, amount, quote, tx_hash, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		t.ID, t.Network, t.Round, t.CurrencyKey, t.Market, t.Position,
		t.Amount, t.Quote, t.TxHash, t.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// SaveFailure inserta un intento fallido.
func (s *SQLiteStorage) SaveFailure(ctx context.Context, f domain.FailedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failures
			(id, network, round, currency_key, market, position, amount, quote, error, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		f.ID, f.Network, f.Round, f.CurrencyKey, f.Market, f.Position,
		f.Amount, f.Quote, f.Error, f.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveFailure: insert %s: %w", f.ID, err)
	}
	return nil
}

// GetTrades devuelve los trades de una red y ronda, más recientes primero.
func (s *SQLiteStorage) GetTrades(ctx context.Context, network string, round uint64) ([]domain.ExecutedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, network, round, currency_key, market, position, amount, quote, tx_hash, executed_at
		FROM trades
		WHERE network = ? AND round = ?
		ORDER BY executed_at DESC
	`, network, round)
	if err != nil {
		return nil, fmt.Errorf("storage.GetTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.ExecutedTrade
	for rows.Next() {
		var t domain.ExecutedTrade
		var executedAt string

		if err := rows.Scan(
			&t.ID, &t.Network, &t.Round, &t.CurrencyKey, &t.Market,
			&t.Position, &t.Amount, &t.Quote, &t.TxHash, &executedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.GetTrades: scan row: %w", err)
		}

		t.Timestamp, _ = time.Parse(time.RFC3339, executedAt)
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
