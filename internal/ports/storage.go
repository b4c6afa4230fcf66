package ports

import (
	"context"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// HistoryStorage persiste el histórico de trades para consulta posterior.
// Es complementario al ledger JSON — el ledger es la fuente de verdad del
// estado por ronda; esto es solo histórico consultable.
type HistoryStorage interface {
	SaveTrade(ctx context.Context, t domain.ExecutedTrade) error
	SaveFailure(ctx context.Context, f domain.FailedTrade) error

	// GetTrades devuelve los trades de una red y ronda, más recientes primero.
	GetTrades(ctx context.Context, network string, round uint64) ([]domain.ExecutedTrade, error)

	Close() error
}
