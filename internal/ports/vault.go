package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// VaultReader lee el estado de ronda y los parámetros de trading del vault.
type VaultReader interface {
	// RoundInfo devuelve la ronda actual y su instante de cierre.
	RoundInfo(ctx context.Context) (round uint64, roundEnd time.Time, err error)

	// TradingLimits devuelve los límites de precio/impact y la allocation
	// de la ronda, ya desescalados.
	TradingLimits(ctx context.Context) (domain.TradingLimits, error)
}
