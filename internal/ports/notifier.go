package ports

import (
	"context"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// Notifier presenta el resultado de cada ciclo al usuario.
type Notifier interface {
	// NotifyCycle imprime el resumen del ciclo. En la implementación de
	// consola, una tabla con los trades ejecutados y fallidos.
	NotifyCycle(ctx context.Context, report domain.CycleReport) error
}
