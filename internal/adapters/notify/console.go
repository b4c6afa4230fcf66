package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyCycle imprime el resumen del ciclo en el modo configurado.
func (c *Console) NotifyCycle(_ context.Context, report domain.CycleReport) error {
	if c.table {
		c.printFull(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(r domain.CycleReport) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s round %d: %d mkts → %d eligible, %d traded, %d failed",
		now, r.Network, r.Round, r.Candidates, r.Eligible, len(r.Executed), len(r.Failed))
	if r.Rollover {
		sb.WriteString(" (rollover)")
	}
	if r.SkippedZero > 0 {
		fmt.Fprintf(&sb, ", %d sized to zero", r.SkippedZero)
	}
	fmt.Fprintf(&sb, " [%s]", r.Duration.Round(time.Millisecond))

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla de trades ejecutados y fallidos.
func (c *Console) printFull(r domain.CycleReport) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %s round %d — %d markets, %d eligible (%s)\n",
		now, r.Network, r.Round, r.Candidates, r.Eligible, r.Duration.Round(time.Millisecond))

	if r.Rollover {
		fmt.Fprintln(c.out, "  round rollover: ledger archived, trading resumes next cycle")
		return
	}

	if len(r.Executed) == 0 && len(r.Failed) == 0 {
		fmt.Fprintln(c.out, "  no trades this cycle")
		return
	}

	if len(r.Executed) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Market", "Asset", "Side", "Amount", "Quote", "Tx")

		for _, t := range r.Executed {
			table.Append(
				shortAddr(t.Market),
				t.CurrencyKey,
				t.Position,
				fmt.Sprintf("%d", t.Amount),
				fmt.Sprintf("%.4f", t.Quote),
				shortAddr(t.TxHash),
			)
		}
		table.Render()
	}

	for _, f := range r.Failed {
		fmt.Fprintf(c.out, "  FAILED %s %s %s: %s\n",
			shortAddr(f.Market), f.CurrencyKey, f.Position, f.Error)
	}
}

// shortAddr acorta un address o tx hash a 0x1234…abcd.
func shortAddr(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}
