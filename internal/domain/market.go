package domain

import "time"

// Position es el lado de un mercado posicional binario.
// Los valores coinciden con el enum del contrato AMM (0=UP, 1=DOWN, 2=DRAW).
type Position int

const (
	PositionUp   Position = 0
	PositionDown Position = 1
	PositionDraw Position = 2
)

// String devuelve el nombre del lado tal como aparece en los logs y el ledger.
func (p Position) String() string {
	switch p {
	case PositionUp:
		return "UP"
	case PositionDown:
		return "DOWN"
	case PositionDraw:
		return "DRAW"
	}
	return "UNKNOWN"
}

// ParsePosition convierte el string persistido de vuelta a Position.
// Devuelve PositionDraw para valores desconocidos — nunca se tradea DRAW.
func ParsePosition(s string) Position {
	switch s {
	case "UP":
		return PositionUp
	case "DOWN":
		return PositionDown
	}
	return PositionDraw
}

// Market es un mercado posicional devuelto por el feed.
// Inmutable una vez obtenido para un ciclo.
type Market struct {
	Address      string // hex en minúsculas, id único
	CurrencyKey  string // "ETH", "BTC", "LINK", ...
	StrikePrice  float64
	MaturityDate time.Time
	IsOpen       bool
}

// InTradingWindow devuelve true si el mercado madura dentro de la ventana
// de trading: estrictamente después de now y antes del cierre de la ronda.
func (m Market) InTradingWindow(now, roundEnd time.Time) bool {
	return m.MaturityDate.After(now) && m.MaturityDate.Before(roundEnd)
}

// MarketPrices son los precios UP/DOWN de un mercado, ya desescalados
// a fracción decimal (0.0 – 1.0).
type MarketPrices struct {
	Up   float64
	Down float64
}

// MarketImpacts son los skew impacts UP/DOWN de un mercado, ya desescalados.
// Un impact negativo significa que la compra reduce el skew del AMM.
type MarketImpacts struct {
	Up   float64
	Down float64
}

// EligibleTrade es un mercado que pasó todos los filtros, con el lado elegido.
// Derivado por ciclo; no se persiste.
type EligibleTrade struct {
	MarketAddress string
	Position      Position
	CurrencyKey   string
	Price         float64 // precio del lado elegido, fracción decimal
}
