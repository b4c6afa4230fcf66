package domain

import "time"

// SizingResult es la salida del sizer: cantidad entera de tokens y su quote.
// Amount == 0 es el centinela de "no tradear" y debe cortocircuitar al executor.
type SizingResult struct {
	Amount   int64   // tokens enteros (UPs o DOWNs), sin fixed-point
	Quote    float64 // coste en sUSD del amount final
	Position Position
}

// ShouldTrade devuelve true si el sizer encontró una cantidad tradeable.
func (r SizingResult) ShouldTrade() bool {
	return r.Amount > 0
}

// ExecutedTrade es un trade confirmado on-chain, tal como se apunta al ledger.
type ExecutedTrade struct {
	ID          string    `json:"id"`
	Network     string    `json:"network"`
	Round       uint64    `json:"round"`
	CurrencyKey string    `json:"currencyKey"`
	Market      string    `json:"market"`
	Position    string    `json:"position"` // "UP" | "DOWN"
	Amount      int64     `json:"amount"`
	Quote       float64   `json:"quote"`
	Timestamp   time.Time `json:"timestamp"`
	TxHash      string    `json:"transactionHash"`
}

// FailedTrade es un intento de trade que falló en el submit o la confirmación.
type FailedTrade struct {
	ID          string    `json:"id"`
	Network     string    `json:"network"`
	Round       uint64    `json:"round"`
	CurrencyKey string    `json:"currencyKey"`
	Market      string    `json:"market"`
	Position    string    `json:"position"`
	Amount      int64     `json:"amount"`
	Quote       float64   `json:"quote"`
	Error       string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
}
