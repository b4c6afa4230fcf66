package domain

// TradingLimits son los parámetros de trading del vault para una ronda.
// Vienen del contrato del vault (desescalados de 1e18) o de la config local.
type TradingLimits struct {
	PriceLowerLimit   float64 // precio mínimo para entrar (ej. 0.70)
	PriceUpperLimit   float64 // precio máximo para entrar (ej. 0.90)
	SkewImpactLimit   float64 // techo de skew impact (ej. 0.015)
	MinTradeAmount    int64   // mínimo de tokens por trade (usualmente 3)
	TradingAllocation float64 // capital total de la ronda en sUSD
}
