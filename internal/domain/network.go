package domain

import (
	"math"
	"math/big"
)

// Network describe una red soportada y sus endpoints de contrato.
// Se resuelve una vez al arrancar desde la configuración y se pasa
// explícitamente — sin singletons por red.
type Network struct {
	Name              string // "optimism" | "arbitrum" | "bsc" | "polygon"
	ChainID           int64
	RPCURL            string
	AMMContract       string // ThalesAMM
	DataContract      string // PositionalMarketData (tablas batch de precios/impacts)
	VaultContract     string // AmmVault; vacío si los límites vienen de config local
	QuoteDecimals     int    // 18 en Optimism/BSC, 6 en Arbitrum/Polygon
	PerMarketFraction float64
	LedgerPath        string
}

// QuoteScale devuelve el factor fixed-point de los quotes de esta red.
// Precios, impacts y availableToBuy usan siempre 1e18 independientemente
// de la red; solo buyFromAmmQuote devuelve 6 decimales en Arbitrum/Polygon.
func (n Network) QuoteScale() float64 {
	return math.Pow10(n.QuoteDecimals)
}

// wei18 es el factor fixed-point estándar de 18 decimales.
var wei18 = new(big.Float).SetFloat64(1e18)

// FromWei desescala un entero fixed-point de 18 decimales a float64.
func FromWei(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), wei18).Float64()
	return f
}

// FromFixed desescala un entero fixed-point con los decimales dados.
func FromFixed(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	scale := new(big.Float).SetFloat64(math.Pow10(decimals))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), scale).Float64()
	return f
}

// ToWei escala una cantidad entera de tokens a fixed-point de 18 decimales.
// Solo se usa con cantidades enteras — el redondeo ya ocurrió en el sizer.
func ToWei(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), big.NewInt(1e18))
}
