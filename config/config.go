package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// Config es la configuración completa del bot.
type Config struct {
	Bot      BotConfig       `yaml:"bot"`
	Networks []NetworkConfig `yaml:"networks"`
	Feed     FeedConfig      `yaml:"feed"`
	Storage  StorageConfig   `yaml:"storage"`
	Log      LogConfig       `yaml:"log"`

	privateKey string
}

// BotConfig controla el comportamiento del ciclo de trading.
type BotConfig struct {
	IntervalSeconds int  `yaml:"interval_seconds"`
	DryRun          bool `yaml:"dry_run"`

	// Si el mínimo del vault supera la allocation restante de un mercado,
	// permitir comprar el mínimo igualmente. Desactivado por defecto: nunca
	// gastar más de lo asignado sin pedirlo explícitamente.
	AllowMinTradeOverAllocation bool `yaml:"allow_min_trade_over_allocation"`
}

// NetworkConfig es la configuración de una red EVM.
type NetworkConfig struct {
	Name          string  `yaml:"name"`
	Enabled       bool    `yaml:"enabled"`
	ChainID       int64   `yaml:"chain_id"`
	RPCURL        string  `yaml:"rpc_url"`
	AMMContract   string  `yaml:"amm_contract"`
	DataContract  string  `yaml:"data_contract"`
	VaultContract string  `yaml:"vault_contract"`
	QuoteDecimals int     `yaml:"quote_decimals"`
	MarketFrac    float64 `yaml:"per_market_fraction"`
	LedgerPath    string  `yaml:"ledger_path"`

	// Límites locales opcionales. Si se omiten, se leen del vault on-chain.
	Limits *LimitsConfig `yaml:"limits"`
}

// LimitsConfig son los límites de trading, en unidades humanas (no fixed-point).
type LimitsConfig struct {
	PriceLowerLimit   float64 `yaml:"price_lower_limit"`
	PriceUpperLimit   float64 `yaml:"price_upper_limit"`
	SkewImpactLimit   float64 `yaml:"skew_impact_limit"`
	MinTradeAmount    int64   `yaml:"min_trade_amount"`
	TradingAllocation float64 `yaml:"trading_allocation"`
}

// FeedConfig contiene el base URL del API de mercados.
type FeedConfig struct {
	Base string `yaml:"base"`
}

// StorageConfig controla dónde se persiste el histórico de trades.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"; vacío desactiva el histórico
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return &cfg, nil
}

// CycleInterval devuelve el intervalo entre ciclos como time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Bot.IntervalSeconds) * time.Second
}

// PrivateKey devuelve la clave privada del wallet (hex, sin prefijo 0x).
// Solo se acepta por entorno — nunca en el YAML.
func (c *Config) PrivateKey() string {
	return c.privateKey
}

// EnabledNetworks resuelve las redes habilitadas a su forma de dominio.
func (c *Config) EnabledNetworks() []domain.Network {
	var nets []domain.Network
	for _, nc := range c.Networks {
		if !nc.Enabled {
			continue
		}
		nets = append(nets, domain.Network{
			Name:              nc.Name,
			ChainID:           nc.ChainID,
			RPCURL:            nc.RPCURL,
			AMMContract:       nc.AMMContract,
			DataContract:      nc.DataContract,
			VaultContract:     nc.VaultContract,
			QuoteDecimals:     nc.QuoteDecimals,
			PerMarketFraction: nc.MarketFrac,
			LedgerPath:        nc.LedgerPath,
		})
	}
	return nets
}

// LocalLimits devuelve los límites locales de una red, o nil si se deben
// leer del vault on-chain.
func (c *Config) LocalLimits(network string) *domain.TradingLimits {
	for _, nc := range c.Networks {
		if nc.Name != network || nc.Limits == nil {
			continue
		}
		return &domain.TradingLimits{
			PriceLowerLimit:   nc.Limits.PriceLowerLimit,
			PriceUpperLimit:   nc.Limits.PriceUpperLimit,
			SkewImpactLimit:   nc.Limits.SkewImpactLimit,
			MinTradeAmount:    nc.Limits.MinTradeAmount,
			TradingAllocation: nc.Limits.TradingAllocation,
		}
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
// El RPC de cada red se puede inyectar con RPC_URL_<NAME> (ej. RPC_URL_OPTIMISM),
// útil para endpoints con API key que no deben vivir en el YAML.
func applyEnvOverrides(cfg *Config) {
	cfg.privateKey = strings.TrimPrefix(os.Getenv("PRIVATE_KEY"), "0x")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	for i := range cfg.Networks {
		key := "RPC_URL_" + strings.ToUpper(cfg.Networks[i].Name)
		if v := os.Getenv(key); v != "" {
			cfg.Networks[i].RPCURL = v
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Bot.IntervalSeconds <= 0 {
		cfg.Bot.IntervalSeconds = 300
	}
	if cfg.Feed.Base == "" {
		cfg.Feed.Base = "https://api.thales.market"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	for i := range cfg.Networks {
		nc := &cfg.Networks[i]
		if nc.QuoteDecimals == 0 {
			nc.QuoteDecimals = defaultQuoteDecimals(nc.Name)
		}
		if nc.MarketFrac <= 0 {
			nc.MarketFrac = 0.05
		}
		if nc.LedgerPath == "" {
			nc.LedgerPath = fmt.Sprintf("data/%s.json", nc.Name)
		}
	}
}

// defaultQuoteDecimals devuelve los decimales del colateral por red: los
// deployments de Arbitrum y Polygon usan USDC (6), el resto sUSD/BUSD (18).
func defaultQuoteDecimals(network string) int {
	switch strings.ToLower(network) {
	case "arbitrum", "polygon":
		return 6
	default:
		return 18
	}
}

// validate comprueba que toda red habilitada tenga lo mínimo para operar.
func validate(cfg *Config) error {
	enabled := 0
	for _, nc := range cfg.Networks {
		if !nc.Enabled {
			continue
		}
		enabled++
		if nc.Name == "" {
			return fmt.Errorf("network sin name")
		}
		if nc.ChainID == 0 {
			return fmt.Errorf("network %s: chain_id requerido", nc.Name)
		}
		if nc.RPCURL == "" {
			return fmt.Errorf("network %s: rpc_url requerido (YAML o RPC_URL_%s)",
				nc.Name, strings.ToUpper(nc.Name))
		}
		if nc.AMMContract == "" || nc.DataContract == "" || nc.VaultContract == "" {
			return fmt.Errorf("network %s: faltan addresses de contratos", nc.Name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("ninguna network habilitada")
	}
	return nil
}
