package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/alejandrodnm/vaultbot/config"
	"github.com/alejandrodnm/vaultbot/internal/adapters/feed"
	"github.com/alejandrodnm/vaultbot/internal/adapters/notify"
	"github.com/alejandrodnm/vaultbot/internal/adapters/onchain"
	"github.com/alejandrodnm/vaultbot/internal/adapters/storage"
	"github.com/alejandrodnm/vaultbot/internal/domain"
	"github.com/alejandrodnm/vaultbot/internal/engine"
	"github.com/alejandrodnm/vaultbot/internal/ledger"
	"github.com/alejandrodnm/vaultbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one trading cycle per network and exit")
	dryRun := flag.Bool("dry-run", false, "size trades but submit nothing")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full trade tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if cfg.PrivateKey() == "" && !*dryRun {
		slog.Error("PRIVATE_KEY not set — required unless running with -dry-run")
		os.Exit(1)
	}

	networks := cfg.EnabledNetworks()
	slog.Info("vaultbot starting",
		"config", *configPath,
		"networks", len(networks),
		"interval", cfg.CycleInterval(),
		"dry_run", *dryRun || cfg.Bot.DryRun,
		"once", *once,
	)

	var store *storage.SQLiteStorage
	if cfg.Storage.DSN != "" {
		store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
	}

	notifier := notify.NewConsole(*table)

	engCfg := engine.Config{
		Interval:                    cfg.CycleInterval(),
		DryRun:                      *dryRun || cfg.Bot.DryRun,
		AllowMinTradeOverAllocation: cfg.Bot.AllowMinTradeOverAllocation,
	}

	engines := make([]*engine.Engine, 0, len(networks))
	for _, net := range networks {
		eng, err := buildEngine(cfg, net, store, notifier, engCfg)
		if err != nil {
			slog.Error("failed to wire network", "network", net.Name, "err", err)
			os.Exit(1)
		}
		engines = append(engines, eng)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		for _, eng := range engines {
			if _, err := eng.RunOnce(ctx); err != nil {
				slog.Error("cycle failed", "err", err)
			}
		}
		return
	}

	var wg sync.WaitGroup
	for _, eng := range engines {
		wg.Add(1)
		go func(eng *engine.Engine) {
			defer wg.Done()
			if err := eng.Run(ctx); err != nil {
				slog.Error("engine exited with error", "err", err)
			}
		}(eng)
	}
	wg.Wait()

	slog.Info("vaultbot stopped cleanly")
}

// buildEngine cablea todos los adapters de una red y devuelve su engine.
func buildEngine(
	cfg *config.Config,
	net domain.Network,
	store *storage.SQLiteStorage,
	notifier ports.Notifier,
	engCfg engine.Config,
) (*engine.Engine, error) {
	if err := os.MkdirAll(filepath.Dir(net.LedgerPath), 0o755); err != nil {
		return nil, err
	}
	led, err := ledger.Open(net.LedgerPath, filepath.Dir(net.LedgerPath))
	if err != nil {
		return nil, err
	}

	client, err := onchain.Dial(net.RPCURL, cfg.PrivateKey(), net.ChainID)
	if err != nil {
		return nil, err
	}

	amm := onchain.NewAMMClient(client, net)
	vault := onchain.NewVaultClient(client, net.VaultContract, cfg.LocalLimits(net.Name))
	data := onchain.NewDataClient(client, net)
	marketFeed := feed.NewClient(cfg.Feed.Base, net.ChainID)

	// history queda nil si el histórico está desactivado; el executor lo salta.
	var history ports.HistoryStorage
	if store != nil {
		history = store
	}

	executor := engine.NewExecutor(amm, led, history, net.Name)

	return engine.New(net, vault, marketFeed, data, amm, executor, led, notifier, engCfg), nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
