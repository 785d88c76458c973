package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swapmaker/swapmaker/config"
	"github.com/swapmaker/swapmaker/internal/adapters/chain"
	"github.com/swapmaker/swapmaker/internal/adapters/cryptocompare"
	"github.com/swapmaker/swapmaker/internal/adapters/notify"
	"github.com/swapmaker/swapmaker/internal/adapters/storage"
	"github.com/swapmaker/swapmaker/internal/adapters/swapnet"
	"github.com/swapmaker/swapmaker/internal/application/engine"
	"github.com/swapmaker/swapmaker/internal/domain"
	"github.com/swapmaker/swapmaker/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	start := flag.Bool("start", false, "start the rebalancing algorithm on boot")
	table := flag.Bool("table", false, "print portfolio and plan tables every poll interval")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
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

	privateKey := os.Getenv("PRIVATE_KEY")
	if privateKey == "" {
		slog.Error("PRIVATE_KEY not set")
		os.Exit(1)
	}

	signer, err := swapnet.NewSigner(privateKey)
	if err != nil {
		slog.Error("failed to load signing key", "err", err)
		os.Exit(1)
	}

	registry := buildRegistry(cfg)

	slog.Info("swapmaker starting",
		"config", *configPath,
		"wallet", signer.Address().Hex(),
		"tokens", len(cfg.Tokens),
		"interval", cfg.PollInterval(),
		"start", *start,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ethSentinel := common.HexToAddress(cfg.Chain.ETHAddress)
	rightsToken := common.HexToAddress(cfg.Chain.RightsToken)
	reader, err := chain.Dial(ctx, cfg.Chain.RPCURL, ethSentinel, rightsToken, rightsDecimals(cfg, rightsToken))
	if err != nil {
		slog.Error("failed to dial chain RPC", "err", err, "url", cfg.Chain.RPCURL)
		os.Exit(1)
	}
	defer reader.Close()

	conn, err := swapnet.Dial(ctx, cfg.Venue.URL, signer.Address())
	if err != nil {
		slog.Error("failed to dial venue", "err", err, "url", cfg.Venue.URL)
		os.Exit(1)
	}
	defer conn.Close()

	var audit ports.AuditLog
	if cfg.Storage.DSN != "" {
		store, err := storage.NewSQLiteAuditLog(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
		audit = store
	}

	feed := cryptocompare.New(cfg.Feed.BaseURL)
	notifier := notify.NewConsole(registry)

	engCfg := engine.Config{
		PollInterval:        cfg.PollInterval(),
		ExpirationWindow:    cfg.ExpirationWindow(),
		RelativeChangeLimit: cfg.Engine.RelativeChangeLimit,
		AverageChangeLimit:  cfg.Engine.AverageChangeLimit,
		FractionTolerance:   cfg.Engine.FractionTolerance,
		PriceModifier:       cfg.Engine.PriceModifier,
		ContinuousUpdate:    cfg.ContinuousUpdate(),
		Blacklist:           blacklist(cfg),
	}

	eng := engine.New(engCfg, registry, feed, reader, reader, conn, signer, notifier, audit)
	conn.SetOrderHandler(eng)

	if *start {
		if err := eng.StartAlgorithm(ctx, cfg.GoalFractions()); err != nil {
			slog.Error("failed to start algorithm", "err", err)
			os.Exit(1)
		}
	}

	if *table {
		go printTables(ctx, eng, notifier, cfg.PollInterval())
	}

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("swapmaker stopped cleanly")
}

func printTables(ctx context.Context, eng *engine.Engine, console *notify.Console, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			console.PrintPortfolio(eng.Portfolio())
			console.PrintPlan(eng.LastPlan())
			console.PrintOpenOrders(eng.OpenOrders())
		}
	}
}

func buildRegistry(cfg *config.Config) *domain.Registry {
	registry := domain.NewRegistry(
		common.HexToAddress(cfg.Chain.ETHAddress),
		common.HexToAddress(cfg.Chain.WETHAddress),
	)
	for _, t := range cfg.Tokens {
		registry.Add(common.HexToAddress(t.Address), domain.TokenProps{
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		})
	}
	return registry
}

// rightsDecimals looks the rights token up in the token list; tokens not
// listed there default to 4 decimals, matching the staked rights contract.
func rightsDecimals(cfg *config.Config, rightsToken common.Address) int {
	for _, t := range cfg.Tokens {
		if common.HexToAddress(t.Address) == rightsToken {
			return t.Decimals
		}
	}
	return 4
}

func blacklist(cfg *config.Config) []common.Address {
	out := make([]common.Address, 0, len(cfg.Engine.Blacklist))
	for _, a := range cfg.Engine.Blacklist {
		if common.IsHexAddress(a) {
			out = append(out, common.HexToAddress(a))
		}
	}
	return out
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
