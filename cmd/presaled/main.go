package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gorm.io/gorm"

	"tiersale/config"
	"tiersale/core"
	"tiersale/core/events"
	corestate "tiersale/core/state"
	"tiersale/explorer"
	"tiersale/observability"
	"tiersale/observability/logging"
	telemetry "tiersale/observability/otel"
	"tiersale/rpc"
	"tiersale/storage"
)

const serviceName = "presaled"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrate := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *allowMigrate {
		cfg.AllowMigrate = true
	}
	env := cfg.Env
	if override := strings.TrimSpace(os.Getenv("PRESALE_ENV")); override != "" {
		env = override
	}
	logger := logging.Setup(serviceName, env, cfg.Logging.Options())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, logger); err != nil {
		logger.Error("presaled stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, env string, logger *slog.Logger) error {
	otelCfg, err := cfg.Telemetry.Options(serviceName, env)
	if err != nil {
		return err
	}
	shutdownTelemetry, err := telemetry.Init(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	d, err := newDaemon(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	logger.Info("presale node ready",
		"chainId", cfg.ChainID,
		"listen", cfg.ListenAddress,
		"explorer", cfg.Explorer.Enabled)
	err = d.server.Serve(ctx, cfg.ListenAddress)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// daemon bundles the long-lived components so they can be closed together.
type daemon struct {
	node       *core.Node
	server     *rpc.Server
	explorerDB *gorm.DB
	logger     *slog.Logger
}

func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	deployer, err := cfg.Presale.DeployerAddress()
	if err != nil {
		return nil, err
	}
	spec, err := cfg.GenesisSpec()
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	manager := corestate.NewManager(db)

	emitters := events.Multi{observability.Events()}
	var stream *events.Stream
	if cfg.Stream.Enabled {
		stream = events.NewStream(cfg.Stream.History)
		emitters = append(emitters, stream)
	}
	var history rpc.History
	var explorerDB *gorm.DB
	if cfg.Explorer.Enabled {
		explorerDB, err = explorer.Open(cfg.ExplorerDSN())
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open explorer: %w", err)
		}
		indexer, err := explorer.NewIndexer(explorerDB, logger)
		if err != nil {
			_ = db.Close()
			closeGorm(explorerDB)
			return nil, err
		}
		emitters = append(emitters, indexer)
		history = indexer
	}

	node, err := core.NewNode(manager, core.Options{
		ChainID:      cfg.ChainID,
		Schedule:     cfg.Presale.Schedule(),
		WalletCap:    cfg.Presale.WalletCap,
		Deployer:     deployer,
		Genesis:      spec,
		AllowMigrate: cfg.AllowMigrate,
		Emitter:      emitters,
		Logger:       logger,
	})
	if err != nil {
		_ = db.Close()
		closeGorm(explorerDB)
		return nil, err
	}
	server := rpc.NewServer(node, history, rpc.Config{
		ServiceName: serviceName,
		RateLimit: rpc.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			ClientTTL:         time.Duration(cfg.RateLimit.ClientTTLSeconds) * time.Second,
			TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		},
	}, logger)
	if stream != nil {
		server.SetStream(stream)
	}
	return &daemon{node: node, server: server, explorerDB: explorerDB, logger: logger}, nil
}

func (d *daemon) Close() {
	if err := d.node.Close(); err != nil {
		d.logger.Warn("close ledger", slog.Any("error", err))
	}
	closeGorm(d.explorerDB)
}

func closeGorm(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
