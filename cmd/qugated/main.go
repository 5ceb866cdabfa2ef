package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"qugate/config"
	"qugate/core"
	"qugate/core/events"
	"qugate/observability"
	"qugate/observability/logging"
	telemetry "qugate/observability/otel"
	"qugate/rpc"
	"qugate/services/journal"
	"qugate/storage"
)

const serviceName = "qugated"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a YAML genesis file (overrides config GenesisFile)")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := logging.Setup(serviceName, cfg.Environment, logging.Options{File: cfg.LogFile, Level: level})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *genesisFlag, logger); err != nil {
		logger.Error("qugated stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("qugated stopped")
}

func run(ctx context.Context, cfg *config.Config, genesisOverride string, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
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

	genesisPath := strings.TrimSpace(genesisOverride)
	if genesisPath == "" {
		genesisPath = strings.TrimSpace(cfg.GenesisFile)
	}
	genesis, err := config.LoadGenesis(genesisPath)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.StorageBackend, err)
	}

	node, err := core.NewNode(db, genesis)
	if err != nil {
		db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()
	node.SetLogger(logger)
	node.SetMetrics(observability.Gates())

	hub := rpc.NewHub(0)
	emitters := events.Multi{hub}
	var eventLog rpc.EventLog
	if cfg.Journal.Driver != "" {
		j, err := openJournal(cfg)
		if err != nil {
			return err
		}
		defer j.Close()
		j.SetLogger(logger)
		emitters = append(emitters, j)
		eventLog = j
		logger.Info("event journal enabled", slog.String("driver", cfg.Journal.Driver), slog.Uint64("head", j.Head()))
	}
	node.SetEmitter(emitters)

	root, err := node.StateRoot()
	if err != nil {
		return fmt.Errorf("compute state root: %w", err)
	}
	logger.Info("node ready",
		slog.String("storage", cfg.StorageBackend),
		slog.Uint64("epoch", uint64(node.Epoch())),
		slog.String("stateRoot", fmt.Sprintf("%x", root)))

	logger.Info("rpc configured",
		slog.String("addr", cfg.RPCAddress),
		logging.MaskField("jwt_secret", cfg.RPCJWTSecret),
		logging.MaskField("journal_dsn", cfg.Journal.DSN),
		slog.Float64("rate_limit", cfg.RPCRateLimit))
	if strings.TrimSpace(cfg.RPCJWTSecret) == "" {
		logger.Warn("RPCJWTSecret not set; authenticated methods will reject every call")
	}
	server := rpc.NewServer(node, eventLog, hub, rpc.Config{
		JWTSecret:    cfg.RPCJWTSecret,
		RateLimit:    cfg.RPCRateLimit,
		RateBurst:    cfg.RPCRateBurst,
		ReadTimeout:  time.Duration(cfg.RPCReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.RPCWriteTimeout) * time.Second,
	})
	server.SetLogger(logger)

	stopEpochs := startEpochs(ctx, node, cfg.EpochInterval(), logger)
	defer stopEpochs()

	if err := server.Serve(ctx, cfg.RPCAddress); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc server: %w", err)
	}
	return nil
}

// openJournal defaults the sqlite DSN to a file next to the state database.
func openJournal(cfg *config.Config) (*journal.Journal, error) {
	dsn := strings.TrimSpace(cfg.Journal.DSN)
	if dsn == "" && cfg.Journal.Driver == "sqlite" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare journal directory: %w", err)
		}
		dsn = filepath.Join(cfg.DataDir, "journal.db")
	}
	j, err := journal.Open(cfg.Journal.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

// startEpochs runs the epoch loop in the background. The returned function
// stops the loop and waits for it to exit, so the node can be closed safely.
func startEpochs(ctx context.Context, node *core.Node, interval time.Duration, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runEpochs(ctx, node, interval, logger)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// runEpochs ends one epoch per interval until ctx is cancelled.
func runEpochs(ctx context.Context, node *core.Node, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := node.AdvanceEpoch()
			if err != nil {
				logger.Error("epoch advance failed", slog.Any("error", err))
				continue
			}
			if len(expired) > 0 {
				logger.Info("gates expired", slog.Uint64("epoch", uint64(node.Epoch())), slog.Any("gates", expired))
			}
		}
	}
}
