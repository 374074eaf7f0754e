package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/internal/service/memory"
	"github.com/HummdG/tazaticket-final/internal/storage/dynamo"
	"github.com/HummdG/tazaticket-final/internal/storage/memstore"
	"github.com/HummdG/tazaticket-final/internal/storage/sqlite"
	"github.com/HummdG/tazaticket-final/internal/transport/cli"
	"github.com/HummdG/tazaticket-final/internal/transport/metrics"
	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/HummdG/tazaticket-final/pkg/srv"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// extra time granted to the services stopped around the memory flush
const shutdownMargin = 5 * time.Second

type application struct {
	services        []srv.Service
	shutdownTimeout time.Duration
}

// NewServices wires the store, the memory manager and its transports. The
// order matters: services shut down in reverse, so the store closes last.
func NewServices(ctx context.Context) (*application, error) {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	memCfg := config.NewMemoryConfig(ctx)

	// 2. Storage
	table, cleanup, err := initTable(ctx, appCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", appCfg.StoreBackend, err)
	}
	if cleanup != nil {
		services = append(services, cleanup)
	}

	// 3. Memory
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mgr := memory.NewManager(memCfg, table, memory.WithMetrics(memory.NewMetrics(reg)))

	// the janitor's shutdown runs the final flush of every thread
	services = append(services, memory.NewJanitor(mgr, memCfg.JanitorInterval))

	// 4. Transports
	if appCfg.MetricsAddr != "" {
		services = append(services, metrics.NewServer(appCfg.MetricsAddr, reg))
	}

	if appCfg.EnableCLI {
		rl, err := cli.NewReadLine(mgr, appCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize console: %w", err)
		}
		services = append(services, rl)
	}

	logger.Info().
		Str("backend", appCfg.StoreBackend).
		Int("context_pairs", memCfg.ContextPairs).
		Int("batch_pairs", memCfg.BatchPairs).
		Int("max_ram_pairs", memCfg.MaxRAMPairs).
		Msg("memory configured")

	return &application{
		services:        services,
		shutdownTimeout: memCfg.ShutdownTimeout + shutdownMargin,
	}, nil
}

// initTable opens the configured backend. The returned service, when not nil,
// releases the backend on shutdown.
func initTable(ctx context.Context, cfg *config.AppConfig) (core.Table, srv.Service, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		table, err := dynamo.New(ctx, config.NewDynamoConfig(ctx))
		if err != nil {
			return nil, nil, err
		}
		return table, nil, nil

	case config.BackendMemory:
		log.FromCtx(ctx).Warn().Msg("memory backend selected, history will not survive a restart")
		return memstore.NewTable(), nil, nil

	default:
		db, err := sqlite.NewDB(ctx, cfg.GetDatabasePath())
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewTable(db), srv.NewCleanup("sqlite", db.Close), nil
	}
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
