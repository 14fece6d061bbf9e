package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradesim/internal/api"
	"tradesim/internal/config"
	"tradesim/internal/engine"
	"tradesim/internal/store"
	"tradesim/internal/timeseries"
	"tradesim/internal/util"
)

func main() {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/tradesim-server-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ps := store.NewParquetStore(cfg.Storage.DataDir)
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	manager := engine.NewManager(
		timeseries.Sources{Bars: ps, Sentiment: ps, Fundamentals: ps},
		runs,
		engine.ManagerOptions{
			MaxConcurrent: cfg.Engine.MaxConcurrentRuns,
			Retain:        cfg.Engine.RetainRuns,
			Logger:        logger,
		},
	)

	handler := api.NewHandler(manager, ps, cfg.Simulation, logger)
	svc := api.NewGRPCService(manager, cfg.Simulation, logger)
	srv := api.NewServer(cfg.Server, handler, svc, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("tradesim-server starting",
		"port", cfg.Server.Port,
		"grpcPort", cfg.Server.GRPCPort,
		"dataDir", cfg.Storage.DataDir,
		"logFile", logFileName,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
	}

	// In-flight runs are cancelled and recorded as aborted.
	manager.Close()
	logger.Info("tradesim-server stopped")
}
