package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradesim/internal/config"
	"tradesim/internal/gather"
	"tradesim/internal/gather/us"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

func main() {
	skipBars := flag.Bool("skip-bars", false, "do not fetch daily bars")
	skipNews := flag.Bool("skip-news", false, "do not fetch news sentiment")
	interval := flag.Duration("loop", 0, "repeat the ingest at this interval (runs once when zero)")
	endFlag := flag.String("end", "", "last day to ingest YYYY-MM-DD (default: latest finished trading day)")
	flag.Parse()

	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/tradesim-ingest-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, "text")
	slog.SetDefault(logger)

	gcfg := cfg.Gather
	symbols, err := us.ResolveSymbols(gcfg.Symbols, gcfg.SymbolsCSV)
	if err != nil {
		log.Fatalf("resolving symbols: %v", err)
	}
	start, err := time.Parse(config.DateLayout, gcfg.StartDate)
	if err != nil {
		log.Fatalf("parsing gather.start_date: %v", err)
	}

	end := us.CalendarEnd(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	if *endFlag != "" {
		t, err := time.Parse(config.DateLayout, *endFlag)
		if err != nil {
			log.Fatalf("parsing -end: %v", err)
		}
		end = us.FixedEnd(t)
	}

	opts := us.Options{
		Symbols:    symbols,
		Start:      start,
		End:        end,
		BatchSize:  gcfg.BatchSize,
		MaxWorkers: gcfg.MaxWorkers,
		Feed:       marketdata.Feed(cfg.Alpaca.Feed),
		NewsLimit:  gcfg.NewsLimit,
		StateDir:   filepath.Join(cfg.Storage.DataDir, gcfg.Market, ".ingest"),
		Limiter:    util.NewRateLimiter(gcfg.RateLimitPerMin),
		Logger:     logger,
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	client := us.NewMarketDataClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)

	var gatherers []gather.Gatherer
	if len(symbols) > 0 && !*skipBars {
		gatherers = append(gatherers, us.NewDailyBarGatherer(client, pstore, opts))
	}
	if len(symbols) > 0 && !*skipNews {
		news, err := us.NewNewsSentimentGatherer(client, pstore, gcfg.Market, opts)
		if err != nil {
			log.Fatalf("creating news gatherer: %v", err)
		}
		gatherers = append(gatherers, news)
	}
	if gcfg.FundamentalsCSV != "" {
		gatherers = append(gatherers, us.NewFundamentalsImporter(gcfg.FundamentalsCSV, pstore, gcfg.Market, logger))
	}
	if len(gatherers) == 0 {
		log.Fatalf("nothing to ingest: configure gather.symbols, gather.symbols_csv or gather.fundamentals_csv")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting tradesim-ingest",
		"symbols", len(symbols),
		"gatherers", len(gatherers),
		"loop", interval.String(),
		"logFile", logFileName,
	)

	for {
		if err := gather.RunAll(ctx, logger, gatherers...); err != nil {
			if *interval == 0 || ctx.Err() != nil {
				log.Fatalf("ingest error: %v", err)
			}
			slog.Error("ingest pass failed", "error", err)
		}
		if *interval == 0 {
			return
		}
		slog.Info("ingest pass finished, sleeping", "next", time.Now().Add(*interval).Format(time.DateTime))
		select {
		case <-ctx.Done():
			return
		case <-time.After(*interval):
		}
	}
}
