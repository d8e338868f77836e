package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"realestate-scraper/batch"
	"realestate-scraper/config"
	"realestate-scraper/fetcher"
	"realestate-scraper/schema"
	"realestate-scraper/services"
	"realestate-scraper/storage"
	"realestate-scraper/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	logger.Info("=== Listing Extraction Pipeline ===")
	logger.Info("Config — concurrency: %d | rate: %dms | retries: %d | data: %s",
		cfg.MaxConcurrency, cfg.RateLimitMs, cfg.MaxRetries, cfg.DataDir)

	store := storage.NewFileStore(cfg.DataDir)

	switch command {
	case "init-batch":
		runInitBatch(cfg, logger, store, args)
	case "fetch":
		runFetch(cfg, logger, store, args)
	case "parse-details":
		runParse(cfg, logger, store, args)
	case "run":
		runFull(cfg, logger, store, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: realestate-scraper <command> [flags]

Commands:
  init-batch                      create a new batch from the seed config
  fetch         [--batch ID] [--n N]            fetch pending detail pages
  parse-details [--batch ID] [--limit N] [--force]  parse fetched snapshots
  run           [--batch ID] [--n N]            fetch and parse in one pass
`)
}

func runInitBatch(cfg *config.Config, logger *utils.Logger, store *storage.FileStore, args []string) {
	fs := flag.NewFlagSet("init-batch", flag.ExitOnError)
	seedsPath := fs.String("seeds", cfg.SeedsPath, "path to the seed config file")
	fs.Parse(args)

	seeds, err := config.LoadSeeds(*seedsPath)
	if err != nil {
		logger.Error("Seed config: %v", err)
		os.Exit(1)
	}

	orch := newOrchestrator(cfg, logger, store, nil, nil)
	ledger, err := orch.InitBatch(seeds)
	if err != nil {
		logger.Error("Batch initialization failed: %v", err)
		os.Exit(1)
	}
	if err := store.EnsureBatchDirs(ledger.BatchID()); err != nil {
		logger.Error("Batch directories: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n  Batch %s ready — %d detail urls pending\n\n",
		ledger.BatchID(), len(ledger.Pending()))
}

func runFetch(cfg *config.Config, logger *utils.Logger, store *storage.FileStore, args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	batchID := fs.String("batch", "", "batch id (default: most recent)")
	n := fs.Int("n", 0, "max urls to fetch this invocation (0 = all pending)")
	fs.Parse(args)

	ctx := signalContext(logger)

	chrome := fetcher.NewChromeFetcher(cfg, logger)
	defer chrome.Close()

	orch := newOrchestrator(cfg, logger, store, chrome, nil)
	ledger, sum := openBatch(logger, store, orch, *batchID)

	orch.FetchDetails(ctx, ledger, *n, sum)
	finish(sum)
}

func runParse(cfg *config.Config, logger *utils.Logger, store *storage.FileStore, args []string) {
	fs := flag.NewFlagSet("parse-details", flag.ExitOnError)
	batchID := fs.String("batch", "", "batch id (default: most recent)")
	limit := fs.Int("limit", 0, "max snapshots to parse this invocation (0 = all fetched)")
	force := fs.Bool("force", false, "re-parse urls already in a terminal state")
	fs.Parse(args)

	ctx := signalContext(logger)

	sinks, closeSinks := buildSinks(cfg, logger)
	defer closeSinks()

	orch := newOrchestrator(cfg, logger, store, nil, sinks)
	ledger, sum := openBatch(logger, store, orch, *batchID)

	orch.ParseDetails(ctx, ledger, *limit, *force, sum)
	finish(sum)
}

func runFull(cfg *config.Config, logger *utils.Logger, store *storage.FileStore, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	batchID := fs.String("batch", "", "batch id (default: most recent)")
	n := fs.Int("n", 0, "max urls to process this invocation (0 = all pending)")
	fs.Parse(args)

	ctx := signalContext(logger)

	chrome := fetcher.NewChromeFetcher(cfg, logger)
	defer chrome.Close()

	sinks, closeSinks := buildSinks(cfg, logger)
	defer closeSinks()

	orch := newOrchestrator(cfg, logger, store, chrome, sinks)
	ledger, sum := openBatch(logger, store, orch, *batchID)

	orch.Run(ctx, ledger, *n, sum)
	finish(sum)
}

func newOrchestrator(cfg *config.Config, logger *utils.Logger, store *storage.FileStore, f batch.Fetcher, sinks []storage.RecordSink) *batch.Orchestrator {
	merger := services.NewMerger(schema.NewRegistry(), logger)
	return batch.New(cfg, logger, merger, batch.Deps{
		Snapshots: store,
		Records:   store,
		States:    store,
		Fetcher:   f,
		Sinks:     sinks,
	})
}

// openBatch resumes the named batch, or the most recent one when no id was
// given.
func openBatch(logger *utils.Logger, store *storage.FileStore, orch *batch.Orchestrator, batchID string) (*batch.Ledger, *services.RunSummary) {
	if batchID == "" {
		latest, err := store.LatestBatchID()
		if err != nil {
			logger.Error("No batch to operate on, run init-batch first: %v", err)
			os.Exit(1)
		}
		batchID = latest
	} else if !store.BatchExists(batchID) {
		logger.Error("Batch %s not found on disk", batchID)
		os.Exit(1)
	}

	ledger, err := orch.Resume(batchID)
	if err != nil {
		logger.Error("Could not open batch %s: %v", batchID, err)
		os.Exit(1)
	}
	return ledger, services.NewRunSummary(batchID)
}

// buildSinks assembles the optional secondary sinks: the CSV export always,
// Postgres only when enabled in config.
func buildSinks(cfg *config.Config, logger *utils.Logger) ([]storage.RecordSink, func()) {
	var sinks []storage.RecordSink

	csvPath := filepath.Join(cfg.DataDir, cfg.CSVExportName)
	csvWriter, err := storage.NewCSVWriter(csvPath)
	if err != nil {
		logger.Error("Failed to create CSV export: %v", err)
		os.Exit(1)
	}
	sinks = append(sinks, csvWriter)
	logger.Info("CSV export → %s", csvPath)

	if cfg.PostgresEnabled {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			logger.Error("Make sure Docker is running: docker compose up -d")
			os.Exit(1)
		}
		sinks = append(sinks, pgWriter)
		logger.Info("PostgreSQL sink enabled (table: listings)")
	}

	return sinks, func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				logger.Warn("Sink close: %v", err)
			}
		}
	}
}

// signalContext cancels on SIGINT/SIGTERM so an interrupted run leaves the
// batch resumable instead of half-written.
func signalContext(logger *utils.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Warn("Interrupt received — finishing in-flight work, state stays resumable")
		cancel()
	}()
	return ctx
}

// finish prints the run summary and sets the exit code: non-zero iff any
// listing ended in a terminal failure during this invocation.
func finish(sum *services.RunSummary) {
	sum.Print()
	if sum.Failures() > 0 {
		os.Exit(1)
	}
}
