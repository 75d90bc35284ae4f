package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"momentum/internal/config"
	"momentum/internal/util"
	"momentum/pkg/embed"
	"momentum/pkg/graph"
	"momentum/pkg/leaselock"
	"momentum/pkg/logger"
	"momentum/pkg/logger/console"
	"momentum/pkg/store"
	"momentum/pkg/store/memory"
	pgstore "momentum/pkg/store/pgx"
)

// One-shot pipeline runner. Ingests an optional JSON batch file, runs a
// full recompute pass and prints the run report. Uses Postgres when
// DATABASE_URL is set, otherwise an in-memory store.
func main() {
	batchPath := flag.String("batch", "", "path to a JSON batch file to ingest before the run")
	asOfFlag := flag.String("as-of", "", "reference time for decay and recency (RFC 3339, default now)")
	skipEmbed := flag.Bool("no-embed", false, "skip embedding backfill for snippets without vectors")
	flag.Parse()

	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	}))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	asOf := time.Now().UTC()
	if *asOfFlag != "" {
		parsed, err := time.Parse(time.RFC3339, *asOfFlag)
		if err != nil {
			logger.Fatal("Invalid -as-of value", "err", err)
		}
		asOf = parsed.UTC()
	}

	var (
		st     store.GraphStorage
		locker graph.RegionLocker
	)
	if databaseURL := util.GetEnvString("DATABASE_URL", ""); databaseURL != "" {
		if err := pgstore.Migrate(databaseURL); err != nil {
			logger.Fatal("Migration failed", "err", err)
		}
		pg, err := pgstore.New(ctx, databaseURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pg.Close()
		st = pg
		locker = leaselock.NewRegionLocker(leaselock.New(pg.Pool()))
	} else {
		logger.Info("DATABASE_URL not set, using in-memory store")
		st = memory.New()
	}

	if *batchPath != "" {
		var embedder embed.Embedder
		if !*skipEmbed {
			e, err := embed.NewFromEnv()
			if err != nil {
				logger.Fatal("Could not create embedder", "err", err)
			}
			embedder = e
		}

		data, err := os.ReadFile(*batchPath)
		if err != nil {
			logger.Fatal("Could not read batch file", "path", *batchPath, "err", err)
		}
		var batch graph.Batch
		if err := json.Unmarshal(data, &batch); err != nil {
			logger.Fatal("Could not parse batch file", "path", *batchPath, "err", err)
		}

		ingestor := graph.NewIngestor(st, &cfg, embedder)
		rep, err := ingestor.Ingest(ctx, batch)
		if err != nil {
			logger.Fatal("Ingest failed", "err", err)
		}
		logger.Info("Batch ingested",
			"articles", rep.Articles, "snippets", rep.Snippets,
			"newEntities", rep.NewEntities, "rejected", rep.Rejected)
	}

	pipeline := graph.NewPipeline(st, &cfg, locker)
	report, err := pipeline.Run(ctx, asOf)
	if err != nil {
		logger.Fatal("Pipeline run failed", "err", err)
	}

	fmt.Printf("run %s (as of %s)\n", report.RunID, report.AsOf.Format(time.RFC3339))
	fmt.Printf("  articles:   %d\n", report.Articles)
	fmt.Printf("  co-links:   %d\n", report.CoLinks)
	fmt.Printf("  clusters:   %d (modularity %.4f)\n", report.Clusters, report.Modularity)
	fmt.Printf("  sim edges:  %d\n", report.SimEdges)
	fmt.Printf("  sub-themes: %d\n", report.SubThemes)
	fmt.Printf("  rankings:   %d\n", report.Rankings)
	fmt.Printf("  took:       %s\n", report.Duration.Round(time.Millisecond))
}
