package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codexrag/ingesta/internal/config"
	"github.com/codexrag/ingesta/internal/core"
	db "github.com/codexrag/ingesta/internal/core/database"
	"github.com/codexrag/ingesta/internal/core/ingestion_engine"
	"github.com/codexrag/ingesta/internal/core/llm"
	"github.com/codexrag/ingesta/internal/core/source"
)

// App wires configuration into the concrete clients and owns their
// lifecycles. Run drives one full ingestion pass.
type App struct {
	cfg      *config.Config
	dbClient *db.DatabaseClient
	embedder *llm.GeminiEmbedder
	source   core.Source
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.Println("Database initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	var src core.Source
	if strings.HasPrefix(cfg.DataDir, "s3://") {
		src, err = newS3Source(appCtx, cfg)
	} else {
		src = source.NewLocalSource(cfg.DataDir)
	}
	if err != nil {
		_ = dbClient.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("source: %w", err)
	}

	return &App{cfg: cfg, dbClient: dbClient, embedder: embedder, source: src}, nil
}

// newS3Source parses "s3://bucket/prefix" into the bucket fields before
// constructing the client, so DATA_DIR alone can point at a bucket.
func newS3Source(ctx context.Context, cfg *config.Config) (core.Source, error) {
	rest := strings.TrimPrefix(cfg.DataDir, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket != "" {
		cfg.BucketName = bucket
	}
	if prefix != "" {
		cfg.BucketPrefix = prefix
	}
	return source.NewS3Source(ctx, cfg)
}

// Run enumerates the corpus, processes every file through the pipeline and
// writes the final report. The returned error is fatal (enumeration or
// provider auth); per-file failures only show up in the report.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg

	files, err := a.source.List(ctx)
	if err != nil {
		return fmt.Errorf("enumerate corpus: %w", err)
	}
	if len(files) == 0 {
		log.Printf("No supported files found under %s, nothing to do.", cfg.DataDir)
		return nil
	}
	log.Printf("Found %d file(s) to consider.", len(files))

	limiter := ingestion_engine.NewRateLimiter(cfg.RPMLimit, cfg.TPMLimit, cfg.SafetyFraction)
	monitor := ingestion_engine.NewMonitor(len(files), cfg.MonitorInterval, limiter.Usage)

	if cfg.MetricsAddr != "" {
		a.serveMetrics(monitor)
	}

	retry := ingestion_engine.RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		Multiplier:  2,
	}

	ingestor := ingestion_engine.NewIngestor(
		a.dbClient,
		a.embedder,
		ingestion_engine.NewDocconvExtractor(),
		limiter,
		retry,
		monitor,
		&ingestion_engine.IngestConfig{
			ChunkSize:        cfg.ChunkSize,
			ChunkOverlap:     cfg.ChunkOverlap,
			BatchSize:        cfg.EmbedBatchSize,
			MinChunks:        cfg.MinChunks,
			Workers:          cfg.Workers,
			ForceReindex:     cfg.ForceReindex,
			DocIDFromContent: cfg.DocIDFromContent,
		},
	)

	monitor.Start()
	runErr := ingestor.Run(ctx, files)
	monitor.Stop()

	// The report is written even when the run aborted, so a partial run
	// still leaves a record of what happened.
	rpmBudget, tpmBudget := limiter.Budgets()
	report := ingestion_engine.NewReport(monitor.Snapshot(), rpmBudget, tpmBudget)
	path, werr := report.WriteFile(cfg.ReportPath)
	if werr != nil {
		log.Printf("WARN: could not write report: %v", werr)
	} else {
		log.Printf("Report written to %s", path)
	}
	report.PrintSummary(os.Stdout)

	return runErr
}

func (a *App) serveMetrics(monitor *ingestion_engine.Monitor) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(monitor.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}
	go func() {
		log.Printf("Metrics listening on %s", a.cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("WARN: metrics server: %v", err)
		}
	}()
}

func (a *App) Close() {
	if a.source != nil {
		_ = a.source.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.dbClient != nil {
		_ = a.dbClient.Close()
	}
}
