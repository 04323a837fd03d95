package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/chartmill/chartmill/internal/config"
	"github.com/chartmill/chartmill/internal/core/ports"
	"github.com/chartmill/chartmill/internal/core/taxonomy"
	"github.com/chartmill/chartmill/internal/core/usecase"
	"github.com/chartmill/chartmill/internal/infrastructure/extractor/pdftext"
	"github.com/chartmill/chartmill/internal/infrastructure/inference/docintel"
	"github.com/chartmill/chartmill/internal/infrastructure/queue/nats"
	"github.com/chartmill/chartmill/internal/infrastructure/repository/postgres"
	"github.com/chartmill/chartmill/internal/infrastructure/resilience"
	"github.com/chartmill/chartmill/internal/infrastructure/searchindex"
	"github.com/chartmill/chartmill/internal/infrastructure/storage/localfs"
	"github.com/chartmill/chartmill/internal/infrastructure/workerpool"
	"github.com/chartmill/chartmill/internal/observability/logging"
	"github.com/chartmill/chartmill/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   ports.MessageQueue
	Repo    ports.DocumentRepository
	Pool    *workerpool.Pool
	Metrics *metrics.PipelineMetrics

	IngestUC   ports.DocumentIngestor
	PipelineUC *usecase.PipelineUseCase
	AdminUC    *usecase.DocumentAdminUseCase

	closeFn func()
}

// New wires the full graph for one process. The service name lands in every
// log line and metric label so api and worker stay distinguishable.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	projections := postgres.NewProjectionRepository(db)
	taxonomies := postgres.NewTaxonomyRepository(db)

	seed, err := taxonomy.LoadSeed(cfg.TaxonomySeedPath)
	if err != nil {
		return nil, err
	}
	categories, keywords := seed.Concepts()
	if err := usecase.SeedTaxonomy(ctx, taxonomies, categories, keywords); err != nil {
		return nil, fmt.Errorf("seed taxonomy: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(service)

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryBaseDelay:   time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
		OnRetry: func(operation string, _ int, err error) {
			if docintel.IsRateLimited(err) {
				pipelineMetrics.RecordRateLimitRetry(service, operation)
			}
		},
	})

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	annotator := docintel.New(cfg.DocIntelURL, cfg.DocIntelAPIKey, cfg.DocIntelModel, docintel.Options{
		MaxInFlight: int64(cfg.InferenceMaxInFlight),
		Executor:    executor,
		Metrics:     pipelineMetrics.InferenceRecorder(service),
		Timeout:     time.Duration(cfg.InferenceTimeoutSecs) * time.Second,
	})

	index := searchindex.New(cfg.IndexURL, cfg.IndexAPIKey, 10*time.Second)
	extractor := pdftext.New(storage)
	pool := workerpool.New(cfg.PoolWorkers, cfg.PoolQueueDepth, logger)

	var taxonomyRate *rate.Limiter
	if cfg.TaxonomyRatePerSecond > 0 {
		taxonomyRate = rate.NewLimiter(rate.Limit(cfg.TaxonomyRatePerSecond), 1)
	}

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, extractor, queue, logger)
	pipelineUC := usecase.NewPipelineUseCase(
		repo, projections, taxonomies, annotator, index, pool, taxonomyRate,
		pipelineMetrics, logger,
		usecase.PipelineConfig{
			MinClassifyConfidence: cfg.ClassifyMinConfidence,
			IndexReadyAttempts:    cfg.IndexReadyAttempts,
			IndexReadyDelay:       time.Duration(cfg.IndexReadyDelayMS) * time.Millisecond,
			Service:               service,
		},
	)
	adminUC := usecase.NewDocumentAdminUseCase(repo, projections, taxonomies, index, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Queue:   queue,
		Repo:    repo,
		Pool:    pool,
		Metrics: pipelineMetrics,

		IngestUC:   ingestUC,
		PipelineUC: pipelineUC,
		AdminUC:    adminUC,

		closeFn: func() {
			pool.Close()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
