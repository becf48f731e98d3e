package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"tradeberg/internal/ai"
	"tradeberg/internal/cache"
	"tradeberg/internal/chunker"
	"tradeberg/internal/config"
	"tradeberg/internal/filing"
	"tradeberg/internal/ingest"
	"tradeberg/internal/model"
	postgresClient "tradeberg/internal/platform/postgres"
	rabbitmqClient "tradeberg/internal/platform/rabbitmq"
	redisClient "tradeberg/internal/platform/redis"
	"tradeberg/internal/repository"
	"tradeberg/internal/worker"
)

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Postgres        *gorm.DB
	Redis           *redisv9.Client
	MQConn          *amqp.Connection
	Embedder        *ai.Embedder
	ChunkRepo       *repository.ChunkRepository
	StatusRepo      *repository.StatusRepository
	SearchCache     *cache.SearchCache
	IngestPublisher *rabbitmqClient.IngestRequestPublisher
	Scheduler       *ingest.Scheduler
	IngestWorker    *worker.IngestRequestWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.App.Name)

	db, err := postgresClient.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.IngestionStatus{}, &model.DocumentChunk{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}
	// The similarity index has to match the query operator (cosine).
	if err := db.WithContext(ctx).Exec(
		"CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops)",
	).Error; err != nil {
		return nil, fmt.Errorf("create embedding index failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, redisClient.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	embeddingClient := ai.NewOpenAICompatibleClient(time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second)
	embedder, err := ai.NewEmbedder(embeddingClient, ai.EmbeddingConfig{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	}, cfg.Embedding.MaxConcurrent)
	if err != nil {
		return nil, err
	}

	textChunker, err := chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, cfg.Ingest.ChunkTolerance)
	if err != nil {
		return nil, err
	}

	chunkRepo := repository.NewChunkRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	searchCache := cache.NewSearchCache(redisCli, time.Duration(cfg.Redis.SearchTTLSeconds)*time.Second)

	locator := filing.NewLocator(filing.LocatorConfig{
		TickerIndexURL: cfg.Ingest.EdgarTickerIndexURL,
		SubmissionsURL: cfg.Ingest.EdgarSubmissionsURL,
		ArchivesURL:    cfg.Ingest.EdgarArchivesURL,
		UserAgent:      cfg.Ingest.UserAgent,
	}, nil)
	downloader := filing.NewDownloader(
		time.Duration(cfg.Ingest.DownloadTimeoutSeconds)*time.Second,
		cfg.Ingest.DownloadMaxBytes,
		cfg.Ingest.UserAgent,
	)

	staleAfter := time.Duration(cfg.Ingest.StaleRunningMinutes) * time.Minute
	pipeline := ingest.NewPipeline(
		locator,
		downloader,
		filing.NewCleaner(),
		textChunker,
		embedder,
		chunkRepo,
		statusRepo,
		searchCache,
		ingest.RetryPolicy{
			Attempts: cfg.Ingest.RetryAttempts,
			Backoff:  time.Duration(cfg.Ingest.RetryBackoffSeconds) * time.Second,
		},
		staleAfter,
		logger,
	)

	scheduler, err := ingest.NewScheduler(ingest.SchedulerConfig{
		Tickers:      cfg.Ingest.Tickers,
		PollInterval: time.Duration(cfg.Ingest.PollIntervalSeconds) * time.Second,
		Cooldown:     time.Duration(cfg.Ingest.CooldownMinutes) * time.Minute,
		StaleAfter:   staleAfter,
		WorkerLimit:  cfg.Ingest.WorkerLimit,
		CycleTimeout: time.Duration(cfg.Ingest.CycleTimeoutSeconds) * time.Second,
	}, pipeline, statusRepo, logger)
	if err != nil {
		return nil, fmt.Errorf("create scheduler failed: %w", err)
	}
	scheduler.Start(ctx)

	ingestWorker := worker.NewIngestRequestWorker(
		mqConn,
		pipeline,
		statusRepo,
		cfg.RabbitMQ.IngestRequestQueue,
		time.Duration(cfg.Ingest.CooldownMinutes)*time.Minute,
		logger,
	)
	if err := ingestWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start ingest worker failed: %w", err)
	}

	return &App{
		Config:          cfg,
		Logger:          logger,
		Postgres:        db,
		Redis:           redisCli,
		MQConn:          mqConn,
		Embedder:        embedder,
		ChunkRepo:       chunkRepo,
		StatusRepo:      statusRepo,
		SearchCache:     searchCache,
		IngestPublisher: rabbitmqClient.NewIngestRequestPublisher(mqConn, cfg.RabbitMQ.IngestRequestQueue),
		Scheduler:       scheduler,
		IngestWorker:    ingestWorker,
		StartedAt:       time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Embedder != nil {
		a.Embedder.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Postgres != nil {
		sqlDB, err := a.Postgres.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
