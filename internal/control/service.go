package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/corpus/internal/catalog/recovery"
	"github.com/vietddude/corpus/internal/catalog/txn"
	"github.com/vietddude/corpus/internal/catalog/vector"
	"github.com/vietddude/corpus/internal/core/config"
	"github.com/vietddude/corpus/internal/health"
	redisclient "github.com/vietddude/corpus/internal/infra/redis"
	"github.com/vietddude/corpus/internal/infra/storage"
	"github.com/vietddude/corpus/internal/infra/storage/memory"
	"github.com/vietddude/corpus/internal/infra/storage/postgres"
)

// Service is the main application struct that owns the catalog
// consistency components and their lifecycle.
type Service struct {
	cfg          Config
	coordinator  *txn.Coordinator
	vectors      *vector.BatchOperator
	sweeper      *txn.Sweeper
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// Config holds the application configuration.
type Config struct {
	Port         int
	Database     postgres.Config
	Redis        redisclient.Config
	Transactions config.TxConfig
	VectorBatch  config.VectorBatchConfig
}

// NewService creates a Service with all dependencies initialized.
func NewService(cfg Config) (*Service, error) {
	// 1. Initialize Relational Storage
	var store storage.Relational
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		// Note: Goose needs direct *sql.DB which sqlx.DB wraps
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		store = db
		slog.Info("Using PostgreSQL storage")
	} else {
		store = memory.NewMemoryStorage()
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Vector Store
	var redisClient *redisclient.Client
	var vectorStore vector.Store
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		vectorStore = redisclient.NewVectorStore(redisClient)
	} else {
		vectorStore = vector.Discard{}
		slog.Warn("No redis URL configured, vector writes are discarded")
	}

	classifier := recovery.MessageClassifier{}

	operator := vector.NewBatchOperator(vectorStore, vector.Config{
		BatchSize:            cfg.VectorBatch.BatchSize,
		MaxConcurrentBatches: cfg.VectorBatch.MaxConcurrentBatches,
		MaxRetries:           cfg.VectorBatch.MaxRetries,
		RetryDelay:           cfg.VectorBatch.RetryDelay,
	}, slog.Default())

	// 3. Initialize Coordinator
	coordinator := txn.NewCoordinator(txn.Config{
		Store:      store,
		Vectors:    operator,
		Classifier: classifier,
		Retry: recovery.RetryConfig{
			MaxRetries:      cfg.Transactions.MaxRetries,
			RetryDelay:      cfg.Transactions.RetryDelay,
			BackoffMultiple: cfg.Transactions.BackoffMultiple,
			MaxDelay:        recovery.DefaultRetryConfig.MaxDelay,
		},
	})

	sweeper := txn.NewSweeper(coordinator, cfg.Transactions.Retention, slog.Default())

	// 4. Initialize Health Monitor
	healthMon := health.NewMonitor()
	if db != nil {
		healthMon.Register("database", db.Health)
	}
	if redisClient != nil {
		healthMon.Register("redis", redisClient.Health)
	}
	healthServer := health.NewServer(healthMon, cfg.Port)

	return &Service{
		cfg:          cfg,
		coordinator:  coordinator,
		vectors:      operator,
		sweeper:      sweeper,
		healthMon:    healthMon,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Coordinator exposes the transaction coordinator.
func (s *Service) Coordinator() *txn.Coordinator { return s.coordinator }

// Vectors exposes the bulk vector operator.
func (s *Service) Vectors() *vector.BatchOperator { return s.vectors }

// Start starts the service and its background components.
func (s *Service) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	// Start transaction retention sweeper
	go s.sweeper.Start(ctx)

	return nil
}

// Stop stops the service.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}

	return s.healthServer.Stop(ctx)
}
