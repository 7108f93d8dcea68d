package config

import (
	"time"

	redisclient "github.com/vietddude/corpus/internal/infra/redis"
	"github.com/vietddude/corpus/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Database     postgres.Config    `yaml:"database"`
	Redis        redisclient.Config `yaml:"redis"`
	Logging      LoggingConfig      `yaml:"logging"`
	Transactions TxConfig           `yaml:"transactions"`
	VectorBatch  VectorBatchConfig  `yaml:"vector_batch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TxConfig holds transaction coordinator settings.
type TxConfig struct {
	Retention       time.Duration `yaml:"retention"`        // how long terminal transactions stay registered
	MaxRetries      int           `yaml:"max_retries"`      // commit retry attempts on transient failures
	RetryDelay      time.Duration `yaml:"retry_delay"`      // initial backoff between commit retries
	BackoffMultiple float64       `yaml:"backoff_multiple"` // backoff growth factor
}

// VectorBatchConfig holds bulk vector operation settings.
type VectorBatchConfig struct {
	BatchSize            int           `yaml:"batch_size"`
	MaxConcurrentBatches int           `yaml:"max_concurrent_batches"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
}
