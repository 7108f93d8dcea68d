package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Transactions.Retention == 0 {
		cfg.Transactions.Retention = 30 * time.Minute
	}
	if cfg.Transactions.MaxRetries == 0 {
		cfg.Transactions.MaxRetries = 3
	}
	if cfg.Transactions.RetryDelay == 0 {
		cfg.Transactions.RetryDelay = time.Second
	}
	if cfg.Transactions.BackoffMultiple == 0 {
		cfg.Transactions.BackoffMultiple = 2.0
	}
	if cfg.VectorBatch.BatchSize == 0 {
		cfg.VectorBatch.BatchSize = 100
	}
	if cfg.VectorBatch.MaxConcurrentBatches == 0 {
		cfg.VectorBatch.MaxConcurrentBatches = 1
	}

	return &cfg, nil
}
