// Package config provides configuration loading and management for scanreview.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete scanreview configuration
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Batch   BatchConfig   `yaml:"batch"`
	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Ingest  IngestConfig  `yaml:"ingest"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (default: nats://localhost:4222)
	URL string `yaml:"url"`
	// Stream is the JetStream stream carrying phase updates
	Stream string `yaml:"stream"`
}

// BatchConfig configures batch ingestion bounds
type BatchConfig struct {
	// MaxCandidates caps the number of candidates accepted per batch
	MaxCandidates int `yaml:"max_candidates"`
}

// HTTPConfig configures the review API surface
type HTTPConfig struct {
	// Port is the HTTP listen port for the review API
	Port int `yaml:"port"`
}

// StorageConfig configures durable submission storage
type StorageConfig struct {
	// Bucket is the KV bucket name for submission records
	Bucket string `yaml:"bucket"`
}

// IngestConfig configures manifest file ingestion
type IngestConfig struct {
	// ManifestDir is the directory watched for dropped manifest files
	ManifestDir string `yaml:"manifest_dir"`
	// Pattern is the doublestar glob accepted manifests must match
	Pattern string `yaml:"pattern"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:    "nats://localhost:4222",
			Stream: "REVIEW",
		},
		Batch: BatchConfig{
			MaxCandidates: 125,
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			Bucket: "SCANREVIEW_SUBMISSIONS",
		},
		Ingest: IngestConfig{
			ManifestDir: "manifests",
			Pattern:     "**/*.manifest.json",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.NATS.Stream == "" {
		return fmt.Errorf("nats.stream is required")
	}
	if c.Batch.MaxCandidates <= 0 {
		return fmt.Errorf("batch.max_candidates must be positive")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be a valid port number")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Stream != "" {
		c.NATS.Stream = other.NATS.Stream
	}

	// Batch
	if other.Batch.MaxCandidates != 0 {
		c.Batch.MaxCandidates = other.Batch.MaxCandidates
	}

	// HTTP
	if other.HTTP.Port != 0 {
		c.HTTP.Port = other.HTTP.Port
	}

	// Storage
	if other.Storage.Bucket != "" {
		c.Storage.Bucket = other.Storage.Bucket
	}

	// Ingest
	if other.Ingest.ManifestDir != "" {
		c.Ingest.ManifestDir = other.Ingest.ManifestDir
	}
	if other.Ingest.Pattern != "" {
		c.Ingest.Pattern = other.Ingest.Pattern
	}
}
