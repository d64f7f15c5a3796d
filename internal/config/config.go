// Package config loads kittycore runtime configuration from KITTYCORE_*
// environment variables.
package config

import (
	"encoding/hex"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	StorageMemory   = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   = "sqlite"   // embedded sqlite file
	StoragePostgres = "postgres" // PostgreSQL server
)

// Blob drivers.
const (
	BlobFilesystem = "fs"
	BlobS3         = "s3"
	BlobMemory     = "memory"
)

// Metrics recorders. An empty value disables metrics.
const (
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// Config is the full runtime configuration.
type Config struct {
	Storage   Storage
	Blob      Blob
	Telemetry Telemetry
	Host      Host
}

// Storage selects and configures the persistent store.
type Storage struct {
	Driver      string `env:"KITTYCORE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"KITTYCORE_SQLITE_PATH" envDefault:"kittycore.db"`
	PostgresDSN string `env:"KITTYCORE_POSTGRES_DSN"`
}

// Blob selects and configures the archive blob store.
type Blob struct {
	Driver string `env:"KITTYCORE_BLOB_DRIVER" envDefault:"fs"`
	FSRoot string `env:"KITTYCORE_BLOB_FS_ROOT" envDefault:"./blobdata"`
	S3     S3
}

// S3 configures the S3 / MinIO compatible blob driver.
type S3 struct {
	Bucket          string `env:"KITTYCORE_BLOB_S3_BUCKET"`
	Region          string `env:"KITTYCORE_BLOB_S3_REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"KITTYCORE_BLOB_S3_ENDPOINT"`
	AccessKeyID     string `env:"KITTYCORE_BLOB_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"KITTYCORE_BLOB_S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"KITTYCORE_BLOB_S3_USE_PATH_STYLE"`
}

// Telemetry configures OTLP trace export and the operation metrics recorder.
type Telemetry struct {
	Enabled     bool   `env:"KITTYCORE_OTEL_ENABLED" envDefault:"true"`
	Endpoint    string `env:"KITTYCORE_OTEL_ENDPOINT"`
	ServiceName string `env:"KITTYCORE_SERVICE_NAME" envDefault:"kittycore"`
	Metrics     string `env:"KITTYCORE_METRICS"`
}

// Host configures the reference ledger host.
type Host struct {
	GenesisSeed  string `env:"KITTYCORE_GENESIS_SEED"`
	ArchiveEvery uint64 `env:"KITTYCORE_ARCHIVE_EVERY" envDefault:"0"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports unknown drivers and malformed values.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %s", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case BlobFilesystem, BlobMemory:
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("KITTYCORE_BLOB_S3_BUCKET required for s3 blob driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %s", c.Blob.Driver)
	}
	switch c.Telemetry.Metrics {
	case "", MetricsExpvar, MetricsPrometheus:
	default:
		return fmt.Errorf("unknown metrics recorder %s", c.Telemetry.Metrics)
	}
	if _, _, err := c.Host.Seed(); err != nil {
		return err
	}
	return nil
}

// Seed decodes the pinned genesis seed. ok is false when none is configured.
func (h Host) Seed() (seed [32]byte, ok bool, err error) {
	if h.GenesisSeed == "" {
		return seed, false, nil
	}
	raw, err := hex.DecodeString(h.GenesisSeed)
	if err != nil {
		return seed, false, fmt.Errorf("decode genesis seed: %w", err)
	}
	if len(raw) != len(seed) {
		return seed, false, fmt.Errorf("genesis seed must be %d bytes, got %d", len(seed), len(raw))
	}
	copy(seed[:], raw)
	return seed, true, nil
}
