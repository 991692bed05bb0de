package config

import (
	"os"
	"strconv"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	// DatabaseURL is the PostgreSQL connection URL (postgres://...).
	DatabaseURL string

	// ListenAddr is the host:port the HTTP server binds to.
	ListenAddr string

	// PartitionGranularity is the calendar span of newly created request
	// partitions: "month" or "year". Existing partitions of the other
	// width keep working either way.
	PartitionGranularity string

	// RetentionDays is the age in days past which events are deleted.
	// Zero or negative disables retention.
	RetentionDays int

	// IngestToken guards POST /v1/events when set. Empty leaves ingest
	// open for trusted-network deployments.
	IngestToken string

	// SelfReport, when enabled, feeds the service's own API traffic back
	// through the ingest endpoint.
	SelfReport bool
}

// Load reads configuration from the environment, applying defaults for
// everything except the database URL.
func Load() *Config {
	retentionDays := 0
	if v := os.Getenv("APP_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			retentionDays = n
		}
	}

	return &Config{
		DatabaseURL:          os.Getenv("APP_DATABASE_URL"),
		ListenAddr:           getenv("APP_LISTEN_ADDR", ":8080"),
		PartitionGranularity: getenv("APP_PARTITION_GRANULARITY", "month"),
		RetentionDays:        retentionDays,
		IngestToken:          os.Getenv("APP_INGEST_TOKEN"),
		SelfReport:           boolenv("APP_SELF_REPORT"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolenv(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
