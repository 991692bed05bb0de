package db

import (
	"errors"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/EBISPOT/stats-app/internal/config"
)

// schemaDDL creates the partitioned fact tables. AutoMigrate cannot express
// declarative partitioning or composite foreign keys, so these run as raw
// statements. Every statement is idempotent.
var schemaDDL = []string{
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	`CREATE TABLE IF NOT EXISTS requests (
		id bigserial,
		request_date date NOT NULL,
		request_timestamp timestamptz NOT NULL,
		endpoint_id bigint NOT NULL REFERENCES endpoints (id),
		resource_id bigint NOT NULL REFERENCES resources (id),
		country_id bigint REFERENCES countries (id),
		PRIMARY KEY (id, request_date),
		UNIQUE (request_date, request_timestamp, endpoint_id, resource_id)
	) PARTITION BY RANGE (request_date)`,
	`CREATE TABLE IF NOT EXISTS parameters (
		id bigserial PRIMARY KEY,
		request_id bigint NOT NULL,
		request_date date NOT NULL,
		param_name text NOT NULL,
		param_value text NOT NULL,
		FOREIGN KEY (request_id, request_date)
			REFERENCES requests (id, request_date) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_parameters_name_value ON parameters (param_name, param_value)`,
	`CREATE INDEX IF NOT EXISTS idx_parameters_request ON parameters (request_id, request_date)`,
	`CREATE INDEX IF NOT EXISTS idx_endpoints_path_trgm ON endpoints USING gin (path gin_trgm_ops)`,
}

// Connect opens a GORM database connection using APP_DATABASE_URL (PostgreSQL URL)
// and brings the schema up to date.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the dimension tables through AutoMigrate and the
// partitioned fact tables through raw DDL. The parent requests table starts
// with no partitions attached; EnsurePartition adds them as event dates
// arrive.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Resource{}, &Endpoint{}, &Country{}); err != nil {
		return err
	}
	for _, stmt := range schemaDDL {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
