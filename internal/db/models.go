package db

import (
	"time"

	"gorm.io/datatypes"
)

// Resource is a named data service whose access logs feed this store
// (e.g. OLS, BIOSAMPLES). Rows are created on first reference and never
// updated or deleted afterwards.
type Resource struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

// Endpoint is a URL path observed for one resource. The same path seen
// under two resources is two distinct endpoints.
type Endpoint struct {
	ID         uint   `gorm:"primaryKey"`
	Path       string `gorm:"uniqueIndex:idx_endpoints_path_resource,priority:1;not null"`
	ResourceID uint   `gorm:"uniqueIndex:idx_endpoints_path_resource,priority:2;not null"`
}

// Country is the origin of a request, resolved from its source address.
type Country struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

// Request is one stored API request event. The backing table is
// range-partitioned by request_date, so both the primary key and the
// dedup constraint carry the partition column. It is created by Migrate
// through raw DDL, never by AutoMigrate.
type Request struct {
	ID               int64 `gorm:"primaryKey"`
	RequestDate      datatypes.Date
	RequestTimestamp time.Time
	EndpointID       uint
	ResourceID       uint
	CountryID        *uint
}

// Parameter is one query-string pair attached to a request. The composite
// foreign key back to requests carries request_date so it can target the
// partitioned table; deleting the request cascades to its parameters.
type Parameter struct {
	ID          int64 `gorm:"primaryKey"`
	RequestID   int64
	RequestDate datatypes.Date
	ParamName   string
	ParamValue  string
}
