package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/EBISPOT/stats-app/internal/db"
	"github.com/EBISPOT/stats-app/internal/geoip"
)

// Loader walks the staging tree, inserts every parsed document as an
// event and moves fully loaded files into a mirrored processed tree.
type Loader struct {
	DB           *gorm.DB
	StagingDir   string
	ProcessedDir string
	Granularity  dbpkg.Granularity

	// GeoIP resolves source addresses of documents that arrived without a
	// pre-resolved country. Optional.
	GeoIP *geoip.Resolver
}

// Stats summarizes one loader run.
type Stats struct {
	Files      int
	Inserted   int
	Duplicates int
	Skipped    int
}

type logEntry struct {
	Source logSource `json:"_source"`
}

// logSource carries the document fields the loader reads. Newer documents
// split the request into request_uri_path and request_query; older ones
// have a single endpoint field with the query still attached.
type logSource struct {
	Timestamp      time.Time `json:"@timestamp"`
	RequestURIPath string    `json:"request_uri_path"`
	RequestQuery   string    `json:"request_query"`
	Endpoint       string    `json:"endpoint"`
	GeoIP          struct {
		CountryName string `json:"country_name"`
	} `json:"geoip"`
	IP2Location struct {
		CountryLong string `json:"country_long"`
	} `json:"ip2location"`
	Source struct {
		Address string `json:"address"`
	} `json:"source"`
}

// Run loads every staged file, oldest first, and returns cumulative
// counts. Files that load cleanly move to the processed tree; a file with
// a failed insert stays in staging, and its replayed documents dedupe on
// the next run.
func (l *Loader) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	var files []string
	err := filepath.WalkDir(l.StagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, err
	}
	// The date-tree layout makes lexical order chronological.
	sort.Strings(files)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		clean, err := l.processFile(path, &stats)
		if err != nil {
			return stats, err
		}
		if clean {
			if err := l.moveToProcessed(path); err != nil {
				return stats, err
			}
		}
		stats.Files++
	}
	return stats, nil
}

func (l *Loader) processFile(path string, stats *Stats) (clean bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var entries []logEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("loader skipping unreadable file %s: %v", path, err)
		return false, nil
	}

	resource := filepath.Base(filepath.Dir(path))
	for _, e := range entries {
		ev, ok := l.parseLogEntry(resource, e)
		if !ok {
			stats.Skipped++
			continue
		}
		if _, err := dbpkg.InsertEvent(l.DB, ev, l.Granularity); err != nil {
			if errors.Is(err, dbpkg.ErrDuplicateEvent) {
				stats.Duplicates++
				continue
			}
			return false, fmt.Errorf("insert from %s: %w", path, err)
		}
		stats.Inserted++
	}
	return true, nil
}

// parseLogEntry turns one staged document into an event. Returns ok=false
// for documents without a usable path or timestamp.
func (l *Loader) parseLogEntry(resource string, e logEntry) (dbpkg.Event, bool) {
	src := e.Source
	if src.Timestamp.IsZero() {
		return dbpkg.Event{}, false
	}

	path := src.RequestURIPath
	query := src.RequestQuery
	if path == "" && src.Endpoint != "" {
		path, query, _ = strings.Cut(src.Endpoint, "?")
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		if query == "" {
			query = path[i+1:]
		}
		path = path[:i]
	}
	if path == "" {
		return dbpkg.Event{}, false
	}

	country := src.GeoIP.CountryName
	if country == "" {
		country = src.IP2Location.CountryLong
	}
	if country == "" && l.GeoIP != nil && src.Source.Address != "" {
		country = l.GeoIP.CountryName(src.Source.Address)
	}

	return dbpkg.Event{
		Resource:  resource,
		Endpoint:  path,
		Timestamp: src.Timestamp,
		Country:   country,
		Params:    flattenQuery(query),
	}, true
}

// flattenQuery parses a raw query string into single-valued parameters.
// The first non-blank value wins for repeated names; blank values and
// nameless pairs are dropped.
func flattenQuery(raw string) map[string]string {
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return nil
	}

	values, _ := url.ParseQuery(raw)
	if len(values) == 0 {
		return nil
	}
	params := make(map[string]string, len(values))
	for name, vals := range values {
		if name == "" {
			continue
		}
		for _, v := range vals {
			if v != "" {
				params[name] = v
				break
			}
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// moveToProcessed relocates a fully loaded file into the processed tree,
// preserving its date and resource layout.
func (l *Loader) moveToProcessed(path string) error {
	rel, err := filepath.Rel(l.StagingDir, path)
	if err != nil {
		return err
	}
	dest := filepath.Join(l.ProcessedDir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.Rename(path, dest)
}
