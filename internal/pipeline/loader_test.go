package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogEntry(t *testing.T) {
	l := &Loader{}
	ts := time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)

	t.Run("split path and query fields", func(t *testing.T) {
		var src logSource
		src.Timestamp = ts
		src.RequestURIPath = "/api/search"
		src.RequestQuery = "q=diabetes&size=10"
		src.GeoIP.CountryName = "United Kingdom"

		ev, ok := l.parseLogEntry("OLS", logEntry{Source: src})
		require.True(t, ok)
		assert.Equal(t, "OLS", ev.Resource)
		assert.Equal(t, "/api/search", ev.Endpoint)
		assert.Equal(t, ts, ev.Timestamp)
		assert.Equal(t, "United Kingdom", ev.Country)
		assert.Equal(t, map[string]string{"q": "diabetes", "size": "10"}, ev.Params)
	})

	t.Run("legacy endpoint with attached query", func(t *testing.T) {
		var src logSource
		src.Timestamp = ts
		src.Endpoint = "/api/terms?ontology=efo&format="

		ev, ok := l.parseLogEntry("OLS", logEntry{Source: src})
		require.True(t, ok)
		assert.Equal(t, "/api/terms", ev.Endpoint)
		assert.Equal(t, map[string]string{"ontology": "efo"}, ev.Params)
	})

	t.Run("query residue in the path field", func(t *testing.T) {
		var src logSource
		src.Timestamp = ts
		src.RequestURIPath = "/api/search?q=x"

		ev, ok := l.parseLogEntry("OLS", logEntry{Source: src})
		require.True(t, ok)
		assert.Equal(t, "/api/search", ev.Endpoint)
		assert.Equal(t, map[string]string{"q": "x"}, ev.Params)
	})

	t.Run("country falls back to ip2location", func(t *testing.T) {
		var src logSource
		src.Timestamp = ts
		src.RequestURIPath = "/api/search"
		src.IP2Location.CountryLong = "Germany"

		ev, ok := l.parseLogEntry("OLS", logEntry{Source: src})
		require.True(t, ok)
		assert.Equal(t, "Germany", ev.Country)
	})

	t.Run("no country stays empty", func(t *testing.T) {
		var src logSource
		src.Timestamp = ts
		src.RequestURIPath = "/api/search"
		src.Source.Address = "203.0.113.9"

		ev, ok := l.parseLogEntry("OLS", logEntry{Source: src})
		require.True(t, ok)
		assert.Empty(t, ev.Country)
	})

	t.Run("missing timestamp is skipped", func(t *testing.T) {
		var src logSource
		src.RequestURIPath = "/api/search"

		_, ok := l.parseLogEntry("OLS", logEntry{Source: src})
		assert.False(t, ok)
	})

	t.Run("missing path is skipped", func(t *testing.T) {
		var src logSource
		src.Timestamp = ts

		_, ok := l.parseLogEntry("OLS", logEntry{Source: src})
		assert.False(t, ok)
	})
}

func TestFlattenQuery(t *testing.T) {
	t.Run("first value wins", func(t *testing.T) {
		assert.Equal(t, map[string]string{"a": "1"}, flattenQuery("a=1&a=2"))
	})
	t.Run("blank values are dropped", func(t *testing.T) {
		assert.Equal(t, map[string]string{"b": "2"}, flattenQuery("a=&b=2"))
	})
	t.Run("blank then value", func(t *testing.T) {
		assert.Equal(t, map[string]string{"a": "2"}, flattenQuery("a=&a=2"))
	})
	t.Run("leading question mark", func(t *testing.T) {
		assert.Equal(t, map[string]string{"q": "x"}, flattenQuery("?q=x"))
	})
	t.Run("nameless pairs are dropped", func(t *testing.T) {
		assert.Nil(t, flattenQuery("=x"))
	})
	t.Run("undecodable pairs are dropped", func(t *testing.T) {
		assert.Equal(t, map[string]string{"b": "2"}, flattenQuery("a=%zz&b=2"))
	})
	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, flattenQuery(""))
		assert.Nil(t, flattenQuery("?"))
	})
}

func TestLoaderRun(t *testing.T) {
	t.Run("missing staging dir is not an error", func(t *testing.T) {
		l := &Loader{StagingDir: filepath.Join(t.TempDir(), "absent")}
		stats, err := l.Run(context.Background())
		require.NoError(t, err)
		assert.Zero(t, stats.Files)
	})

	t.Run("skipped documents still move the file", func(t *testing.T) {
		staging := filepath.Join(t.TempDir(), "staging")
		processed := filepath.Join(t.TempDir(), "processed")
		rel := filepath.Join("2024", "06", "15", "OLS", "ols_intermediate_2.json")
		writeStaged(t, staging, rel, `[{"_source":{"endpoint":"/x"}},{"_source":{}}]`)

		l := &Loader{StagingDir: staging, ProcessedDir: processed}
		stats, err := l.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Files)
		assert.Equal(t, 2, stats.Skipped)
		assert.Zero(t, stats.Inserted)

		assert.NoFileExists(t, filepath.Join(staging, rel))
		assert.FileExists(t, filepath.Join(processed, rel))
	})

	t.Run("unreadable file stays in staging", func(t *testing.T) {
		staging := filepath.Join(t.TempDir(), "staging")
		processed := filepath.Join(t.TempDir(), "processed")
		rel := filepath.Join("2024", "06", "15", "OLS", "ols_intermediate_1.json")
		writeStaged(t, staging, rel, "not json")

		l := &Loader{StagingDir: staging, ProcessedDir: processed}
		stats, err := l.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Files)

		assert.FileExists(t, filepath.Join(staging, rel))
		assert.NoFileExists(t, filepath.Join(processed, rel))
	})

	t.Run("cancelled context stops the run", func(t *testing.T) {
		staging := filepath.Join(t.TempDir(), "staging")
		writeStaged(t, staging, filepath.Join("2024", "06", "15", "OLS", "ols_intermediate_1.json"), `[]`)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		l := &Loader{StagingDir: staging}
		_, err := l.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func writeStaged(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
