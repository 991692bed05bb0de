package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFetcher(t *testing.T) {
	t.Run("requires a host", func(t *testing.T) {
		t.Setenv("ES_HOST", "")
		_, err := NewFetcher(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("ftp host falls back to the live host", func(t *testing.T) {
		t.Setenv("ES_HOST", "https://es.example:9243/")
		t.Setenv("FTP_ES_HOST", "")

		f, err := NewFetcher(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "https://es.example:9243/live*/_search", f.liveURL)
		assert.Equal(t, "https://es.example:9243/ftplogs*/_search", f.ftpURL)
	})

	t.Run("separate ftp host", func(t *testing.T) {
		t.Setenv("ES_HOST", "https://es.example:9243")
		t.Setenv("FTP_ES_HOST", "https://ftp-es.example:9243")

		f, err := NewFetcher(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "https://ftp-es.example:9243/ftplogs*/_search", f.ftpURL)
	})
}

func TestBuildSearchQuery(t *testing.T) {
	res := ResourceConfig{
		Name:            "ols",
		DestinationHost: "www.ebi.ac.uk",
		Endpoints:       []string{"/ols"},
	}

	mustOf := func(t *testing.T, q map[string]any) []any {
		t.Helper()
		b, ok := q["query"].(map[string]any)["bool"].(map[string]any)
		require.True(t, ok)
		return b["must"].([]any)
	}

	t.Run("web pattern matches host and path", func(t *testing.T) {
		q := buildSearchQuery(res, "/ols", 3, nil)
		assert.Equal(t, fetchPageSize, q["size"])

		must := mustOf(t, q)
		require.Len(t, must, 2)
		host := must[0].(map[string]any)["match"].(map[string]any)
		assert.Equal(t, "www.ebi.ac.uk", host["destination.address"])
		path := must[1].(map[string]any)["match"].(map[string]any)
		assert.Equal(t, "/ols", path["url.path"])

		_, paged := q["search_after"]
		assert.False(t, paged)
	})

	t.Run("host wildcard drops the path clause", func(t *testing.T) {
		must := mustOf(t, buildSearchQuery(res, "/*", 1, nil))
		require.Len(t, must, 1)
		host := must[0].(map[string]any)["match"].(map[string]any)
		assert.Equal(t, "www.ebi.ac.uk", host["destination.address"])
	})

	t.Run("ftp pattern matches file names", func(t *testing.T) {
		must := mustOf(t, buildSearchQuery(res, "/pub/databases/ols", 1, nil))
		require.Len(t, must, 1)
		prefix := must[0].(map[string]any)["match_phrase_prefix"].(map[string]any)
		assert.Equal(t, "/pub/databases/ols", prefix["file_name"])
	})

	t.Run("day window", func(t *testing.T) {
		q := buildSearchQuery(res, "/ols", 3, nil)
		rng := q["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)[0].(map[string]any)
		window := rng["range"].(map[string]any)["@timestamp"].(map[string]any)
		assert.Equal(t, "now-3d/d", window["gte"])
		assert.Equal(t, "now/d", window["lt"])
	})

	t.Run("pagination carries the sort cursor", func(t *testing.T) {
		after := []any{1718445600000.0, "doc-42"}
		q := buildSearchQuery(res, "/ols", 1, after)
		assert.Equal(t, after, q["search_after"])

		sorts := q["sort"].([]any)
		require.Len(t, sorts, 2)
		assert.Equal(t, map[string]any{"@timestamp": "desc"}, sorts[0])
		assert.Equal(t, map[string]any{"_id": "desc"}, sorts[1])
	})
}

func TestSaveBatch(t *testing.T) {
	f := &Fetcher{stagingDir: t.TempDir()}
	day := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	hits := []esHit{
		{ID: "a1", Sort: []any{1718445600000.0, "a1"}, Source: map[string]any{"endpoint": "/x"}},
	}

	require.NoError(t, f.saveBatch("ols", day, 5000, hits))

	path := filepath.Join(f.stagingDir, "2024", "06", "15", "OLS", "ols_intermediate_5000.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []esHit
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "a1", out[0].ID)
	assert.Equal(t, "/x", out[0].Source["endpoint"])
}
