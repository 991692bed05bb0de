package pipeline

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	fetchPageSize  = 5000
	flushThreshold = 50000
	ftpPathPrefix  = "/pub/databases/"
)

// Fetcher pulls request documents for configured resources from the
// central log cluster and stages them as JSON batches for the loader.
type Fetcher struct {
	liveURL    string
	ftpURL     string
	user       string
	password   string
	stagingDir string
	client     *fasthttp.Client
}

// NewFetcher builds a fetcher from the ES_HOST, FTP_ES_HOST, ES_USER and
// ES_PASSWORD environment variables. FTP_ES_HOST falls back to ES_HOST.
// The cluster sits behind self-signed certificates, so verification is
// off.
func NewFetcher(stagingDir string) (*Fetcher, error) {
	esHost := os.Getenv("ES_HOST")
	if esHost == "" {
		return nil, errors.New("ES_HOST is required")
	}
	ftpHost := os.Getenv("FTP_ES_HOST")
	if ftpHost == "" {
		ftpHost = esHost
	}

	return &Fetcher{
		liveURL:    strings.TrimSuffix(esHost, "/") + "/live*/_search",
		ftpURL:     strings.TrimSuffix(ftpHost, "/") + "/ftplogs*/_search",
		user:       os.Getenv("ES_USER"),
		password:   os.Getenv("ES_PASSWORD"),
		stagingDir: stagingDir,
		client: &fasthttp.Client{
			TLSConfig:    &tls.Config{InsecureSkipVerify: true},
			ReadTimeout:  2 * time.Minute,
			WriteTimeout: 30 * time.Second,
		},
	}, nil
}

type esHit struct {
	ID     string         `json:"_id"`
	Sort   []any          `json:"sort"`
	Source map[string]any `json:"_source"`
}

type esResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

// buildSearchQuery assembles one search request body. FTP download
// patterns match on file name, web patterns on destination host plus URL
// path, and a bare /* takes everything for the host. Pages walk backwards
// from the newest document via search_after over the (timestamp, id)
// sort.
func buildSearchQuery(res ResourceConfig, pattern string, daysBack int, after []any) map[string]any {
	var must []any
	switch {
	case strings.HasPrefix(pattern, ftpPathPrefix):
		must = []any{
			map[string]any{"match_phrase_prefix": map[string]any{"file_name": pattern}},
		}
	case pattern == "/*":
		must = []any{
			map[string]any{"match": map[string]any{"destination.address": res.DestinationHost}},
		}
	default:
		must = []any{
			map[string]any{"match": map[string]any{"destination.address": res.DestinationHost}},
			map[string]any{"match": map[string]any{"url.path": pattern}},
		}
	}

	body := map[string]any{
		"size": fetchPageSize,
		"query": map[string]any{
			"bool": map[string]any{
				"must": must,
				"filter": []any{
					map[string]any{"range": map[string]any{"@timestamp": map[string]any{
						"gte": fmt.Sprintf("now-%dd/d", daysBack),
						"lt":  "now/d",
					}}},
				},
			},
		},
		"sort": []any{
			map[string]any{"@timestamp": "desc"},
			map[string]any{"_id": "desc"},
		},
	}
	if len(after) > 0 {
		body["search_after"] = after
	}
	return body
}

// FetchResource pulls all documents for one resource over the last
// daysBack days and stages them. Returns the number of documents staged.
func (f *Fetcher) FetchResource(ctx context.Context, res ResourceConfig, daysBack int) (int, error) {
	day := time.Now().UTC()
	total := 0

	for _, pattern := range res.Endpoints {
		url := f.liveURL
		if strings.HasPrefix(pattern, ftpPathPrefix) {
			url = f.ftpURL
		}

		var after []any
		batch := make([]esHit, 0, fetchPageSize)
		for {
			if err := ctx.Err(); err != nil {
				return total, err
			}

			out, err := f.search(url, buildSearchQuery(res, pattern, daysBack, after))
			if err != nil {
				return total, fmt.Errorf("resource %s pattern %s: %w", res.Name, pattern, err)
			}
			hits := out.Hits.Hits
			if len(hits) == 0 {
				break
			}

			batch = append(batch, hits...)
			total += len(hits)
			if len(batch) >= flushThreshold {
				if err := f.saveBatch(res.Name, day, total, batch); err != nil {
					return total, err
				}
				batch = batch[:0]
			}

			last := hits[len(hits)-1]
			if len(last.Sort) < 2 {
				break
			}
			after = last.Sort
		}

		if len(batch) > 0 {
			if err := f.saveBatch(res.Name, day, total, batch); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (f *Fetcher) search(url string, body map[string]any) (*esResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	// fasthttp does not send userinfo from the URI, so basic auth is set
	// explicitly.
	if f.user != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(f.user + ":" + f.password))
		req.Header.Set("Authorization", "Basic "+cred)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req.SetBody(payload)

	if err := f.client.Do(req, resp); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode())
	}

	var out esResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// saveBatch writes hits under <staging>/YYYY/MM/DD/<RESOURCE>/ as
// <resource>_intermediate_<total>.json, where total is the running count
// at flush time so successive batches never collide.
func (f *Fetcher) saveBatch(resource string, day time.Time, total int, hits []esHit) error {
	dir := filepath.Join(f.stagingDir,
		day.Format("2006"), day.Format("01"), day.Format("02"), strings.ToUpper(resource))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(hits)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s_intermediate_%d.json", strings.ToLower(resource), total)
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}
