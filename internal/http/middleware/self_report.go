package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/EBISPOT/stats-app/internal/config"
)

// selfResource is the resource name the service files its own traffic under.
const selfResource = "STATS-APP"

// SelfReporting feeds the service's own API traffic back through the
// ingest endpoint, so this deployment shows up as a resource like any
// other. If APP_SELF_REPORT is not enabled, this middleware does nothing.
func SelfReporting(cfg *config.Config, ingestURL string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if !cfg.SelfReport {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return next
		}
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			next(ctx)

			// Ingest and probe traffic stays out, or every report would
			// trigger the next one.
			path := string(ctx.Path())
			if path == "/v1/events" || path == "/metrics" || path == "/healthz" {
				return
			}

			ts := time.Now().UTC()
			go func() {
				event := map[string]any{
					"resource":  selfResource,
					"endpoint":  path,
					"timestamp": ts.Format(time.RFC3339Nano),
				}
				payload := map[string]any{
					"events": []any{event},
				}
				body, _ := json.Marshal(payload)
				req, err := http.NewRequest(http.MethodPost, ingestURL, bytes.NewReader(body))
				if err != nil {
					return
				}
				req.Header.Set("Content-Type", "application/json")
				if cfg.IngestToken != "" {
					req.Header.Set("Authorization", "Bearer "+cfg.IngestToken)
				}
				client := &http.Client{Timeout: 2 * time.Second}
				_, _ = client.Do(req)
			}()
		}
	}
}
