package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestParseDate(t *testing.T) {
	t.Run("absent argument is the zero time", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/api/stats/search")
		d, ok := parseDate(ctx, "start_date")
		assert.True(t, ok)
		assert.True(t, d.IsZero())
	})

	t.Run("valid date parses as utc", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/api/stats/search?start_date=2024-06-15")
		d, ok := parseDate(ctx, "start_date")
		assert.True(t, ok)
		assert.Equal(t, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC), d)
	})

	t.Run("malformed date is rejected", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/api/stats/search?start_date=15-06-2024")
		_, ok := parseDate(ctx, "start_date")
		assert.False(t, ok)
	})
}

// The rejection paths below never reach the store, so a nil handle is safe.

func TestStatsSearchRejections(t *testing.T) {
	handler := StatsSearch(nil)

	t.Run("malformed start date", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/api/stats/search?start_date=junk")
		handler(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, "start_date must be yyyy-mm-dd", string(ctx.Response.Body()))
	})

	t.Run("malformed parameters", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/api/stats/search?parameters=notjson")
		handler(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, "parameters must be a JSON object of strings", string(ctx.Response.Body()))
	})

	t.Run("reversed date range", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/api/stats/search?start_date=2024-06-30&end_date=2024-06-01")
		handler(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("contradictory endpoint and ontology", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI("/api/stats/search?endpoint=search&ontology=efo")
		handler(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})
}

func TestResourceStatsDateRejections(t *testing.T) {
	handlers := map[string]fasthttp.RequestHandler{
		"stats":      ResourceStats(nil),
		"parameters": ResourceParameters(nil),
		"timeline":   ResourceTimeline(nil),
	}
	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			ctx := &fasthttp.RequestCtx{}
			ctx.Request.SetRequestURI("/api/resources/ols/" + name + "?end_date=junk")
			ctx.SetUserValue("name", "ols")
			handler(ctx)
			assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
			assert.Equal(t, "end_date must be yyyy-mm-dd", string(ctx.Response.Body()))
		})
	}
}

func TestIngestHandlerRejections(t *testing.T) {
	handler := IngestHandler(nil, "month")

	post := func(body string) *fasthttp.RequestCtx {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.SetMethod(fasthttp.MethodPost)
		ctx.Request.SetRequestURI("/v1/events")
		ctx.Request.SetBodyString(body)
		return ctx
	}

	t.Run("invalid json", func(t *testing.T) {
		ctx := post("{")
		handler(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, "invalid JSON body", string(ctx.Response.Body()))
	})

	t.Run("empty batch", func(t *testing.T) {
		ctx := post(`{"events":[]}`)
		handler(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, "no events provided", string(ctx.Response.Body()))
	})

	t.Run("batch with only invalid events", func(t *testing.T) {
		ctx := post(`{"events":[{"resource":"OLS"},{"endpoint":"/x"}]}`)
		handler(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, "no valid events after validation", string(ctx.Response.Body()))
	})
}
