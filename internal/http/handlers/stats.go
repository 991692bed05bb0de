package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "github.com/EBISPOT/stats-app/internal/db"
)

func resourceName(ctx *fasthttp.RequestCtx) string {
	name, _ := ctx.UserValue("name").(string)
	return strings.ToUpper(name)
}

// dateWindow reads the optional start_date and end_date arguments shared
// by the per-resource stats handlers. It reports false after writing a
// 400 response when either date is malformed.
func dateWindow(ctx *fasthttp.RequestCtx) (start, end time.Time, ok bool) {
	start, ok = parseDate(ctx, "start_date")
	if !ok {
		errResponse(ctx, fasthttp.StatusBadRequest, "start_date must be yyyy-mm-dd")
		return
	}
	end, ok = parseDate(ctx, "end_date")
	if !ok {
		errResponse(ctx, fasthttp.StatusBadRequest, "end_date must be yyyy-mm-dd")
		return
	}
	return start, end, true
}

// ResourceStats reports one resource's total traffic, distinct endpoint
// count, observed date span and busiest endpoints.
func ResourceStats(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start, end, ok := dateWindow(ctx)
		if !ok {
			return
		}
		s, err := dbpkg.SummarizeResource(db, resourceName(ctx), start, end)
		if err != nil {
			if errors.Is(err, dbpkg.ErrNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "unknown resource")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to summarize resource")
			return
		}
		jsonResponse(ctx, map[string]any{
			"resource":         s.Resource,
			"total_requests":   s.TotalRequests,
			"unique_endpoints": s.UniqueEndpoints,
			"first_seen":       s.FirstSeen,
			"last_seen":        s.LastSeen,
			"top_endpoints":    s.TopEndpoints,
		})
	}
}

// ResourceParameters reports the most used query parameter names for one
// resource, each with its most frequent values.
func ResourceParameters(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start, end, ok := dateWindow(ctx)
		if !ok {
			return
		}
		name := resourceName(ctx)
		stats, err := dbpkg.ParameterUsage(db, name, start, end)
		if err != nil {
			if errors.Is(err, dbpkg.ErrNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "unknown resource")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query parameter usage")
			return
		}
		jsonResponse(ctx, map[string]any{"resource": name, "parameters": stats})
	}
}

// ResourceTimeline buckets one resource's requests over time. The interval
// argument accepts hour, day, week or month and defaults to day.
func ResourceTimeline(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start, end, ok := dateWindow(ctx)
		if !ok {
			return
		}
		name := resourceName(ctx)
		interval := string(ctx.QueryArgs().Peek("interval"))
		if interval == "" {
			interval = "day"
		}

		points, err := dbpkg.RequestTimeline(db, name, interval, start, end)
		if err != nil {
			if errors.Is(err, dbpkg.ErrInvalidFilter) {
				errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
				return
			}
			if errors.Is(err, dbpkg.ErrNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "unknown resource")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to build timeline")
			return
		}
		jsonResponse(ctx, map[string]any{"resource": name, "interval": interval, "timeline": points})
	}
}
