package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "github.com/EBISPOT/stats-app/internal/db"
)

// StatsSearch counts events matching the submitted filter and returns
// {"resource": ..., "matching_requests": N}. Dimension values that do not
// exist count zero; a filter with no consistent meaning is a 400. Wide
// date ranges can take a while, so callers are expected to use generous
// client timeouts.
func StatsSearch(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		args := ctx.QueryArgs()

		// resource_name is a legacy alias kept for older clients.
		resource := string(args.Peek("resource"))
		if resource == "" {
			resource = string(args.Peek("resource_name"))
		}
		if resource == "" {
			resource = dbpkg.FilterAll
		}
		resource = strings.ToUpper(resource)

		country := string(args.Peek("country"))
		if country == "" {
			country = dbpkg.FilterAll
		}

		start, ok := parseDate(ctx, "start_date")
		if !ok {
			errResponse(ctx, fasthttp.StatusBadRequest, "start_date must be yyyy-mm-dd")
			return
		}
		end, ok := parseDate(ctx, "end_date")
		if !ok {
			errResponse(ctx, fasthttp.StatusBadRequest, "end_date must be yyyy-mm-dd")
			return
		}

		var params map[string]string
		if raw := args.Peek("parameters"); len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "parameters must be a JSON object of strings")
				return
			}
		}

		ontology := string(args.Peek("ontology"))
		if ontology == "" {
			ontology = string(args.Peek("ontology_id"))
		}

		f := dbpkg.Filter{
			Resource: resource,
			Country:  country,
			Start:    start,
			End:      end,
			Endpoint: string(args.Peek("endpoint")),
			Ontology: ontology,
			Params:   params,
		}

		count, err := dbpkg.CountRequests(db, f)
		if err != nil {
			if errors.Is(err, dbpkg.ErrInvalidFilter) {
				errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to count requests")
			return
		}

		jsonResponse(ctx, map[string]any{
			"resource":          resource,
			"matching_requests": count,
		})
	}
}
