package handlers

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "github.com/EBISPOT/stats-app/internal/db"
)

// Resources lists all known resource names in alphabetical order. The UI
// prepends its own ALL sentinel, so the list holds real dimension rows
// only.
func Resources(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		names, err := dbpkg.ListResources(db)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to list resources")
			return
		}
		jsonResponse(ctx, map[string]any{"resources": names})
	}
}

// Countries lists all known country names in alphabetical order.
func Countries(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		names, err := dbpkg.ListCountries(db)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to list countries")
			return
		}
		jsonResponse(ctx, map[string]any{"countries": names})
	}
}
