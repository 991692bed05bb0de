package handlers

import (
	"sort"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "github.com/EBISPOT/stats-app/internal/db"
)

// PartitionList reports the attached partitions of the requests table with
// their bounds, oldest first. Mixed widths are normal after a granularity
// change, so operators read this to see what actually exists.
func PartitionList(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		parts, err := dbpkg.ListPartitions(db)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to list partitions")
			return
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i].Start.Before(parts[j].Start) })

		rows := make([]map[string]any, 0, len(parts))
		for _, p := range parts {
			rows = append(rows, map[string]any{
				"name": p.Name,
				"from": p.Start.Format(dateLayout),
				"to":   p.End.Format(dateLayout),
			})
		}
		jsonResponse(ctx, map[string]any{"partitions": rows})
	}
}
