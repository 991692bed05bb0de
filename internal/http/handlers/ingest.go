package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "github.com/EBISPOT/stats-app/internal/db"
)

// IngestEvent is one usage event in an ingest batch.
type IngestEvent struct {
	Resource   string            `json:"resource"`
	Endpoint   string            `json:"endpoint"`
	Timestamp  time.Time         `json:"timestamp"`
	Country    string            `json:"country,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

type ingestRequest struct {
	Events []IngestEvent `json:"events"`
}

// IngestHandler accepts a batch of usage events. Every event commits in
// its own transaction, so a failure mid-batch keeps what already landed;
// delivery is at-least-once and replays surface as duplicates, which are
// absorbed silently and reported in the response counts. Events missing a
// resource, endpoint or timestamp are skipped.
func IngestHandler(db *gorm.DB, g dbpkg.Granularity) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload ingestRequest
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid JSON body")
			return
		}
		if len(payload.Events) == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no events provided")
			return
		}

		inserted, duplicates, valid := 0, 0, 0
		for _, ev := range payload.Events {
			if ev.Resource == "" || ev.Endpoint == "" || ev.Timestamp.IsZero() {
				continue
			}
			valid++

			_, err := dbpkg.InsertEvent(db, dbpkg.Event{
				Resource:  strings.ToUpper(ev.Resource),
				Endpoint:  ev.Endpoint,
				Timestamp: ev.Timestamp,
				Country:   ev.Country,
				Params:    ev.Parameters,
			}, g)
			if err != nil {
				if errors.Is(err, dbpkg.ErrDuplicateEvent) {
					duplicates++
					continue
				}
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("failed to persist events")
				return
			}
			inserted++
		}

		if valid == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no valid events after validation")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusAccepted)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"accepted","inserted":` + strconv.Itoa(inserted) + `,"duplicates":` + strconv.Itoa(duplicates) + `}`)
	}
}
