package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"github.com/EBISPOT/stats-app/internal/config"
	"github.com/EBISPOT/stats-app/internal/db"
	"github.com/EBISPOT/stats-app/internal/http/handlers"
	appmw "github.com/EBISPOT/stats-app/internal/http/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	granularity, err := db.ParseGranularity(cfg.PartitionGranularity)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	db.InitMetrics()
	db.StartPartitionWorker(sqlDB, granularity)
	db.StartRetentionWorker(sqlDB, cfg.RetentionDays)

	r := router.New()

	ingestURL := "http://localhost" + cfg.ListenAddr + "/v1/events"
	if cfg.ListenAddr != "" && cfg.ListenAddr[0] != ':' {
		ingestURL = "http://" + cfg.ListenAddr + "/v1/events"
	}

	// Global middleware chain: request logger, then CORS, then self reporting, then router
	handler := handlers.RequestLogger(appmw.CORS(appmw.SelfReporting(cfg, ingestURL)(r.Handler)))

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.GET("/api/resources", handlers.Resources(sqlDB))
	r.GET("/api/countries", handlers.Countries(sqlDB))
	r.GET("/api/stats/search", handlers.StatsSearch(sqlDB))
	r.GET("/api/resources/{name}/stats", handlers.ResourceStats(sqlDB))
	r.GET("/api/resources/{name}/parameters", handlers.ResourceParameters(sqlDB))
	r.GET("/api/resources/{name}/timeline", handlers.ResourceTimeline(sqlDB))

	r.POST("/v1/events", appmw.TokenAuth(cfg.IngestToken)(handlers.IngestHandler(sqlDB, granularity)))
	r.GET("/v1/admin/partitions", appmw.TokenAuth(cfg.IngestToken)(handlers.PartitionList(sqlDB)))

	r.GET("/metrics", handlers.MetricsHandler())

	log.Printf("stats-app listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
