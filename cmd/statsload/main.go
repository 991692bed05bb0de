// statsload drives the data pipeline: fetch pulls request documents from
// the central log cluster into a staging tree, load inserts staged
// documents into the statistics database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/EBISPOT/stats-app/internal/config"
	dbpkg "github.com/EBISPOT/stats-app/internal/db"
	"github.com/EBISPOT/stats-app/internal/geoip"
	"github.com/EBISPOT/stats-app/internal/pipeline"
)

var (
	stagingDir   string
	processedDir string
	configPath   string
	daysBack     int
	geoipPath    string
)

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down", sig)
		cancel()
	}()
	return ctx, cancel
}

var rootCmd = &cobra.Command{
	Use:   "statsload",
	Short: "Fetch and load API usage events",
	Long: `statsload drives the usage statistics pipeline.

fetch pulls request documents for the configured resources from the log
cluster into a staging tree of JSON batches. load walks that tree and
inserts every document into the statistics database, moving finished
files aside so interrupted runs resume where they stopped.

Cluster access via: ES_HOST, FTP_ES_HOST, ES_USER, ES_PASSWORD.
Database connection via: APP_DATABASE_URL.`,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Stage request documents from the log cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := pipeline.LoadConfig(configPath)
		if err != nil {
			return err
		}
		fetcher, err := pipeline.NewFetcher(stagingDir)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		for _, res := range cfg.Resources {
			n, err := fetcher.FetchResource(ctx, res, daysBack)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", res.Name, err)
			}
			log.Printf("staged %d documents for %s", n, res.Name)
		}
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load staged documents into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCfg := config.Load()
		gdb, err := dbpkg.Connect(appCfg)
		if err != nil {
			return err
		}
		granularity, err := dbpkg.ParseGranularity(appCfg.PartitionGranularity)
		if err != nil {
			return err
		}

		loader := &pipeline.Loader{
			DB:           gdb,
			StagingDir:   stagingDir,
			ProcessedDir: processedDir,
			Granularity:  granularity,
		}
		if geoipPath != "" {
			resolver, err := geoip.Open(geoipPath)
			if err != nil {
				return fmt.Errorf("open geoip database: %w", err)
			}
			defer resolver.Close()
			loader.GeoIP = resolver
		}

		ctx, cancel := signalContext()
		defer cancel()

		stats, err := loader.Run(ctx)
		log.Printf("loaded %d events from %d files (%d duplicates, %d skipped)",
			stats.Inserted, stats.Files, stats.Duplicates, stats.Skipped)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&stagingDir, "staging", "request-logs", "staging directory for fetched documents")

	fetchCmd.Flags().StringVar(&configPath, "config", "resources.yaml", "pipeline configuration file")
	fetchCmd.Flags().IntVar(&daysBack, "days", 1, "how many days back to fetch")

	loadCmd.Flags().StringVar(&processedDir, "processed", "processed-logs", "directory finished files move to")
	loadCmd.Flags().StringVar(&geoipPath, "geoip", "", "GeoLite2 country database for IP fallback")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(loadCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
