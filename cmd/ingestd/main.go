package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"pricetrack/ingest"
	"pricetrack/ingest/fetch"
	"pricetrack/ingest/pipeline"
	"pricetrack/ingest/store"
	"pricetrack/lib/configutil"
	"pricetrack/lib/scrapers/auchan"
	"pricetrack/lib/scrapers/continente"
	"pricetrack/lib/scrapers/pingodoce"
	"pricetrack/lib/serviceutil"
	"pricetrack/lib/sqliteutil"
	"pricetrack/lib/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type fetchConfig struct {
	PageSize             int `json:"page_size"`
	MaxPages             int `json:"max_pages"`
	Retries              int `json:"retries"`
	RetryDelaySeconds    int `json:"retry_delay_seconds"`
	PolitenessMinSeconds int `json:"politeness_min_seconds"`
	PolitenessMaxSeconds int `json:"politeness_max_seconds"`
}

type config struct {
	Database          sqliteutil.Config `json:"database"`
	OutputDir         string            `json:"output_dir"`
	Workers           int               `json:"workers"`
	RunTimeoutMinutes int               `json:"run_timeout_minutes"`
	Fetch             fetchConfig       `json:"fetch"`
	// Sources maps a source name to the category ids to ingest from it.
	Sources map[string][]string `json:"sources"`
}

var configPath string
var verbose bool
var onlySources []string

var rootCmd = &cobra.Command{
	Use:   "ingestd",
	Short: "Retail price tracking ingestion pipeline.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs one ingestion pass over the configured retail sources.",
	Run: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
		ctx := serviceutil.SignalContext()

		err := telemetry.SetupFromEnv(ctx, "ingestd")
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			defer cancel()
			telemetry.Shutdown(shutdownCtx)
		}()
		telemetry.InstrumentPerfStats(ctx)

		cfg, err := configutil.ReadConfig[config](configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		db, err := cfg.Database.OpenDB(store.Schema)
		if err != nil {
			serviceutil.Fatal("failed to open database", err)
		}
		defer db.Close()

		ingest.Register(continente.NewClient(continente.Options{}))
		ingest.Register(auchan.NewClient(auchan.Options{}))
		ingest.Register(pingodoce.NewClient(pingodoce.Options{}))

		tasks := map[ingest.Source][]string{}
		for name, categories := range cfg.Sources {
			if len(onlySources) > 0 && !slices.Contains(onlySources, name) {
				continue
			}
			tasks[ingest.Source(name)] = categories
		}
		if len(tasks) == 0 {
			serviceutil.Fatal("config error", fmt.Errorf("no sources to run"))
		}

		runner := pipeline.New(store.New(db), pipeline.Options{
			Workers:    cfg.Workers,
			RunTimeout: time.Duration(cfg.RunTimeoutMinutes) * time.Minute,
			OutputDir:  cfg.OutputDir,
			Fetch: fetch.Options{
				PageSize: cfg.Fetch.PageSize,
				MaxPages: cfg.Fetch.MaxPages,
				Retry: fetch.RetryPolicy{
					MaxAttempts: cfg.Fetch.Retries,
					Delay:       time.Duration(cfg.Fetch.RetryDelaySeconds) * time.Second,
				},
				PolitenessMin: time.Duration(cfg.Fetch.PolitenessMinSeconds) * time.Second,
				PolitenessMax: time.Duration(cfg.Fetch.PolitenessMaxSeconds) * time.Second,
			},
		})

		reports := runner.Run(ctx, tasks)
		printSummary(reports)

		failed := 0
		for _, report := range reports {
			if report.Failed() {
				failed++
			}
		}
		if failed == len(reports) {
			os.Exit(1)
		}
	},
}

func printSummary(reports []pipeline.SourceReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{
		"Source", "Categories", "Failed", "Products", "Prices", "Dropped",
	})
	for _, report := range reports {
		if report.Err != nil {
			t.AppendRow(table.Row{report.Source, "-", "-", "-", "-", report.Err})
			continue
		}
		t.AppendRow(table.Row{
			report.Source,
			len(report.Categories),
			report.FailedCategories(),
			report.Counts.Products,
			report.Counts.Prices,
			report.Counts.Dropped,
		})
	}
	t.Render()
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "path to the ingestion config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	runCmd.Flags().StringSliceVarP(&onlySources, "source", "s", nil, "restrict the run to the named sources")
	rootCmd.AddCommand(runCmd)

	err := rootCmd.Execute()
	if err != nil {
		serviceutil.Fatal("failed to execute command", err)
	}
}
