// Package pipeline is the composition root: it drives fetch →
// standardize → upsert per category task, runs categories on a bounded
// worker pool and aggregates per-source counters.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pricetrack/ingest"
	"pricetrack/ingest/fetch"
	"pricetrack/ingest/store"
)

type Options struct {
	// Workers bounds how many categories of one source run concurrently.
	Workers int
	// RunTimeout bounds the total wall time of one source's run, 0 means
	// no bound.
	RunTimeout time.Duration
	// OutputDir receives one CSV batch artifact per category per run;
	// empty disables artifacts.
	OutputDir string
	Fetch     fetch.Options
}

type CategoryResult struct {
	Category string
	Pages    int
	Records  int
	// Skipped counts records that failed standardization and were
	// dropped with a warning.
	Skipped int
	Err     error
}

type SourceReport struct {
	Source     ingest.Source
	Categories []CategoryResult
	Counts     store.Counts
	// Err is set when the source could not run at all (e.g. unknown
	// source); per-category failures live in Categories.
	Err error
}

func (r SourceReport) FailedCategories() int {
	failed := 0
	for _, c := range r.Categories {
		if c.Err != nil {
			failed++
		}
	}
	return failed
}

// Failed reports whether the source's run produced nothing: either it
// could not start at all or every one of its categories failed.
func (r SourceReport) Failed() bool {
	if r.Err != nil {
		return true
	}
	return len(r.Categories) > 0 && r.FailedCategories() == len(r.Categories)
}

type Runner struct {
	store *store.Store
	opts  Options
}

func New(store *store.Store, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Runner{store: store, opts: opts}
}

// Run ingests every named category of every named source. Sources run
// sequentially, categories within a source run on the worker pool. A
// failing category never aborts its siblings.
func (r *Runner) Run(ctx context.Context, tasks map[ingest.Source][]string) []SourceReport {
	stamp := time.Now()

	sources := make([]ingest.Source, 0, len(tasks))
	for s := range tasks {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	var reports []SourceReport
	for _, source := range sources {
		adapter, err := ingest.Lookup(source)
		if err != nil {
			slog.Error("skipping source", "source", source, "err", err)
			reports = append(reports, SourceReport{Source: source, Err: err})
			continue
		}
		reports = append(reports, r.runSource(ctx, adapter, tasks[source], stamp))
	}
	return reports
}

func (r *Runner) runSource(ctx context.Context, adapter ingest.Adapter, categories []string, stamp time.Time) SourceReport {
	source := adapter.Source()
	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}

	report := SourceReport{Source: source}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.opts.Workers)

	for _, category := range categories {
		wg.Add(1)
		sem <- struct{}{}
		go func(category string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, counts := r.runCategory(ctx, adapter, category, stamp)

			mu.Lock()
			defer mu.Unlock()
			report.Categories = append(report.Categories, result)
			report.Counts.Categories += counts.Categories
			report.Counts.Products += counts.Products
			report.Counts.Associations += counts.Associations
			report.Counts.Prices += counts.Prices
			report.Counts.Dropped += counts.Dropped
		}(category)
	}
	wg.Wait()

	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].Category < report.Categories[j].Category
	})

	slog.Info("source run finished",
		"source", source,
		"categories", len(report.Categories),
		"failed", report.FailedCategories(),
		"products", report.Counts.Products,
		"prices", report.Counts.Prices)
	return report
}

func (r *Runner) runCategory(ctx context.Context, adapter ingest.Adapter, category string, stamp time.Time) (CategoryResult, store.Counts) {
	source := adapter.Source()
	task := ingest.CategoryTask{Source: source, Category: category}
	result := CategoryResult{Category: category}

	var batch []ingest.StagingRecord
	pager := fetch.New(adapter, r.opts.Fetch).Fetch(task)
	for pager.Next(ctx) {
		page := pager.Page()
		result.Pages++
		observePage(ctx, task)

		for _, raw := range page.Records {
			rec, err := adapter.Standardize(raw)
			if err != nil {
				result.Skipped++
				observeSkip(ctx, task)
				slog.Warn("skipping record",
					"source", source, "category", category, "err", err)
				continue
			}
			batch = append(batch, rec)
		}
		slog.Debug("page processed",
			"source", source, "category", category,
			"page", result.Pages, "records", len(batch))
	}
	if err := pager.Err(); err != nil {
		// nothing is written for a category whose fetch failed; the
		// next run starts it over from the first page
		result.Err = err
		observeFailure(ctx, task)
		slog.Error("category failed", "source", source, "category", category, "err", err)
		return result, store.Counts{}
	}
	result.Records = len(batch)
	observeRecords(ctx, task, len(batch))

	if r.opts.OutputDir != "" {
		path, err := writeArtifact(r.opts.OutputDir, task, stamp, batch)
		if err != nil {
			slog.Warn("failed to write batch artifact",
				"source", source, "category", category, "err", err)
		} else {
			slog.Debug("batch artifact written", "path", path)
		}
	}

	counts, err := r.store.Apply(ctx, batch)
	if err != nil {
		result.Err = err
		observeFailure(ctx, task)
		slog.Error("category upsert failed", "source", source, "category", category, "err", err)
		return result, store.Counts{}
	}
	return result, counts
}
