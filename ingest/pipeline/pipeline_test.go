package pipeline

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pricetrack/ingest"
	"pricetrack/ingest/fetch"
	"pricetrack/ingest/store"
	"pricetrack/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// testAdapter serves canned records per category and can be told to fail a
// category's fetches outright.
type testAdapter struct {
	source  ingest.Source
	records map[string][]ingest.RawRecord
	broken  map[string]bool
}

func (a *testAdapter) Source() ingest.Source { return a.source }

func (a *testAdapter) FetchPage(ctx context.Context, task ingest.CategoryTask, start, size int) (ingest.Page, error) {
	if a.broken[task.Category] {
		return ingest.Page{}, fmt.Errorf("connection reset")
	}
	records := a.records[task.Category]
	if start >= len(records) {
		return ingest.Page{Total: len(records)}, nil
	}
	end := start + size
	if end > len(records) {
		end = len(records)
	}
	return ingest.Page{Records: records[start:end], Total: len(records)}, nil
}

func (a *testAdapter) Standardize(raw ingest.RawRecord) (ingest.StagingRecord, error) {
	ts, err := time.Parse("2006-01-02", raw["date"])
	if err != nil {
		return ingest.StagingRecord{}, err
	}
	rec := ingest.StagingRecord{
		ProductID:      raw["id"],
		ProductName:    raw["name"],
		CategoryLevel1: raw["category"],
		Timestamp:      ts,
		Source:         a.source,
	}
	if raw["price"] != "" {
		var v float64
		fmt.Sscanf(raw["price"], "%f", &v)
		rec.Price = &v
	}
	return rec, nil
}

func setupRunner(t *testing.T, opts Options) (*Runner, *sql.DB) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "pipeline",
		DbSchema: store.Schema,
	})
	t.Cleanup(cleanup)
	t.Cleanup(func() { result.DB.Close() })

	return New(store.New(result.DB), opts), result.DB
}

func raw(id, name, price, category string) ingest.RawRecord {
	return ingest.RawRecord{
		"id": id, "name": name, "price": price,
		"category": category, "date": "2025-01-06",
	}
}

func TestRunIngestsAllCategories(t *testing.T) {
	adapter := &testAdapter{
		source: "pipe-run",
		records: map[string][]ingest.RawRecord{
			"dairy": {
				raw("1", "Milk", "1.19", "Dairy"),
				raw("2", "Butter", "2.49", "Dairy"),
			},
			"drinks": {
				raw("3", "Water", "0.50", "Drinks"),
			},
		},
	}
	ingest.Register(adapter)

	runner, _ := setupRunner(t, Options{Workers: 2, Fetch: fetch.Options{PageSize: 10}})
	reports := runner.Run(context.Background(), map[ingest.Source][]string{
		"pipe-run": {"dairy", "drinks"},
	})

	require.Len(t, reports, 1)
	report := reports[0]
	require.NoError(t, report.Err)
	require.Len(t, report.Categories, 2)
	require.Equal(t, 0, report.FailedCategories())
	require.Equal(t, 3, report.Counts.Products)
	require.Equal(t, 3, report.Counts.Prices)
}

func TestRunFailingCategoryDoesNotAbortSiblings(t *testing.T) {
	adapter := &testAdapter{
		source: "pipe-partial",
		records: map[string][]ingest.RawRecord{
			"good": {raw("1", "Milk", "1.19", "Dairy")},
		},
		broken: map[string]bool{"bad": true},
	}
	ingest.Register(adapter)

	runner, db := setupRunner(t, Options{
		Fetch: fetch.Options{PageSize: 10, Retry: fetch.RetryPolicy{MaxAttempts: 1}},
	})
	reports := runner.Run(context.Background(), map[ingest.Source][]string{
		"pipe-partial": {"bad", "good"},
	})

	require.Len(t, reports, 1)
	report := reports[0]
	require.NoError(t, report.Err)
	require.Equal(t, 1, report.FailedCategories())
	require.False(t, report.Failed())
	require.Equal(t, 1, report.Counts.Products)

	// the failed category contributed no rows at all
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM product").Scan(&n)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRunSkipsUnstandardizableRecords(t *testing.T) {
	bad := raw("2", "Broken", "1.00", "Dairy")
	bad["date"] = "not-a-date"
	adapter := &testAdapter{
		source: "pipe-skip",
		records: map[string][]ingest.RawRecord{
			"dairy": {raw("1", "Milk", "1.19", "Dairy"), bad},
		},
	}
	ingest.Register(adapter)

	runner, _ := setupRunner(t, Options{Fetch: fetch.Options{PageSize: 10}})
	reports := runner.Run(context.Background(), map[ingest.Source][]string{
		"pipe-skip": {"dairy"},
	})

	result := reports[0].Categories[0]
	require.NoError(t, result.Err)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, 1, result.Records)
}

func TestRunUnknownSource(t *testing.T) {
	runner, _ := setupRunner(t, Options{})
	reports := runner.Run(context.Background(), map[ingest.Source][]string{
		"pipe-nonexistent": {"dairy"},
	})

	require.Len(t, reports, 1)
	require.ErrorIs(t, reports[0].Err, ingest.ErrUnsupportedSource)
	require.True(t, reports[0].Failed())
	require.Empty(t, reports[0].Categories)
}

func TestRunAllCategoriesFailingMarksSourceFailed(t *testing.T) {
	adapter := &testAdapter{
		source: "pipe-dark",
		broken: map[string]bool{"dairy": true, "drinks": true},
	}
	ingest.Register(adapter)

	runner, _ := setupRunner(t, Options{
		Fetch: fetch.Options{PageSize: 10, Retry: fetch.RetryPolicy{MaxAttempts: 1}},
	})
	reports := runner.Run(context.Background(), map[ingest.Source][]string{
		"pipe-dark": {"dairy", "drinks"},
	})

	require.Len(t, reports, 1)
	report := reports[0]
	// the lookup succeeded, so Err stays nil; the run still counts as a
	// failure because no category produced anything
	require.NoError(t, report.Err)
	require.Equal(t, 2, report.FailedCategories())
	require.True(t, report.Failed())
}

func TestRunWritesBatchArtifact(t *testing.T) {
	adapter := &testAdapter{
		source: "pipe-artifact",
		records: map[string][]ingest.RawRecord{
			"dairy": {raw("1", "Milk", "1.19", "Dairy")},
		},
	}
	ingest.Register(adapter)

	dir := t.TempDir()
	runner, _ := setupRunner(t, Options{OutputDir: dir, Fetch: fetch.Options{PageSize: 10}})
	reports := runner.Run(context.Background(), map[ingest.Source][]string{
		"pipe-artifact": {"dairy"},
	})
	require.NoError(t, reports[0].Err)

	matches, err := filepath.Glob(filepath.Join(dir, "pipe-artifact", "dairy_*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	want := [][]string{
		artifactHeader,
		{"1", "Milk", "1.19", "Dairy", "", "", "2025-01-06T00:00:00", "pipe-artifact"},
	}
	require.Empty(t, cmp.Diff(want, rows))
}
