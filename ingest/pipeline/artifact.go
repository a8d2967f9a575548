package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pricetrack/ingest"
)

var artifactHeader = []string{
	"product_id", "product_name", "product_price",
	"category_level1", "category_level2", "category_level3",
	"timestamp", "source",
}

// writeArtifact persists one category's standardized batch as
// <dir>/<source>/<category>_<stamp>.csv for later bulk load.
func writeArtifact(dir string, task ingest.CategoryTask, stamp time.Time, batch []ingest.StagingRecord) (string, error) {
	outDir := filepath.Join(dir, string(task.Source))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, fmt.Sprintf(
		"%s_%s.csv", task.Category, stamp.Format("20060102_150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(artifactHeader); err != nil {
		return "", err
	}
	for _, rec := range batch {
		price := ""
		if rec.Price != nil {
			price = strconv.FormatFloat(*rec.Price, 'f', 2, 64)
		}
		err := w.Write([]string{
			rec.ProductID,
			rec.ProductName,
			price,
			rec.CategoryLevel1,
			rec.CategoryLevel2,
			rec.CategoryLevel3,
			rec.Timestamp.Format("2006-01-02T15:04:05"),
			string(rec.Source),
		})
		if err != nil {
			return "", err
		}
	}
	w.Flush()
	return path, w.Error()
}
