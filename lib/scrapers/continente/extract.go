package continente

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"pricetrack/ingest"
	"pricetrack/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// tileImpression is the JSON blob each product tile embeds for analytics.
// It is the most reliable carrier of id, name, price and category.
type tileImpression struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Brand    string  `json:"brand"`
	Category string  `json:"category"`
}

func extractTiles(doc *goquery.Document, now time.Time) []ingest.RawRecord {
	trackingDate := now.Format("2006-01-02")

	var records []ingest.RawRecord
	doc.Find("div.product-tile").Each(func(_ int, tile *goquery.Selection) {
		blob, ok := tile.Attr("data-product-tile-impression")
		if !ok {
			return
		}
		var impression tileImpression
		if err := json.Unmarshal([]byte(blob), &impression); err != nil {
			slog.Warn("undecodable tile impression", "err", err)
			return
		}

		rec := ingest.RawRecord{
			"Product ID":    impression.ID,
			"Product Name":  htmlutil.CleanText(impression.Name),
			"Price":         strconv.FormatFloat(impression.Price, 'f', -1, 64),
			"Brand":         impression.Brand,
			"Category":      impression.Category,
			"tracking_date": trackingDate,
		}
		if img, ok := tile.Find("img.ct-tile-image").Attr("data-src"); ok {
			rec["Image URL"] = img
		}
		if href, ok := tile.Find("a[href]").First().Attr("href"); ok {
			rec["Product Link"] = href
		}
		records = append(records, rec)
	})
	return records
}

var counterDigits = regexp.MustCompile(`\d+`)

// extractTotal reads the "N products" counter. The counter text sometimes
// carries several numbers ("showing 36 of 412"); the largest one is the
// category total.
func extractTotal(doc *goquery.Document) int {
	text := doc.Find("div.search-results-products-counter").Text()
	total := -1
	for _, m := range counterDigits.FindAllString(text, -1) {
		if n, err := strconv.Atoi(m); err == nil && n > total {
			total = n
		}
	}
	return total
}
