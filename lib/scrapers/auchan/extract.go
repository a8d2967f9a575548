package auchan

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"pricetrack/ingest"
	"pricetrack/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// gtmCategories is the analytics blob on each tile carrying the three
// category levels.
type gtmCategories struct {
	Category  string `json:"item_category"`
	Category2 string `json:"item_category2"`
	Category3 string `json:"item_category3"`
}

func extractProducts(doc *goquery.Document, now time.Time) []ingest.RawRecord {
	timestamp := now.Format("20060102_150405")

	var records []ingest.RawRecord
	doc.Find("div.product").Each(func(_ int, product *goquery.Selection) {
		pid, ok := product.Attr("data-pid")
		if !ok {
			return
		}

		rec := ingest.RawRecord{
			"product_id":   pid,
			"product_name": htmlutil.CleanText(product.Find("div.pdp-link a").Text()),
			"timestamp":    timestamp,
		}
		if content, ok := product.Find("span.value").Attr("content"); ok {
			rec["product_price"] = content
		}

		tile := product.Find("div.product-tile")
		if blob, ok := tile.Attr("data-gtm-new"); ok {
			var categories gtmCategories
			if err := json.Unmarshal([]byte(blob), &categories); err != nil {
				slog.Warn("undecodable gtm category blob", "pid", pid, "err", err)
			} else {
				rec["product_category"] = categories.Category
				rec["product_category2"] = categories.Category2
				rec["product_category3"] = categories.Category3
			}
		}

		if img, ok := product.Find("div.image-container img").Attr("src"); ok {
			rec["product_image"] = img
		}
		if promo := product.Find("div.auc-price__promotion__label"); promo.Length() > 0 {
			rec["product_promotions"] = htmlutil.CleanText(promo.Text())
		}
		var labels []string
		product.Find("img.auc-product-labels__icon").Each(func(_ int, label *goquery.Selection) {
			if alt, ok := label.Attr("alt"); ok {
				labels = append(labels, alt)
			}
		})
		if len(labels) > 0 {
			rec["product_labels"] = strings.Join(labels, ";")
		}

		records = append(records, rec)
	})
	return records
}
