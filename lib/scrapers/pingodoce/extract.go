package pingodoce

import (
	"strconv"
	"strings"
	"time"

	"pricetrack/ingest"
	"pricetrack/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

func extractCards(doc *goquery.Document, now time.Time) []ingest.RawRecord {
	timestamp := now.Format("20060102_150405")

	var records []ingest.RawRecord
	doc.Find("div.product-cards").Each(func(_ int, card *goquery.Selection) {
		rec := ingest.RawRecord{
			"product_name":  htmlutil.CleanText(card.Find("h3.product-cards__title").Text()),
			"product_price": htmlutil.CleanText(card.Find("span.product-cards_price").Text()),
			"timestamp":     timestamp,
		}

		if href, ok := card.Find("a.product-cards__link").Attr("href"); ok {
			rec["product_url"] = href
			rec["product_id"] = idFromUrl(href)
		}
		if img, ok := card.Find("img.product-cards__image").Attr("src"); ok {
			rec["product_image"] = img
		}
		if rating := card.Find("div.bv_text"); rating.Length() > 0 {
			// the rating widget nests its value in decorative spans
			rec["product_rating"] = htmlutil.CleanText(htmlutil.GetText(rating.Nodes[0]))
		}

		records = append(records, rec)
	})
	return records
}

// idFromUrl takes the second-to-last path segment of a product URL
// (".../<id>/<slug>/"), the site's stable per-product identifier.
func idFromUrl(href string) string {
	parts := strings.Split(strings.TrimSuffix(href, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// extractLastPage reads the highest page number from the pagination
// controls, 0 when the listing has a single page.
func extractLastPage(doc *goquery.Document) int {
	last := 0
	doc.Find("div.page.js-change-page").Each(func(_ int, page *goquery.Selection) {
		if v, ok := page.Attr("data-page"); ok {
			if n, err := strconv.Atoi(v); err == nil && n > last {
				last = n
			}
		}
	})
	return last
}
