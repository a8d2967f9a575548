package continente

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"pricetrack/ingest"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const gridFixture = `
<div class="search-results-products-counter">Showing 36 of 412 products</div>
<div class="product-tile" data-product-tile-impression='{"id":"2001","name":"Leite Meio-Gordo","price":1.19,"brand":"Continente","category":"Laticínios / Leite / Meio-Gordo"}'>
	<a href="/produto/leite-meio-gordo-2001.html"></a>
	<img class="ct-tile-image" data-src="https://cdn.example/leite.jpg">
</div>
<div class="product-tile" data-product-tile-impression='{"id":"2002","name":"  Manteiga   com Sal ","price":2.5,"brand":"Continente","category":"Laticínios / Manteiga"}'>
</div>
<div class="product-tile" data-product-tile-impression='not json'></div>
<div class="product-tile"></div>
`

func TestExtractTiles(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(gridFixture))
	require.NoError(t, err)

	now := time.Date(2025, 1, 6, 13, 0, 0, 0, time.UTC)
	records := extractTiles(doc, now)
	require.Len(t, records, 2)

	first := records[0]
	require.Equal(t, "2001", first["Product ID"])
	require.Equal(t, "Leite Meio-Gordo", first["Product Name"])
	require.Equal(t, "1.19", first["Price"])
	require.Equal(t, "Laticínios / Leite / Meio-Gordo", first["Category"])
	require.Equal(t, "2025-01-06", first["tracking_date"])
	require.Equal(t, "https://cdn.example/leite.jpg", first["Image URL"])
	require.Equal(t, "/produto/leite-meio-gordo-2001.html", first["Product Link"])

	// extracted names are whitespace-normalized
	require.Equal(t, "Manteiga com Sal", records[1]["Product Name"])
}

func TestExtractTotal(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(gridFixture))
	require.NoError(t, err)
	require.Equal(t, 412, extractTotal(doc))

	empty, err := goquery.NewDocumentFromReader(strings.NewReader("<div></div>"))
	require.NoError(t, err)
	require.Equal(t, -1, extractTotal(empty))
}

func TestFetchPage(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		fmt.Fprint(w, gridFixture)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseUrl: srv.URL})
	task := ingest.CategoryTask{Source: ingest.Continente, Category: "laticinios"}
	page, err := client.FetchPage(context.Background(), task, 36, 36)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.Equal(t, 412, page.Total)

	require.Equal(t, "laticinios", query.Get("cgid"))
	require.Equal(t, "36", query.Get("start"))
	require.Equal(t, "36", query.Get("sz"))
	require.Equal(t, "0.01", query.Get("pmin"))
}

func TestStandardize(t *testing.T) {
	client := NewClient(Options{})
	rec, err := client.Standardize(map[string]string{
		"Product ID":    "2001",
		"Product Name":  "Leite Meio-Gordo",
		"Price":         "1.19",
		"Category":      "Laticínios / Leite / Meio-Gordo",
		"tracking_date": "2025-01-06",
	})
	require.NoError(t, err)
	require.Equal(t, "2001", rec.ProductID)
	require.Equal(t, "Leite Meio-Gordo", rec.ProductName)
	require.NotNil(t, rec.Price)
	require.InDelta(t, 1.19, *rec.Price, 1e-9)
	require.Equal(t, "Laticínios", rec.CategoryLevel1)
	require.Equal(t, "Leite", rec.CategoryLevel2)
	require.Equal(t, "Meio-Gordo", rec.CategoryLevel3)
	require.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), rec.Timestamp)

	_, err = client.Standardize(map[string]string{"tracking_date": "never"})
	require.Error(t, err)
}
