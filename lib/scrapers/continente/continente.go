// Package continente scrapes the Continente listing grid endpoint. The
// grid is fetched page by page through Search-UpdateGrid, which returns an
// HTML fragment of product tiles plus a results counter carrying the
// authoritative product count for the category.
package continente

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"pricetrack/ingest"
	"pricetrack/ingest/standardize"
	"pricetrack/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseUrl = "https://www.continente.pt"
	searchPath     = "/on/demandware.store/Sites-continente-Site/default/Search-UpdateGrid"
	// pmin filters out zero-priced placeholder tiles
	defaultMinPrice = "0.01"
)

type Options struct {
	BaseUrl  string
	MinPrice string
}

type Client struct {
	http     *resty.Client
	minPrice string
}

func NewClient(opts Options) *Client {
	if opts.BaseUrl == "" {
		opts.BaseUrl = defaultBaseUrl
	}
	if opts.MinPrice == "" {
		opts.MinPrice = defaultMinPrice
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0")
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("accept-language", "pt-PT,pt;q=0.8,en;q=0.5,en-US;q=0.3")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/continente")

	return &Client{http: client, minPrice: opts.MinPrice}
}

func (c *Client) Source() ingest.Source {
	return ingest.Continente
}

func (c *Client) FetchPage(ctx context.Context, task ingest.CategoryTask, start, size int) (ingest.Page, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"cgid":  task.Category,
			"pmin":  c.minPrice,
			"start": strconv.Itoa(start),
			"sz":    strconv.Itoa(size),
		}).
		Get(searchPath)
	if err != nil {
		return ingest.Page{}, err
	}
	if res.IsError() {
		return ingest.Page{}, fmt.Errorf("listing grid returned %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return ingest.Page{}, err
	}
	return ingest.Page{
		Records: extractTiles(doc, time.Now()),
		Total:   extractTotal(doc),
	}, nil
}

func (c *Client) Standardize(raw ingest.RawRecord) (ingest.StagingRecord, error) {
	ts, err := standardize.ParseTimestamp(raw["tracking_date"])
	if err != nil {
		return ingest.StagingRecord{}, err
	}
	level1, level2, level3 := standardize.SplitCategory(raw["Category"])

	return ingest.StagingRecord{
		ProductID:      raw["Product ID"],
		ProductName:    raw["Product Name"],
		Price:          standardize.ExtractPrice(raw["Price"]),
		CategoryLevel1: level1,
		CategoryLevel2: level2,
		CategoryLevel3: level3,
		Timestamp:      ts,
		Source:         ingest.Continente,
	}, nil
}
