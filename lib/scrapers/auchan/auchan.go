// Package auchan scrapes the Auchan listing grid endpoint. Unlike
// Continente the grid exposes no total product count, so pagination ends
// on the first short or empty page.
package auchan

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
	defaultBaseUrl = "https://www.auchan.pt"
	searchPath     = "/on/demandware.store/Sites-AuchanPT-Site/pt_PT/Search-UpdateGrid"
)

type Options struct {
	BaseUrl string
	// Preference filter pair, e.g. soldInStores=000 to restrict the grid
	// to store-sold products.
	FilterName  string
	FilterValue string
}

type Client struct {
	http        *resty.Client
	filterName  string
	filterValue string
}

func NewClient(opts Options) *Client {
	if opts.BaseUrl == "" {
		opts.BaseUrl = defaultBaseUrl
	}
	if opts.FilterName == "" {
		opts.FilterName = "soldInStores"
		opts.FilterValue = "000"
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/86.0.4240.75 Safari/537.36")
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	client.SetHeader("accept-language", "en-US,en;q=0.5")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/auchan")

	return &Client{
		http:        client,
		filterName:  opts.FilterName,
		filterValue: opts.FilterValue,
	}
}

func (c *Client) Source() ingest.Source {
	return ingest.Auchan
}

func (c *Client) FetchPage(ctx context.Context, task ingest.CategoryTask, start, size int) (ingest.Page, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"cgid":   task.Category,
			"prefn1": c.filterName,
			"prefv1": c.filterValue,
			"start":  strconv.Itoa(start),
			"sz":     strconv.Itoa(size),
			"next":   "true",
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
		Records: extractProducts(doc, time.Now()),
		Total:   -1,
	}, nil
}

func (c *Client) Standardize(raw ingest.RawRecord) (ingest.StagingRecord, error) {
	ts, err := standardize.ParseTimestamp(raw["timestamp"])
	if err != nil {
		return ingest.StagingRecord{}, err
	}

	return ingest.StagingRecord{
		ProductID:      raw["product_id"],
		ProductName:    raw["product_name"],
		Price:          standardize.ExtractPrice(raw["product_price"]),
		CategoryLevel1: raw["product_category"],
		CategoryLevel2: raw["product_category2"],
		CategoryLevel3: raw["product_category3"],
		Timestamp:      ts,
		Source:         ingest.Auchan,
	}, nil
}
