// Package pingodoce scrapes the Pingo Doce own-brand product listing. The
// listing paginates with a 1-based page parameter rather than a record
// offset, and carries a last-page hint in its pagination controls. It has
// no category hierarchy and no native numeric product id; ids are taken
// from the product URL when present.
package pingodoce

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
	defaultBaseUrl = "https://www.pingodoce.pt"
	listingPath    = "/produtos/marca-propria-pingo-doce/pingo-doce/"
)

type Options struct {
	BaseUrl string
}

type Client struct {
	http *resty.Client
}

func NewClient(opts Options) *Client {
	if opts.BaseUrl == "" {
		opts.BaseUrl = defaultBaseUrl
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/pingodoce")

	return &Client{http: client}
}

func (c *Client) Source() ingest.Source {
	return ingest.PingoDoce
}

func (c *Client) FetchPage(ctx context.Context, task ingest.CategoryTask, start, size int) (ingest.Page, error) {
	page := start/size + 1

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":             "",
			"o":             "maisbaixo",
			"categoria":     task.Category,
			"subcategorias": "",
			"filtros":       "",
			"novidades":     "0",
			"cp":            strconv.Itoa(page),
		}).
		Get(listingPath)
	if err != nil {
		return ingest.Page{}, err
	}
	if res.IsError() {
		return ingest.Page{}, fmt.Errorf("listing returned %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return ingest.Page{}, err
	}

	records := extractCards(doc, time.Now())

	// The last-page hint is the only pagination signal the site exposes.
	// Converted to a record count it lets the fetch loop stop instead of
	// receiving the last page over and over.
	total := -1
	if last := extractLastPage(doc); last > 0 {
		total = last * size
		if page >= last {
			total = start + len(records)
		}
	}
	return ingest.Page{Records: records, Total: total}, nil
}

func (c *Client) Standardize(raw ingest.RawRecord) (ingest.StagingRecord, error) {
	ts, err := standardize.ParseTimestamp(raw["timestamp"])
	if err != nil {
		return ingest.StagingRecord{}, err
	}

	// no category hierarchy and no native id on this source; an empty
	// ProductID makes the upsert engine derive one from the name
	return ingest.StagingRecord{
		ProductID:   raw["product_id"],
		ProductName: raw["product_name"],
		Price:       standardize.ExtractPrice(raw["product_price"]),
		Timestamp:   ts,
		Source:      ingest.PingoDoce,
	}, nil
}
