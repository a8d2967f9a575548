// Package ingest holds the canonical data model of the price tracking
// pipeline and the registry of site adapters feeding it.
package ingest

import (
	"context"
	"time"
)

// Source identifies a tracked vendor. The string value is persisted, so it
// must never change for an existing source.
type Source string

const (
	Continente Source = "continente"
	Auchan     Source = "auchan"
	PingoDoce  Source = "pingo_doce"
)

// RawRecord is one product as extracted from a listing page, keyed by the
// site's own field names. The pipeline treats it as opaque until a
// standardizer maps it into a StagingRecord.
type RawRecord map[string]string

// Page is the outcome of fetching one listing page.
type Page struct {
	Records []RawRecord
	// Total is the source-reported product count for the whole category,
	// parsed from page markup when the site exposes one, -1 otherwise.
	Total int
}

// CategoryTask names one listing to be ingested end to end.
type CategoryTask struct {
	Source   Source
	Category string // site-native category id (e.g. cgid)
}

// StagingRecord is the canonical shape every source is mapped into. It
// lives only for the duration of one pipeline run.
type StagingRecord struct {
	// ProductID is the source-native identifier. Left empty when the site
	// has none; the upsert engine derives one from the product name.
	ProductID   string
	ProductName string
	// Price is nil when the listing carried no parsable price.
	Price          *float64
	CategoryLevel1 string
	CategoryLevel2 string
	CategoryLevel3 string
	Timestamp      time.Time
	Source         Source
}

// Adapter bundles everything site-specific: issuing one listing request,
// extracting raw records from the response markup and standardizing them.
// Implementations must keep Standardize pure, all I/O belongs in FetchPage.
type Adapter interface {
	Source() Source

	// FetchPage requests the listing for task at the given pagination
	// offset and extracts the raw records it carries.
	FetchPage(ctx context.Context, task CategoryTask, start, size int) (Page, error)

	// Standardize maps one raw record into the canonical staging shape.
	Standardize(raw RawRecord) (StagingRecord, error)
}
