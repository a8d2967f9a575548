// Package store is the upsert engine: it applies a batch of staging
// records to the relational schema in one transaction, with per-table
// conflict rules that make re-running a batch a no-op.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"

	"pricetrack/ingest"
	"pricetrack/ingest/identity"
	"pricetrack/ingest/standardize"

	_ "embed"
)

//go:embed schema.sql
var Schema string

const defaultCurrency = "EUR"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Counts reports how many distinct rows a batch produced per table, after
// in-batch deduplication.
type Counts struct {
	Categories   int
	Products     int
	Associations int
	Prices       int
	// Dropped counts staging records that could not be keyed (no product
	// id and no name to derive one from).
	Dropped int
}

type categoryRow struct {
	id                     int32
	level1, level2, level3 string
}

type productRow struct {
	pk     int32
	id     string
	name   string
	source ingest.Source
}

type priceKey struct {
	pk int32
	ts int64
}

type priceRow struct {
	pk       int32
	integer  int
	decimal  int
	currency string
	ts       int64
}

// Apply upserts the batch inside a single transaction. Any failure rolls
// the whole batch back; there are no partial applications. Applying the
// same batch twice yields the same stored state as applying it once.
func (s *Store) Apply(ctx context.Context, batch []ingest.StagingRecord) (Counts, error) {
	var counts Counts
	if len(batch) == 0 {
		return counts, nil
	}

	// Deduplicate before writing. Iteration follows batch order, so for
	// mutable fields the last observed value wins. Price ledger entries
	// keep the first observation, matching the on-conflict rule below.
	categories := map[int32]categoryRow{}
	products := map[int32]productRow{}
	associations := map[int32]int32{}
	prices := map[priceKey]priceRow{}
	var categoryOrder []int32
	var productOrder []int32
	var priceOrder []priceKey

	for _, rec := range batch {
		productID := rec.ProductID
		if productID == "" {
			productID = standardize.DeriveProductID(rec.ProductName)
		}
		if productID == "" {
			counts.Dropped++
			continue
		}

		pk := identity.ProductKey(productID, rec.Source)
		categoryID := identity.CategoryKey(
			rec.CategoryLevel1, rec.CategoryLevel2, rec.CategoryLevel3)

		if _, seen := categories[categoryID]; !seen {
			categoryOrder = append(categoryOrder, categoryID)
		}
		categories[categoryID] = categoryRow{
			id:     categoryID,
			level1: rec.CategoryLevel1,
			level2: rec.CategoryLevel2,
			level3: rec.CategoryLevel3,
		}

		if _, seen := products[pk]; !seen {
			productOrder = append(productOrder, pk)
		}
		products[pk] = productRow{
			pk:     pk,
			id:     productID,
			name:   rec.ProductName,
			source: rec.Source,
		}
		associations[pk] = categoryID

		if rec.Price == nil {
			continue
		}
		integer, decimal := SplitPrice(*rec.Price)
		key := priceKey{pk: pk, ts: rec.Timestamp.Unix()}
		if _, seen := prices[key]; !seen {
			priceOrder = append(priceOrder, key)
			prices[key] = priceRow{
				pk:       pk,
				integer:  integer,
				decimal:  decimal,
				currency: defaultCurrency,
				ts:       key.ts,
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, err
	}
	defer tx.Rollback()

	for _, id := range categoryOrder {
		row := categories[id]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO category_hierarchy
				(category_id, category_level1, category_level2, category_level3)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (category_id) DO UPDATE SET
				category_level1 = excluded.category_level1,
				category_level2 = excluded.category_level2,
				category_level3 = excluded.category_level3`,
			row.id, row.level1, row.level2, row.level3)
		if err != nil {
			return counts, fmt.Errorf("upsert category %d: %w", row.id, err)
		}
	}

	for _, pk := range productOrder {
		row := products[pk]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product (product_id_pk, product_id, product_name, source)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (product_id_pk) DO UPDATE SET
				product_name = excluded.product_name`,
			row.pk, row.id, row.name, string(row.source))
		if err != nil {
			return counts, fmt.Errorf("upsert product %d: %w", row.pk, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_category (product_id_pk, category_id)
			VALUES (?, ?)
			ON CONFLICT (product_id_pk) DO UPDATE SET
				category_id = excluded.category_id`,
			row.pk, associations[pk])
		if err != nil {
			return counts, fmt.Errorf("associate product %d: %w", row.pk, err)
		}
	}

	for _, key := range priceOrder {
		row := prices[key]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_pricing
				(product_id_pk, price_integer, price_decimal, price_currency, timestamp)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (product_id_pk, timestamp) DO NOTHING`,
			row.pk, row.integer, row.decimal, row.currency, row.ts)
		if err != nil {
			return counts, fmt.Errorf("insert price for product %d: %w", row.pk, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return counts, err
	}

	counts.Categories = len(categories)
	counts.Products = len(products)
	counts.Associations = len(associations)
	counts.Prices = len(prices)
	if counts.Dropped > 0 {
		slog.Warn("dropped unkeyable staging records", "count", counts.Dropped)
	}
	return counts, nil
}

// SplitPrice decomposes a price into its integer part and a 0-99 decimal
// part, rounding to cents first so 1.999 becomes (2, 0) rather than (1, 99).
func SplitPrice(price float64) (integer, decimal int) {
	cents := int(math.Round(price * 100))
	return cents / 100, cents % 100
}
