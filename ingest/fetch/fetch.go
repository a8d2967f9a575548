// Package fetch drives the page-by-page retrieval of one listing category:
// pagination, retry with a fixed budget, politeness delays and the
// decision that a category is exhausted.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pricetrack/ingest"

	"github.com/mazen160/go-random"
)

// ErrBudgetExhausted marks a page request that failed on every attempt
// its retry policy allowed.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// RetryPolicy is the retry budget applied to each page request. It is an
// explicit value passed into the fetcher so tests can run it against fakes
// without sleeping.
type RetryPolicy struct {
	// MaxAttempts counts the first try as well, so 1 means no retries.
	MaxAttempts int
	Delay       time.Duration
}

// Do runs op until it succeeds or the budget is exhausted, sleeping Delay
// between attempts. The last error is returned wrapped.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		slog.Warn("request failed, retrying",
			"attempt", attempt, "max_attempts", attempts,
			"delay", p.Delay, "err", err)
		if sleepErr := sleep(ctx, p.Delay); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("%w: giving up after %d attempts: %w", ErrBudgetExhausted, attempts, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Options struct {
	PageSize int
	// MaxPages is a safety valve against sources whose pagination never
	// terminates, not a correctness signal.
	MaxPages int
	Retry    RetryPolicy
	// Politeness bounds the delay enforced between successful page
	// fetches (never between retries). The actual delay is drawn
	// uniformly from [Min, Max].
	PolitenessMin time.Duration
	PolitenessMax time.Duration
}

const (
	DefaultPageSize = 216
	DefaultMaxPages = 200
)

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry.MaxAttempts = 3
	}
	return o
}

// Fetcher lazily walks a category's listing pages through a site adapter.
type Fetcher struct {
	adapter ingest.Adapter
	opts    Options
}

func New(adapter ingest.Adapter, opts Options) *Fetcher {
	return &Fetcher{adapter: adapter, opts: opts.withDefaults()}
}

// Fetch returns a pager over the category's pages. Nothing is requested
// until the first call to Next; each Next issues at most one page request,
// so unbounded categories are never buffered.
func (f *Fetcher) Fetch(task ingest.CategoryTask) *Pager {
	return &Pager{fetcher: f, task: task, total: -1}
}

// Pager iterates listing pages in the bufio.Scanner style:
//
//	pager := fetcher.Fetch(task)
//	for pager.Next(ctx) {
//	    use(pager.Page())
//	}
//	if err := pager.Err(); err != nil { ... }
type Pager struct {
	fetcher *Fetcher
	task    ingest.CategoryTask

	start int
	pages int
	total int // authoritative record count, -1 while unknown

	page ingest.Page
	err  error
	done bool
}

func (p *Pager) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}
	opts := p.fetcher.opts

	if p.pages > 0 {
		if err := p.polite(ctx); err != nil {
			p.err = err
			return false
		}
	}

	var page ingest.Page
	err := opts.Retry.Do(ctx, func() error {
		var fetchErr error
		page, fetchErr = p.fetcher.adapter.FetchPage(ctx, p.task, p.start, opts.PageSize)
		return fetchErr
	})
	if err != nil {
		p.err = fmt.Errorf("category %q: %w", p.task.Category, err)
		return false
	}

	// the authoritative total is only trusted from the first page
	if p.pages == 0 && page.Total >= 0 {
		p.total = page.Total
		slog.Debug("source reported total product count",
			"source", p.task.Source, "category", p.task.Category, "total", p.total)
	}

	p.pages++
	p.start += opts.PageSize

	if len(page.Records) == 0 {
		p.done = true
		return false
	}
	p.page = page

	// A reported total is authoritative and supersedes the short-page
	// heuristic: sources that paginate by page number serve their own
	// fixed page size, so every page looks "short" against the requested
	// one and the heuristic would end the category after page one.
	switch {
	case p.total >= 0:
		if p.start >= p.total {
			p.done = true
		}
	case len(page.Records) < opts.PageSize:
		p.done = true
	}
	if !p.done && p.pages >= opts.MaxPages {
		slog.Warn("page ceiling reached, stopping category",
			"source", p.task.Source, "category", p.task.Category, "pages", p.pages)
		p.done = true
	}
	return true
}

// Page returns the page produced by the last successful call to Next.
func (p *Pager) Page() ingest.Page {
	return p.page
}

func (p *Pager) Err() error {
	return p.err
}

func (p *Pager) polite(ctx context.Context) error {
	opts := p.fetcher.opts
	min, max := opts.PolitenessMin, opts.PolitenessMax
	if max < min {
		max = min
	}
	delay := min
	if max > min {
		ms, err := random.IntRange(int(min.Milliseconds()), int(max.Milliseconds())+1)
		if err == nil {
			delay = time.Duration(ms) * time.Millisecond
		}
	}
	return sleep(ctx, delay)
}
