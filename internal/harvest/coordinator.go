// Package harvest turns a listing URL into a batch of extracted records.
package harvest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/cache"
	"github.com/ppiankov/factharvest/internal/extract"
	"github.com/ppiankov/factharvest/internal/fetch"
	"github.com/ppiankov/factharvest/internal/metrics"
	"github.com/ppiankov/factharvest/internal/model"
	"github.com/ppiankov/factharvest/internal/worker"
)

// StageListing names listing page failures
const StageListing = "listing"

// HarvestError is a failure that prevents any batch from being produced
type HarvestError struct {
	Stage string
	URL   string
	Err   error
}

func (e *HarvestError) Error() string {
	return fmt.Sprintf("harvest %s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *HarvestError) Unwrap() error {
	return e.Err
}

// Coordinator runs discovery and the bounded detail fan-out
type Coordinator struct {
	listing   fetch.PageFetcher
	detail    fetch.PageFetcher
	extractor *extract.RecordExtractor
	layout    model.Layout
	baseURL   string
	pages     int
	workers   int
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithDetailFetcher uses a separate fetcher for detail pages
func WithDetailFetcher(f fetch.PageFetcher) Option {
	return func(c *Coordinator) { c.detail = f }
}

// WithMetrics records fetch failures on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a coordinator fetching every page through f
func NewCoordinator(cfg *model.Config, f fetch.PageFetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		listing: f,
		detail:  f,
		layout:  cfg.Extract.Layout,
		baseURL: cfg.Listing.BaseURL,
		pages:   cfg.Listing.Pages,
		workers: cfg.Concurrency.Workers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pages < 1 {
		c.pages = 1
	}
	c.extractor = extract.NewRecordExtractor(cfg.Extract, c.logger)
	return c
}

// FromConfig wires the run's fetchers: rate limited, retried, and for
// detail pages optionally cached. The listing page is never cached.
func FromConfig(cfg *model.Config, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	listing := fetch.NewRetrying(fetch.FromConfig(cfg), cfg.Retry, logger)

	var detail fetch.PageFetcher = listing
	if pageCache := cache.FromConfig(cfg.Cache); pageCache != nil {
		detail = fetch.NewCached(listing, pageCache, logger)
	}

	return NewCoordinator(cfg, listing,
		WithDetailFetcher(detail),
		WithMetrics(m),
		WithLogger(logger),
	)
}

// Harvest discovers the detail pages of listingURL and extracts one record
// per page. The batch has one record per discovered URL in discovery order.
// Only a listing failure is returned as an error.
func (c *Coordinator) Harvest(ctx context.Context, listingURL string) (model.Batch, error) {
	urls, err := c.Discover(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	return c.Collect(ctx, urls), nil
}

// Discover fetches the listing (and its follow-up pages when configured)
// and returns the detail URLs found. Failing to fetch the first page is a
// *HarvestError; later pages only end pagination.
func (c *Coordinator) Discover(ctx context.Context, listingURL string) ([]string, error) {
	base := c.baseURL
	if base == "" {
		origin, err := extract.Origin(listingURL)
		if err != nil {
			return nil, &HarvestError{Stage: StageListing, URL: listingURL, Err: err}
		}
		base = origin
	}

	discoverer, err := extract.NewDiscoverer(c.layout, base, c.logger)
	if err != nil {
		return nil, &HarvestError{Stage: StageListing, URL: listingURL, Err: err}
	}

	page, err := c.listing.Fetch(ctx, listingURL)
	if err != nil {
		return nil, &HarvestError{Stage: StageListing, URL: listingURL, Err: err}
	}

	urls := discoverer.Discover(page.HTML)
	c.logger.Info("listing page discovered",
		zap.String("url", listingURL),
		zap.Int("page", 1),
		zap.Int("urls", len(urls)),
	)

	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		seen[u] = true
	}

	for n := 2; n <= c.pages; n++ {
		pageURL, err := PageURL(listingURL, n)
		if err != nil {
			c.logger.Warn("cannot build listing page URL", zap.Int("page", n), zap.Error(err))
			break
		}

		page, err := c.listing.Fetch(ctx, pageURL)
		if err != nil {
			c.logger.Warn("listing page failed, stopping pagination",
				zap.String("url", pageURL),
				zap.Int("page", n),
				zap.Error(err),
			)
			break
		}

		found := discoverer.Discover(page.HTML)
		added := 0
		for _, u := range found {
			if seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
			added++
		}
		c.logger.Info("listing page discovered",
			zap.String("url", pageURL),
			zap.Int("page", n),
			zap.Int("urls", added),
		)
		if added == 0 {
			break
		}
	}

	return urls, nil
}

// Collect harvests every URL on the bounded pool. It always returns one
// record per URL, degraded where the page could not be fetched or the
// context ended first.
func (c *Coordinator) Collect(ctx context.Context, urls []string) model.Batch {
	processor := worker.NewBatchProcessor(c, c.workers)
	results := processor.ProcessURLs(ctx, urls)

	batch := make(model.Batch, len(results))
	for i, res := range results {
		batch[i] = res.Record
		if res.Error == nil {
			continue
		}
		if res.Skipped {
			c.logger.Warn("detail page not harvested", zap.String("url", res.URL), zap.Error(res.Error))
			continue
		}
		c.metrics.ObserveFetchError(string(fetch.ReasonOf(res.Error)))
		c.logger.Warn("detail page degraded", zap.String("url", res.URL), zap.Error(res.Error))
	}

	return batch
}

// HarvestRecord fetches and extracts a single detail page
func (c *Coordinator) HarvestRecord(ctx context.Context, detailURL string) (model.Record, error) {
	page, err := c.detail.Fetch(ctx, detailURL)
	if err != nil {
		return model.DegradedRecord(detailURL), err
	}
	return c.extractor.Extract(page.HTML, detailURL), nil
}

// PageURL returns the URL of listing page n (n >= 2) using the page query parameter
func PageURL(listingURL string, n int) (string, error) {
	parsed, err := url.Parse(listingURL)
	if err != nil {
		return "", fmt.Errorf("parse listing URL: %w", err)
	}
	q := parsed.Query()
	q.Set("page", strconv.Itoa(n))
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
