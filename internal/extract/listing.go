package extract

import (
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/model"
)

// Discoverer finds detail page URLs on a listing page
type Discoverer struct {
	layout model.Layout
	base   *url.URL
	logger *zap.Logger
}

// NewDiscoverer creates a discoverer resolving relative links against baseURL
func NewDiscoverer(layout model.Layout, baseURL string, logger *zap.Logger) (*Discoverer, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base URL %q is not absolute", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{layout: layout, base: base, logger: logger}, nil
}

// Discover returns the absolute detail URLs of the listing in document
// order. Entries missing the quote link are skipped and repeated URLs are
// kept once. An empty listing yields an empty slice.
func (d *Discoverer) Discover(listingHTML string) []string {
	urls := []string{}

	doc, err := parseDocument(listingHTML)
	if err != nil {
		d.logger.Warn("listing page did not parse", zap.Error(err))
		return urls
	}

	seen := make(map[string]bool)
	doc.Find(d.layout.ListItem).Each(func(i int, item *goquery.Selection) {
		href, ok := trimmedAttr(item.Find(d.layout.Quote).Find(d.layout.QuoteLink), "href")
		if !ok {
			d.logger.Debug("listing entry without quote link", zap.Int("index", i))
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			d.logger.Debug("listing entry with malformed link", zap.Int("index", i), zap.String("href", href))
			return
		}

		abs := d.base.ResolveReference(ref).String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		urls = append(urls, abs)
	})

	return urls
}
