// Probe program to check the page layout selectors against live pages.
// It fetches a listing, extracts a few detail pages and reports which
// fields came back as N/A.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/factharvest/internal/extract"
	"github.com/ppiankov/factharvest/internal/fetch"
	"github.com/ppiankov/factharvest/internal/model"
)

func main() {
	limit := flag.Int("n", 5, "detail pages to probe")
	coarse := flag.Bool("coarse", false, "degrade the whole record when a block is missing")
	flag.Parse()

	cfg := model.DefaultConfig()
	listingURL := cfg.Listing.URL
	if flag.NArg() > 0 {
		listingURL = flag.Arg(0)
	}
	cfg.Extract.FieldIsolation = !*coarse

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Printf("=== Listing probe: %s ===\n\n", listingURL)

	fetcher := fetch.NewFetcher(cfg.HTTP, fetch.WithRobots())
	page, err := fetcher.Fetch(ctx, listingURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing fetch failed (%s): %v\n", fetch.ReasonOf(err), err)
		os.Exit(1)
	}

	base, err := extract.Origin(page.FinalURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing URL: %v\n", err)
		os.Exit(1)
	}
	discoverer, err := extract.NewDiscoverer(cfg.Extract.Layout, base, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discoverer: %v\n", err)
		os.Exit(1)
	}

	urls := discoverer.Discover(page.HTML)
	fmt.Printf("Discovered %d detail pages\n", len(urls))
	if len(urls) == 0 {
		fmt.Printf("  ⚠️  selector %q / %q matched nothing\n", cfg.Extract.Layout.ListItem, cfg.Extract.Layout.Quote)
		return
	}
	if len(urls) > *limit {
		urls = urls[:*limit]
	}

	extractor := extract.NewRecordExtractor(cfg.Extract, nil)
	missing := map[string]int{}
	for _, u := range urls {
		fmt.Println(strings.Repeat("-", 60))
		fmt.Println(u)

		detail, err := fetcher.Fetch(ctx, u)
		if err != nil {
			fmt.Printf("  fetch failed (%s): %v\n", fetch.ReasonOf(err), err)
			continue
		}

		record := extractor.Extract(detail.HTML, u)
		fmt.Printf("  statement: %s\n", record.Statement)
		fmt.Printf("  date:      %s\n", record.PublishedDate)
		fmt.Printf("  source:    %s\n", record.Source)
		fmt.Printf("  label:     %s\n", record.Label)
		for _, field := range record.AbsentFields() {
			missing[field]++
		}
	}

	fmt.Println(strings.Repeat("-", 60))
	if len(missing) == 0 {
		fmt.Println("✓ every probed field was extracted")
		return
	}
	fmt.Println("Fields extracted as N/A:")
	for _, field := range []string{"statement", "date", "source", "label"} {
		if n := missing[field]; n > 0 {
			fmt.Printf("  %-9s %d/%d\n", field, n, len(urls))
		}
	}
}
