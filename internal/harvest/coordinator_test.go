package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factharvest/internal/fetch"
	"github.com/ppiankov/factharvest/internal/model"
)

func listingPage(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<li class="o-listicle__item"><div class="m-statement__quote"><a href="%s">x</a></div></li>`, href)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func detailPage(statement, date, source, label string) string {
	return fmt.Sprintf(`<html><body>
<div class="m-statement__meta"><a href="/p/">%s</a><div class="m-statement__desc">stated on %s:</div></div>
<div class="m-statement__quote">%s</div>
<div class="m-statement__content"><img class="c-image__original" alt="%s"></div>
</body></html>`, source, date, statement, label)
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.HTTP.Timeout = 200 * time.Millisecond
	cfg.HTTP.RespectRobots = false
	cfg.Concurrency.Workers = 2
	cfg.Retry.MaxAttempts = 1
	return cfg
}

func newTestCoordinator(cfg *model.Config) *Coordinator {
	return NewCoordinator(cfg, fetch.NewFetcher(cfg.HTTP))
}

func TestHarvest_CompleteAndTimedOutEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/factchecks/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, listingPage("/a", "/b"))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, detailPage("Says A", "January 5, 2024", "Jane Doe", "false"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	batch, err := newTestCoordinator(testConfig()).Harvest(context.Background(), server.URL+"/factchecks/list")
	require.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Equal(t, model.Record{
		Statement:     "Says A",
		SourceURL:     server.URL + "/a",
		PublishedDate: "2024-01-05",
		Source:        "Jane Doe",
		Label:         "false",
	}, batch[0])
	assert.Equal(t, model.DegradedRecord(server.URL+"/b"), batch[1], "record B should be degraded")
}

func TestHarvest_EmptyListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, listingPage())
	}))
	defer server.Close()

	batch, err := newTestCoordinator(testConfig()).Harvest(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestHarvest_ListingFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestCoordinator(testConfig()).Harvest(context.Background(), server.URL)

	var he *HarvestError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, StageListing, he.Stage)
	assert.Equal(t, fetch.ReasonHTTPStatus, fetch.ReasonOf(err), "expected wrapped http-status fetch error")
}

func TestHarvest_DetailFailuresDegradeOnlyTheirRecord(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, listingPage("/a", "/missing", "/c"))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, detailPage("Says A", "January 5, 2024", "Jane", "true"))
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, detailPage("Says C", "not a date", "John", "false"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	batch, err := newTestCoordinator(testConfig()).Harvest(context.Background(), server.URL+"/list")
	require.NoError(t, err)
	require.Len(t, batch, 3)

	assert.False(t, batch[0].IsDegraded(), "healthy pages must not be degraded")
	assert.False(t, batch[2].IsDegraded(), "healthy pages must not be degraded")
	assert.True(t, batch[1].IsDegraded(), "404 page should be degraded")
	assert.Equal(t, server.URL+"/missing", batch[1].SourceURL)
	assert.Equal(t, model.Absent, batch[2].PublishedDate, "unparseable date should only degrade the date")
	assert.Equal(t, "Says C", batch[2].Statement)
	assert.Equal(t, 1, model.Batch(batch).Degraded())
}

func TestHarvest_RunDeadlineKeepsCompletedRecords(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, listingPage("/fast", "/slow1", "/slow2", "/slow3"))
	})
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, detailPage("Says fast", "January 5, 2024", "Jane", "true"))
	})
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}
	mux.HandleFunc("/slow1", slow)
	mux.HandleFunc("/slow2", slow)
	mux.HandleFunc("/slow3", slow)
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig()
	cfg.HTTP.Timeout = 10 * time.Second
	cfg.Concurrency.Workers = 1

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	batch, err := newTestCoordinator(cfg).Harvest(ctx, server.URL+"/list")
	require.NoError(t, err)
	require.Len(t, batch, 4, "one record per URL")

	assert.False(t, batch[0].IsDegraded(), "record finished before the deadline must be kept")
	for i, r := range batch[1:] {
		assert.True(t, r.IsDegraded(), "record %d should be degraded after the deadline", i+1)
	}
}

func TestDiscover_Pagination(t *testing.T) {
	var page3Hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			_, _ = fmt.Fprint(w, listingPage("/a", "/b"))
		case "2":
			_, _ = fmt.Fprint(w, listingPage("/b", "/c"))
		case "3":
			page3Hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		default:
			assert.Failf(t, "unexpected page", "query %s", r.URL.RawQuery)
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Listing.Pages = 5

	urls, err := newTestCoordinator(cfg).Discover(context.Background(), server.URL+"/list")
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/a", server.URL + "/b", server.URL + "/c"}, urls)
	assert.Equal(t, int32(1), page3Hits.Load(), "pagination should stop after the failing page")
}

func TestDiscover_BaseURLOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, listingPage("/factchecks/a/"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Listing.BaseURL = "https://www.politifact.com"

	urls, err := newTestCoordinator(cfg).Discover(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.politifact.com/factchecks/a/"}, urls)
}

func TestPageURL(t *testing.T) {
	got, err := PageURL("https://www.politifact.com/factchecks/list/?category=income", 3)
	require.NoError(t, err)
	assert.Equal(t, "https://www.politifact.com/factchecks/list/?category=income&page=3", got)
}
