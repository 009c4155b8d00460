package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	"github.com/ppiankov/factharvest/internal/model"
	"github.com/ppiankov/factharvest/internal/util"
	"github.com/ppiankov/factharvest/internal/worker"
)

// maxRedirects caps redirect chains per request
const maxRedirects = 3

// PageFetcher retrieves the HTML text of a page
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Result contains the fetched HTML and metadata
type Result struct {
	HTML      string
	Meta      model.FetchMeta
	FinalURL  string
	FromCache bool
}

// Fetcher performs a single HTTP GET per call. It never retries; callers
// choose a retry policy by wrapping it in Retrying.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithLimiter waits on the per-domain limiter before each request
func WithLimiter(l *worker.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRobots enforces robots.txt using the fetcher's own HTTP client
func WithRobots() Option {
	return func(f *Fetcher) { f.robots = util.NewRobotsChecker(f.httpClient, f.userAgent) }
}

// NewFetcher creates a Fetcher from the HTTP configuration
func NewFetcher(cfg model.HTTPConfig, opts ...Option) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via http.insecure_tls
	}

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FromConfig builds the fetcher used by a run: rate limited per domain and
// robots-aware when enabled.
func FromConfig(cfg *model.Config) *Fetcher {
	opts := []Option{
		WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)),
	}
	if cfg.HTTP.RespectRobots {
		opts = append(opts, WithRobots())
	}
	return NewFetcher(cfg.HTTP, opts...)
}

// Fetch retrieves the page at rawURL. Every failure is a *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, &Error{URL: rawURL, Reason: ReasonNetwork, Cause: err, permanent: true}
		}
		if !allowed {
			return nil, &Error{URL: rawURL, Reason: ReasonRobots}
		}
		if f.limiter != nil {
			f.limiter.ApplyCrawlDelay(rawURL, delay)
		}
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, classify(rawURL, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Reason: ReasonNetwork, Cause: fmt.Errorf("create request: %w", err), permanent: true}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	meta := model.FetchMeta{
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
		Headers:      make(map[string]string),
	}
	for _, key := range []string{"Content-Length", "Server", "Cache-Control", "Retry-After"} {
		if val := resp.Header.Get(key); val != "" {
			meta.Headers[key] = val
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &Error{URL: rawURL, Reason: ReasonHTTPStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, classify(rawURL, fmt.Errorf("read body: %w", err))
	}

	return &Result{
		HTML:     string(body),
		Meta:     meta,
		FinalURL: resp.Request.URL.String(),
	}, nil
}
