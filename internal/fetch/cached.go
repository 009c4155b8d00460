package fetch

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/factharvest/internal/cache"
)

// Cached serves pages from a cache and coalesces concurrent fetches of the
// same URL. Only successful fetches are stored. Each caller stops waiting
// when its own context ends; the shared fetch keeps going for the others
// and is bounded by the HTTP timeout.
type Cached struct {
	next   PageFetcher
	cache  cache.Cache
	group  singleflight.Group
	logger *zap.Logger
}

// NewCached wraps next with the page cache c
func NewCached(next PageFetcher, c cache.Cache, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, cache: c, logger: logger}
}

type cachedPage struct {
	HTML     string `json:"html"`
	FinalURL string `json:"final_url"`
}

func (c *Cached) Fetch(ctx context.Context, url string) (*Result, error) {
	key := cache.PageKey(url)
	if raw, ok := c.cache.Get(key); ok {
		var page cachedPage
		if err := json.Unmarshal(raw, &page); err == nil {
			return &Result{HTML: page.HTML, FinalURL: page.FinalURL, FromCache: true}, nil
		}
		_ = c.cache.Delete(key)
	}

	// the shared fetch must not end with the caller that started it
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		result, err := c.next.Fetch(fetchCtx, url)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(cachedPage{HTML: result.HTML, FinalURL: result.FinalURL})
		if err == nil {
			err = c.cache.Set(key, raw, 0)
		}
		if err != nil {
			c.logger.Warn("page cache write failed", zap.String("url", url), zap.Error(err))
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, classify(url, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}
