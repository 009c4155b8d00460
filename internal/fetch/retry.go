package fetch

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/model"
)

// fetchSleepFunc waits between attempts; tests replace it
var fetchSleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrying retries transient failures of the wrapped fetcher with
// exponential backoff
type Retrying struct {
	next         PageFetcher
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	logger       *zap.Logger
}

// NewRetrying wraps next with the configured retry policy
func NewRetrying(next PageFetcher, cfg model.RetryConfig, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retrying{
		next:         next,
		maxAttempts:  cfg.MaxAttempts,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		multiplier:   2.0,
		logger:       logger,
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 1
	}
	if r.initialDelay <= 0 {
		r.initialDelay = 100 * time.Millisecond
	}
	if r.maxDelay <= 0 {
		r.maxDelay = 30 * time.Second
	}
	return r
}

// Fetch calls the wrapped fetcher until it succeeds, fails permanently,
// runs out of attempts, or ctx is done. The last error is returned as is.
func (r *Retrying) Fetch(ctx context.Context, url string) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, err := r.next.Fetch(ctx, url)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableFetchError(err) || attempt == r.maxAttempts || ctx.Err() != nil {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := fetchSleepFunc(ctx, delay); sleepErr != nil {
			break
		}
	}
	return nil, lastErr
}

func (r *Retrying) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(r.initialDelay) * math.Pow(r.multiplier, float64(attempt-1)))
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	return delay
}

// isRetryableFetchError reports whether err is a transient fetch failure
func isRetryableFetchError(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Retryable()
}
