package worker

import (
	"context"
	"errors"

	"github.com/ppiankov/factharvest/internal/model"
)

// ErrNotRun marks a URL whose job never started
var ErrNotRun = errors.New("job not run")

// RecordHarvester fetches and extracts one detail page. On failure it
// returns the degraded record for url together with the error.
type RecordHarvester interface {
	HarvestRecord(ctx context.Context, url string) (model.Record, error)
}

// RecordJob harvests the detail page at URL
type RecordJob struct {
	Index     int
	URL       string
	Harvester RecordHarvester
}

// Execute executes the record job
func (j *RecordJob) Execute(ctx context.Context) Result {
	record, err := j.Harvester.HarvestRecord(ctx, j.URL)
	if err != nil && record.SourceURL == "" {
		record = model.DegradedRecord(j.URL)
	}
	return &RecordResult{
		Index:  j.Index,
		URL:    j.URL,
		Record: record,
		Error:  err,
	}
}

// RecordResult is the outcome of one record job
type RecordResult struct {
	Index  int
	URL    string
	Record model.Record
	Error  error
	// Skipped is set when the job never ran because the context was done
	Skipped bool
}

// GetError returns the error from the record result
func (r *RecordResult) GetError() error {
	return r.Error
}

// BatchProcessor harvests detail URLs on a bounded pool
type BatchProcessor struct {
	harvester   RecordHarvester
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(harvester RecordHarvester, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		harvester:   harvester,
		concurrency: concurrency,
	}
}

// ProcessURLs harvests every URL and returns one result per URL, indexed
// like urls. URLs that were never harvested before ctx ended get a skipped
// result holding the degraded record.
func (b *BatchProcessor) ProcessURLs(ctx context.Context, urls []string) []*RecordResult {
	results := make([]*RecordResult, len(urls))
	if len(urls) == 0 {
		return results
	}

	workers := b.concurrency
	if workers > len(urls) {
		workers = len(urls)
	}

	pool := NewPool(ctx, workers)
	pool.Start()

	for i, url := range urls {
		if !pool.Submit(&RecordJob{Index: i, URL: url, Harvester: b.harvester}) {
			break
		}
	}

	for _, result := range pool.Wait() {
		rr := result.(*RecordResult)
		results[rr.Index] = rr
	}

	for i, url := range urls {
		if results[i] != nil {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = ErrNotRun
		}
		results[i] = &RecordResult{
			Index:   i,
			URL:     url,
			Record:  model.DegradedRecord(url),
			Error:   err,
			Skipped: true,
		}
	}

	return results
}
