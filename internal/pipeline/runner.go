// Package pipeline runs one harvest: discover, harvest, merge, persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/merge"
	"github.com/ppiankov/factharvest/internal/metrics"
	"github.com/ppiankov/factharvest/internal/model"
	"github.com/ppiankov/factharvest/internal/sink"
	"github.com/ppiankov/factharvest/internal/store"
)

// ErrRunInProgress is returned when a run is already active in this
// process or, with a lock file, in another one
var ErrRunInProgress = errors.New("run already in progress")

// RunError is a run failure tagged with the stage it happened in
type RunError struct {
	Stage model.RunState
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed while %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Harvester discovers detail URLs and harvests them into a batch.
// harvest.Coordinator implements it.
type Harvester interface {
	Discover(ctx context.Context, listingURL string) ([]string, error)
	Collect(ctx context.Context, urls []string) model.Batch
}

// Runner executes pipeline runs one at a time
type Runner struct {
	cfg       *model.Config
	harvester Harvester
	store     store.HistoricalStore
	sink      sink.Sink
	metrics   *metrics.Metrics
	logger    *zap.Logger
	lock      *FileLock

	running sync.Mutex

	mu   sync.RWMutex
	last *model.RunOutcome

	now   func() time.Time
	newID func() string
}

// NewRunner wires a runner. m and logger may be nil.
func NewRunner(cfg *model.Config, h Harvester, st store.HistoricalStore, sk sink.Sink, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sk == nil {
		sk = sink.NopSink{}
	}

	r := &Runner{
		cfg:       cfg,
		harvester: h,
		store:     st,
		sink:      sk,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	if cfg.Run.LockFile != "" {
		r.lock = NewFileLock(cfg.Run.LockFile, cfg.Run.LockStaleAfter)
	}
	return r
}

// LastOutcome returns the outcome of the most recent finished run, or nil
func (r *Runner) LastOutcome() *model.RunOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil
	}
	out := *r.last
	return &out
}

// Run executes one run. A failed run returns its outcome (State failed)
// together with a *RunError. When another run is active it returns
// (nil, ErrRunInProgress) without doing anything.
func (r *Runner) Run(ctx context.Context, trigger model.Trigger) (*model.RunOutcome, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()

	if r.lock != nil {
		if err := r.lock.TryLock(); err != nil {
			if errors.Is(err, ErrLockHeld) {
				return nil, fmt.Errorf("%w: %w", ErrRunInProgress, err)
			}
			return nil, err
		}
		defer func() {
			if err := r.lock.Unlock(); err != nil {
				r.logger.Warn("release run lock", zap.Error(err))
			}
		}()
	}

	outcome := &model.RunOutcome{
		RunID:      r.newID(),
		Trigger:    trigger,
		StartedAt:  r.now(),
		ListingURL: r.cfg.Listing.URL,
	}
	logger := r.logger.With(zap.String("run_id", outcome.RunID), zap.String("trigger", string(trigger)))
	logger.Info("run started", zap.String("listing_url", outcome.ListingURL))

	err := r.execute(ctx, outcome, logger)

	outcome.FinishedAt = r.now()
	if err != nil {
		outcome.State = model.RunStateFailed
		outcome.Error = err.Error()
		var runErr *RunError
		if errors.As(err, &runErr) {
			outcome.Stage = runErr.Stage
		}
		logger.Error("run failed",
			zap.String("stage", string(outcome.Stage)),
			zap.Duration("duration", outcome.Duration()),
			zap.Error(err),
		)
	} else {
		outcome.State = model.RunStateDone
		logger.Info("run finished",
			zap.Int("harvested", outcome.RecordsHarvested),
			zap.Int("degraded", outcome.RecordsDegraded),
			zap.Int("appended", outcome.RecordsAppended),
			zap.Int("duplicates", outcome.Duplicates),
			zap.Int("corpus_size", outcome.CorpusSize),
			zap.Duration("duration", outcome.Duration()),
		)
	}
	r.metrics.ObserveRun(string(outcome.State), string(trigger), string(outcome.Stage), outcome.Duration(), outcome.FinishedAt)

	r.mu.Lock()
	saved := *outcome
	r.last = &saved
	r.mu.Unlock()

	return outcome, err
}

func (r *Runner) execute(ctx context.Context, outcome *model.RunOutcome, logger *zap.Logger) (err error) {
	stage := model.RunStateDiscovering
	defer func() {
		if p := recover(); p != nil {
			logger.Error("run panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = &RunError{Stage: stage, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	runCtx, cancelRun := context.WithTimeout(ctx, r.cfg.Run.Timeout)
	defer cancelRun()

	urls, err := r.harvester.Discover(runCtx, outcome.ListingURL)
	if err != nil {
		return &RunError{Stage: stage, Err: err}
	}
	outcome.URLsDiscovered = len(urls)

	stage = model.RunStateHarvesting
	batch := r.harvester.Collect(runCtx, urls)
	cancelRun()
	outcome.RecordsHarvested = len(batch)
	outcome.RecordsDegraded = batch.Degraded()
	r.metrics.ObserveHarvest(outcome.RecordsHarvested, outcome.RecordsDegraded)

	if r.cfg.Run.ArtifactDir != "" {
		path, err := store.WriteBatchArtifact(r.cfg.Run.ArtifactDir, outcome.RunID, outcome.StartedAt, batch)
		if err != nil {
			logger.Warn("batch artifact not written", zap.Error(err))
		} else {
			outcome.ArtifactPath = path
			logger.Info("batch artifact written", zap.String("path", path))
		}
	}

	// the run deadline may have expired; what was harvested is still persisted
	persistCtx, cancelPersist := context.WithTimeout(ctx, r.cfg.Run.PersistTimeout)
	defer cancelPersist()

	stage = model.RunStateMerging
	history, err := r.store.ReadAll(persistCtx)
	if err != nil {
		return &RunError{Stage: stage, Err: fmt.Errorf("read history: %w", err)}
	}
	result := merge.Merge(batch, history)
	outcome.RecordsAppended = len(result.Appended)
	outcome.Duplicates = result.Duplicates
	outcome.CorpusSize = len(result.Combined)

	// the corpus is only committed once the sink has taken the batch
	stage = model.RunStatePersisting
	if err := r.sink.Accept(persistCtx, batch); err != nil {
		return &RunError{Stage: stage, Err: fmt.Errorf("sink batch: %w", err)}
	}
	if err := r.store.WriteAll(persistCtx, result.Combined); err != nil {
		return &RunError{Stage: stage, Err: fmt.Errorf("write corpus: %w", err)}
	}
	r.metrics.ObserveMerge(outcome.RecordsAppended, outcome.Duplicates, outcome.CorpusSize)
	return nil
}
