package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factharvest/internal/metrics"
	"github.com/ppiankov/factharvest/internal/model"
	"github.com/ppiankov/factharvest/internal/store"
)

type fakeHarvester struct {
	urls        []string
	discoverErr error
	records     map[string]model.Record
	block       chan struct{} // when set, Collect waits on it or ctx
	started     chan struct{} // closed when Collect begins
	panicMsg    string
}

func (h *fakeHarvester) Discover(ctx context.Context, listingURL string) ([]string, error) {
	if h.discoverErr != nil {
		return nil, h.discoverErr
	}
	return h.urls, nil
}

func (h *fakeHarvester) Collect(ctx context.Context, urls []string) model.Batch {
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	if h.started != nil {
		close(h.started)
	}
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
		}
	}
	batch := make(model.Batch, len(urls))
	for i, u := range urls {
		if r, ok := h.records[u]; ok && ctx.Err() == nil {
			batch[i] = r
		} else {
			batch[i] = model.DegradedRecord(u)
		}
	}
	return batch
}

type memoryStore struct {
	mu       sync.Mutex
	rows     []model.Row
	readErr  error
	writeErr error
	writeCtx error
}

func (s *memoryStore) ReadAll(ctx context.Context) ([]model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return append([]model.Row(nil), s.rows...), nil
}

func (s *memoryStore) WriteAll(ctx context.Context, rows []model.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCtx = ctx.Err()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.rows = append([]model.Row(nil), rows...)
	return nil
}

func (s *memoryStore) Close() error { return nil }

type recordingSink struct {
	batches []model.Batch
	err     error
}

func (s *recordingSink) Accept(ctx context.Context, batch model.Batch) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func record(statement, url string) model.Record {
	return model.Record{Statement: statement, SourceURL: url, PublishedDate: "2024-01-05", Source: "Jane", Label: "false"}
}

func testConfig(t *testing.T) *model.Config {
	cfg := model.DefaultConfig()
	cfg.Listing.URL = "https://site/list"
	cfg.Run.ArtifactDir = t.TempDir()
	cfg.Run.LockFile = ""
	cfg.Run.Timeout = time.Second
	cfg.Run.PersistTimeout = time.Second
	return cfg
}

func TestRun_MergesIntoHistory(t *testing.T) {
	cfg := testConfig(t)
	h := &fakeHarvester{
		urls: []string{"https://site/a", "https://site/b"},
		records: map[string]model.Record{
			"https://site/a": record("X", "https://site/a"),
			"https://site/b": record("Y", "https://site/b"),
		},
	}
	st := &memoryStore{rows: []model.Row{record("X", "https://site/a").Row()}}
	sk := &recordingSink{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := NewRunner(cfg, h, st, sk, m, nil)
	r.newID = func() string { return "0123456789abcdef" }
	r.now = func() time.Time { return time.Date(2024, time.January, 5, 6, 0, 0, 0, time.UTC) }

	outcome, err := r.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, model.RunStateDone, outcome.State)
	assert.Equal(t, model.TriggerManual, outcome.Trigger)
	assert.Equal(t, 2, outcome.URLsDiscovered)
	assert.Equal(t, 2, outcome.RecordsHarvested)
	assert.Equal(t, 1, outcome.RecordsAppended)
	assert.Equal(t, 1, outcome.Duplicates)
	assert.Equal(t, 2, outcome.CorpusSize)

	require.Len(t, st.rows, 2)
	assert.Equal(t, "Y", st.rows[1].Statement)
	require.Len(t, sk.batches, 1, "sink should receive the whole batch once")
	assert.Len(t, sk.batches[0], 2)

	wantArtifact := filepath.Join(cfg.Run.ArtifactDir, "scraped_data_2024-01-05_01234567.csv")
	assert.Equal(t, wantArtifact, outcome.ArtifactPath)
	rows, err := readArtifact(wantArtifact)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("done", "manual")))
	last := r.LastOutcome()
	require.NotNil(t, last)
	assert.Equal(t, outcome.RunID, last.RunID)
}

func TestRun_IdempotentRerun(t *testing.T) {
	cfg := testConfig(t)
	h := &fakeHarvester{
		urls:    []string{"https://site/a"},
		records: map[string]model.Record{"https://site/a": record("X", "https://site/a")},
	}
	st := &memoryStore{}
	r := NewRunner(cfg, h, st, nil, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := r.Run(context.Background(), model.TriggerCron)
		require.NoError(t, err, "run %d", i)
	}
	assert.Len(t, st.rows, 1, "re-running must not grow the corpus")
}

func TestRun_StageFailures(t *testing.T) {
	boom := errors.New("boom")
	history := []model.Row{record("X", "https://site/a").Row()}
	harvesting := func() *fakeHarvester {
		return &fakeHarvester{
			urls:    []string{"https://site/b"},
			records: map[string]model.Record{"https://site/b": record("Y", "https://site/b")},
		}
	}

	tests := []struct {
		name      string
		harvester *fakeHarvester
		store     *memoryStore
		sink      *recordingSink
		stage     model.RunState
	}{
		{"listing", &fakeHarvester{discoverErr: boom}, &memoryStore{rows: history}, &recordingSink{}, model.RunStateDiscovering},
		{"read history", &fakeHarvester{}, &memoryStore{readErr: boom}, &recordingSink{}, model.RunStateMerging},
		{"write corpus", &fakeHarvester{}, &memoryStore{writeErr: boom}, &recordingSink{}, model.RunStatePersisting},
		{"sink", harvesting(), &memoryStore{rows: history}, &recordingSink{err: boom}, model.RunStatePersisting},
		{"panic", &fakeHarvester{panicMsg: "selector exploded"}, &memoryStore{rows: history}, &recordingSink{}, model.RunStateHarvesting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := append([]model.Row(nil), tt.store.rows...)
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			r := NewRunner(testConfig(t), tt.harvester, tt.store, tt.sink, m, nil)

			outcome, err := r.Run(context.Background(), model.TriggerHTTP)

			var runErr *RunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, tt.stage, runErr.Stage)
			if tt.harvester.panicMsg == "" {
				assert.ErrorIs(t, err, boom)
			}
			require.NotNil(t, outcome)
			assert.Equal(t, model.RunStateFailed, outcome.State)
			assert.Equal(t, tt.stage, outcome.Stage)
			assert.NotEmpty(t, outcome.Error)
			assert.Equal(t, float64(1), testutil.ToFloat64(m.StageFailuresTotal.WithLabelValues(string(tt.stage))))
			assert.Equal(t, before, tt.store.rows, "a failed run must leave the corpus untouched")
		})
	}
}

func TestRun_StoreFailureLeavesArtifact(t *testing.T) {
	cfg := testConfig(t)
	h := &fakeHarvester{
		urls:    []string{"https://site/a"},
		records: map[string]model.Record{"https://site/a": record("X", "https://site/a")},
	}
	r := NewRunner(cfg, h, &memoryStore{writeErr: errors.New("disk full")}, nil, nil, nil)

	outcome, err := r.Run(context.Background(), model.TriggerManual)
	require.Error(t, err)
	require.NotEmpty(t, outcome.ArtifactPath, "artifact should be written before the merge")
	assert.FileExists(t, outcome.ArtifactPath)
}

func TestRun_ArtifactFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.Run.ArtifactDir = filepath.Join(blocker, "artifacts")

	h := &fakeHarvester{urls: []string{"https://site/a"}}
	outcome, err := NewRunner(cfg, h, &memoryStore{}, nil, nil, nil).Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Empty(t, outcome.ArtifactPath)
	assert.Equal(t, 1, outcome.CorpusSize)
}

func TestRun_DeadlinePersistsWhatWasHarvested(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Timeout = 50 * time.Millisecond
	h := &fakeHarvester{
		urls:    []string{"https://site/a", "https://site/b"},
		records: map[string]model.Record{"https://site/a": record("X", "https://site/a")},
		block:   make(chan struct{}),
	}
	st := &memoryStore{}

	outcome, err := NewRunner(cfg, h, st, nil, nil, nil).Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.NoError(t, st.writeCtx, "persist context should outlive the run deadline")
	assert.Len(t, st.rows, 2)
	assert.Equal(t, 2, outcome.RecordsDegraded)
}

func TestRun_ConcurrentRunIsRejected(t *testing.T) {
	cfg := testConfig(t)
	h := &fakeHarvester{
		urls:    []string{"https://site/a"},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	r := NewRunner(cfg, h, &memoryStore{}, nil, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), model.TriggerCron)
		done <- err
	}()

	select {
	case <-h.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	outcome, err := r.Run(context.Background(), model.TriggerHTTP)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Nil(t, outcome)

	close(h.block)
	assert.NoError(t, <-done, "first run failed")
}

func TestRun_LockFileHeldByAnotherProcess(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.LockFile = filepath.Join(t.TempDir(), "run.lock")
	cfg.Run.LockStaleAfter = time.Hour

	other := NewFileLock(cfg.Run.LockFile, time.Hour)
	require.NoError(t, other.TryLock())

	r := NewRunner(cfg, &fakeHarvester{}, &memoryStore{}, nil, nil, nil)
	_, err := r.Run(context.Background(), model.TriggerManual)
	assert.ErrorIs(t, err, ErrRunInProgress)

	require.NoError(t, other.Unlock())
	_, err = r.Run(context.Background(), model.TriggerManual)
	assert.NoError(t, err, "run after release failed")
	assert.NoFileExists(t, cfg.Run.LockFile, "lock file should be removed after the run")
}

func readArtifact(path string) ([]model.Row, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return store.DecodeRows(strings.NewReader(string(raw)))
}
