package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factharvest/internal/metrics"
	"github.com/ppiankov/factharvest/internal/model"
	"github.com/ppiankov/factharvest/internal/pipeline"
)

type fakeRunner struct {
	mu       sync.Mutex
	last     *model.RunOutcome
	err      error
	release  chan struct{}
	started  chan struct{}
	triggers []model.Trigger
}

func (r *fakeRunner) Run(ctx context.Context, trigger model.Trigger) (*model.RunOutcome, error) {
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		<-r.release
	}

	outcome := &model.RunOutcome{RunID: "run-1", Trigger: trigger, State: model.RunStateDone}
	if r.err != nil {
		outcome.State = model.RunStateFailed
		outcome.Error = r.err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger)
	r.last = outcome
	return outcome, r.err
}

func (r *fakeRunner) LastOutcome() *model.RunOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func newTestServer(r Runner) *Server {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	return New(model.ServerConfig{Addr: ":0"}, r, reg, nil)
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(&fakeRunner{}), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	w := do(t, newTestServer(&fakeRunner{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "factharvest_"), "expected factharvest metrics")
}

func TestLastRun_NoneYet(t *testing.T) {
	w := do(t, newTestServer(&fakeRunner{}), http.MethodGet, "/api/v1/runs/last")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartRun_Wait(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(runner)

	w := do(t, s, http.MethodPost, "/api/v1/runs?wait=true")
	require.Equal(t, http.StatusOK, w.Code)

	var outcome model.RunOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, model.TriggerHTTP, outcome.Trigger)
	assert.Equal(t, model.RunStateDone, outcome.State)

	w = do(t, s, http.MethodGet, "/api/v1/runs/last")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"run-1"`)
}

func TestStartRun_WaitFailed(t *testing.T) {
	runner := &fakeRunner{err: &pipeline.RunError{Stage: model.RunStatePersisting, Err: errors.New("disk full")}}

	w := do(t, newTestServer(runner), http.MethodPost, "/api/v1/runs?wait=true")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"failed"`)
}

func TestStartRun_WaitInProgressElsewhere(t *testing.T) {
	runner := &fakeRunner{err: pipeline.ErrRunInProgress}

	w := do(t, newTestServer(runner), http.MethodPost, "/api/v1/runs?wait=true")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartRun_BackgroundAndConflict(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{}), started: make(chan struct{})}
	s := newTestServer(runner)
	defer s.Close()

	w := do(t, s, http.MethodPost, "/api/v1/runs")
	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("background run never started")
	}

	w = do(t, s, http.MethodPost, "/api/v1/runs")
	assert.Equal(t, http.StatusConflict, w.Code)

	close(runner.release)
	require.Eventually(t, func() bool { return runner.LastOutcome() != nil }, 2*time.Second, 10*time.Millisecond)
}
