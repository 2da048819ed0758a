package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/internal/pipeline"
	"github.com/sells-group/reengage-cli/internal/store"
)

type fakeRunner struct {
	mu       sync.Mutex
	started  chan struct{}
	release  chan struct{}
	batches  int
	triggers []string
	outcome  model.DealOutcome
	dealErr  error
	dryRun   bool
	deals    int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (f *fakeRunner) RunBatch(_ context.Context, opts pipeline.BatchOptions) (*model.BatchSummary, error) {
	f.mu.Lock()
	f.batches++
	f.triggers = append(f.triggers, opts.Trigger)
	f.mu.Unlock()
	f.started <- struct{}{}
	<-f.release
	return &model.BatchSummary{Total: 1}, nil
}

func (f *fakeRunner) ProcessDealByID(_ context.Context, id int64, dryRun bool) (model.DealOutcome, error) {
	f.mu.Lock()
	f.dryRun = dryRun
	f.deals++
	f.mu.Unlock()
	if f.dealErr != nil {
		return model.DealOutcome{DealID: id}, f.dealErr
	}
	out := f.outcome
	out.DealID = id
	return out, nil
}

type fakeRuns struct {
	runs   []model.Run
	err    error
	filter store.RunFilter
}

func (f *fakeRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	f.filter = filter
	return f.runs, f.err
}

type fakeCache struct {
	cleared int
	err     error
}

func (f *fakeCache) Clear(context.Context) error {
	f.cleared++
	return f.err
}

func newTestServer() (*server, *fakeRunner, *fakeRuns, *fakeCache) {
	runner := newFakeRunner()
	runs := &fakeRuns{}
	cache := &fakeCache{}
	return &server{ctx: context.Background(), runner: runner, runs: runs, cache: cache}, runner, runs, cache
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer()

	rr := do(t, buildRouter(s), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer()

	rr := do(t, buildRouter(s), http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestTriggerRun_AcceptedThenConflict(t *testing.T) {
	s, runner, _, _ := newTestServer()
	h := buildRouter(s)

	first := do(t, h, http.MethodPost, "/runs")
	require.Equal(t, http.StatusAccepted, first.Code)

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not start")
	}

	second := do(t, h, http.MethodPost, "/runs")
	assert.Equal(t, http.StatusConflict, second.Code)

	close(runner.release)
	s.wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.batches)
	assert.Equal(t, []string{"http"}, runner.triggers)
}

func TestTriggerRun_AllowedAgainAfterFinish(t *testing.T) {
	s, runner, _, _ := newTestServer()
	close(runner.release)

	require.True(t, s.startBatch("cron"))
	<-runner.started
	s.wait()

	require.True(t, s.startBatch("cron"))
	<-runner.started
	s.wait()

	assert.Equal(t, 2, runner.batches)
}

func TestListRuns(t *testing.T) {
	s, _, runs, _ := newTestServer()
	runs.runs = []model.Run{{ID: "run-1", Status: model.RunStatusComplete, Trigger: "cron"}}

	rr := do(t, buildRouter(s), http.MethodGet, "/runs?status=complete&limit=5")

	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].ID)
	assert.Equal(t, store.RunFilter{Status: model.RunStatusComplete, Limit: 5}, runs.filter)
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	s, _, _, _ := newTestServer()

	rr := do(t, buildRouter(s), http.MethodGet, "/runs")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestListRuns_BadLimit(t *testing.T) {
	s, _, _, _ := newTestServer()

	rr := do(t, buildRouter(s), http.MethodGet, "/runs?limit=abc")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListRuns_StoreError(t *testing.T) {
	s, _, runs, _ := newTestServer()
	runs.err = errors.New("db down")

	rr := do(t, buildRouter(s), http.MethodGet, "/runs")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestProcessDeal(t *testing.T) {
	s, runner, _, _ := newTestServer()
	runner.outcome = model.DealOutcome{Status: model.OutcomeDryRun, Cadence: "Retomada", Step: 2}

	rr := do(t, buildRouter(s), http.MethodPost, "/deals/42/process?dry_run=true")

	require.Equal(t, http.StatusOK, rr.Code)
	var out model.DealOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, int64(42), out.DealID)
	assert.Equal(t, model.OutcomeDryRun, out.Status)
	assert.True(t, runner.dryRun)
}

func TestProcessDeal_InvalidID(t *testing.T) {
	s, _, _, _ := newTestServer()

	rr := do(t, buildRouter(s), http.MethodPost, "/deals/abc/process")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProcessDeal_FetchError(t *testing.T) {
	s, runner, _, _ := newTestServer()
	runner.dealErr = errors.New("pipeline: fetch deal: not found")

	rr := do(t, buildRouter(s), http.MethodPost, "/deals/9/process")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "fetch deal")
}

func TestProcessDeal_ConflictWhileBatchRuns(t *testing.T) {
	s, runner, _, _ := newTestServer()
	h := buildRouter(s)

	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/runs").Code)
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not start")
	}

	rr := do(t, h, http.MethodPost, "/deals/42/process")
	assert.Equal(t, http.StatusConflict, rr.Code)

	close(runner.release)
	s.wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Zero(t, runner.deals)
}

func TestProcessDeal_StoreLockHeld(t *testing.T) {
	s, runner, _, _ := newTestServer()
	runner.dealErr = pipeline.ErrBatchLocked

	rr := do(t, buildRouter(s), http.MethodPost, "/deals/42/process")

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "already running")
}

func TestProcessDeal_ReleasesServerLock(t *testing.T) {
	s, runner, _, _ := newTestServer()
	close(runner.release)
	h := buildRouter(s)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/deals/42/process").Code)

	require.True(t, s.startBatch("http"))
	<-runner.started
	s.wait()
}

func TestClearFieldCache(t *testing.T) {
	s, _, _, cache := newTestServer()

	rr := do(t, buildRouter(s), http.MethodDelete, "/cache/fieldmap")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, cache.cleared)
}

func TestClearFieldCache_Error(t *testing.T) {
	s, _, _, cache := newTestServer()
	cache.err = errors.New("boom")

	rr := do(t, buildRouter(s), http.MethodDelete, "/cache/fieldmap")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	s, _, _, _ := newTestServer()

	rr := do(t, buildRouter(s), http.MethodGet, "/nope")

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
