package service

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ runRecorder = (*MetricsService)(nil)

func TestMetricsServiceObserveRun(t *testing.T) {
	svc := NewMetricsService()

	svc.ObserveRun(RunOutcomeFinished, 2*time.Second, 40, 92.5)
	svc.ObserveRun(RunOutcomeRequeued, time.Second, 0, 0)
	svc.ObserveRun(RunOutcomeFailed, time.Second, 0, 0)

	snap := svc.Snapshot()
	assert.Equal(t, uint64(1), snap.RunsFinished)
	assert.Equal(t, uint64(1), snap.RunsFailed)
	assert.Equal(t, uint64(1), snap.RunsRequeued)
	assert.Equal(t, 40, snap.LastRunGenerations)
	assert.InDelta(t, 92.5, snap.LastRunBestFitness, 0.001)
	assert.Greater(t, snap.AverageRunDurationMs, 0.0)
}

func TestMetricsServiceCacheRatio(t *testing.T) {
	svc := NewMetricsService()

	svc.RecordCacheOperation(true, time.Millisecond)
	svc.RecordCacheOperation(true, time.Millisecond)
	svc.RecordCacheOperation(false, time.Millisecond)

	snap := svc.Snapshot()
	assert.Equal(t, uint64(2), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.001)
}

func TestMetricsServiceHandlerServesRegistry(t *testing.T) {
	svc := NewMetricsService()
	svc.ObserveHTTPRequest("GET", "/api/v1/schedule/defaults", 200, 5*time.Millisecond)
	svc.ObserveRun(RunOutcomeFinished, time.Second, 10, 80)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	svc.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, "rota_runs_total")
	assert.Contains(t, body, "rota_run_best_fitness")
	assert.Contains(t, body, "goroutines_total")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var svc *MetricsService

	svc.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	svc.ObserveRun(RunOutcomeFinished, time.Second, 1, 1)
	svc.RecordCacheOperation(true, time.Millisecond)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 503, rec.Code)

	assert.Zero(t, svc.Snapshot().RunsFinished)
}
