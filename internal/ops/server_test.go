package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dwellops/internal/config"
	"dwellops/internal/notify"
	"dwellops/internal/types"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.err
}

type mockStatsStore struct {
	counts map[types.NotificationStatus]int64
}

func (m *mockStatsStore) CountByStatus(context.Context) (map[types.NotificationStatus]int64, error) {
	return m.counts, nil
}

func opsTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestServer(db *mockPinger, stats *notify.StatsService) *Server {
	return NewServer(config.OpsConfig{Enabled: true, Port: "0"}, db, stats, opsTestLogger())
}

func emptyStatsService() *notify.StatsService {
	return notify.NewStatsService(&mockStatsStore{}, nil, config.StatsConfig{}, opsTestLogger())
}

func TestHealthz_OK(t *testing.T) {
	srv := newTestServer(&mockPinger{}, emptyStatsService())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "ok", resp["database"])
}

func TestHealthz_DatabaseUnreachable(t *testing.T) {
	srv := newTestServer(&mockPinger{err: errors.New("connection refused")}, emptyStatsService())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	assert.Equal(t, "unreachable", resp["database"])
}

func TestStats_BeforeFirstCollect(t *testing.T) {
	srv := newTestServer(&mockPinger{}, emptyStatsService())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no stats collected yet")
}

func TestStats_ReturnsLatestObservation(t *testing.T) {
	stats := notify.NewStatsService(&mockStatsStore{counts: map[types.NotificationStatus]int64{
		types.NotificationPending: 3,
		types.NotificationSent:    120,
		types.NotificationFailed:  1,
	}}, nil, config.StatsConfig{PendingWarnThreshold: 1000, FailedWarnThreshold: 100}, opsTestLogger())

	observedAt := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	_, err := stats.Collect(context.Background(), observedAt)
	require.NoError(t, err)

	srv := newTestServer(&mockPinger{}, stats)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got notify.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 3, got.Pending)
	assert.EqualValues(t, 120, got.Sent)
	assert.EqualValues(t, 1, got.Failed)
	assert.True(t, got.ObservedAt.Equal(observedAt))
}

func TestRouter_UnknownPath(t *testing.T) {
	srv := newTestServer(&mockPinger{}, emptyStatsService())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
