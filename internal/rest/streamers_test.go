package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/config"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/metrics"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/rest"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/services"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/store"
)

type staticStatuses []services.StreamerStatus

func (s staticStatuses) Statuses() []services.StreamerStatus { return s }

type storeHistory struct{ store.HistoryStore }

func (h storeHistory) History(ctx context.Context, id string) (*domain.StreamerHistory, error) {
	return h.Get(ctx, id)
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	st := store.NewMemoryHistoryStore()
	h := domain.NewStreamerHistory("alice")
	h.AddStream("2024-03-09", domain.StreamRecord{
		StreamID:       "alice_1",
		EndTime:        time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC),
		Gifts:          []domain.GiftTotal{{GiftName: "Rose", GiftValue: 1, Quantity: 3}},
		TotalGiftValue: 3,
	})
	require.NoError(t, st.Create(context.Background(), h))

	since := time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC)
	r, _ := rest.NewServer(config.Config{HTTPAddr: ":0"}, metrics.New().Handler())
	rest.NewStreamerController(
		staticStatuses{
			{StreamerID: "alice", State: "live", LiveSince: &since},
			{StreamerID: "carol", State: "disconnected"},
		},
		storeHistory{st},
	).RegisterStreamerRoutes(r.Group(""))
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	r := newRouter(t)
	assert.Equal(t, http.StatusOK, get(r, "/health").Code)

	w := get(r, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "live_tracker_active_sessions")
}

func TestListStreamers(t *testing.T) {
	t.Parallel()

	w := get(newRouter(t), "/streamers")
	require.Equal(t, http.StatusOK, w.Code)

	var got []services.StreamerStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "live", got[0].State)
	require.NotNil(t, got[0].LiveSince)
	assert.Nil(t, got[1].LiveSince)
}

func TestGetHistory(t *testing.T) {
	t.Parallel()

	r := newRouter(t)

	w := get(r, "/streamers/alice/history")
	require.Equal(t, http.StatusOK, w.Code)
	var h domain.StreamerHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "alice", h.StreamerID)
	require.Len(t, h.History, 1)
	assert.Equal(t, int64(3), h.History[0].TotalGiftValue)

	w = get(r, "/streamers/alice/history?date=2024-03-09")
	require.Equal(t, http.StatusOK, w.Code)
	var day domain.DayBucket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &day))
	assert.Equal(t, int64(1), day.TotalStreams)

	assert.Equal(t, http.StatusNotFound, get(r, "/streamers/alice/history?date=2024-03-10").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/streamers/alice/history?date=09-03-2024").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/streamers/nobody/history").Code)
}
