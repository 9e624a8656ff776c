package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/metrics"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/services"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/store"
)

const day = "2024-03-09"

var fastMerge = services.MergeConfig{MaxAttempts: 10, InitialBackoff: time.Millisecond}

func streamRecord(id string, value int64, quantity int64) domain.StreamRecord {
	return domain.StreamRecord{
		StreamID:       id,
		EndTime:        time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC),
		Gifts:          []domain.GiftTotal{{GiftName: "Rose", GiftValue: 1, Quantity: quantity}},
		TotalGiftValue: value,
	}
}

// racingStore lets another writer commit right before the first n saves.
type racingStore struct {
	*store.MemoryHistoryStore
	races atomic.Int32
}

func (s *racingStore) Save(ctx context.Context, h *domain.StreamerHistory) error {
	if s.races.Add(-1) >= 0 {
		other, err := s.MemoryHistoryStore.Get(ctx, h.StreamerID)
		if err != nil {
			return err
		}
		other.AddStream(day, streamRecord(fmt.Sprintf("other_%d", s.races.Load()), 5, 5))
		if err := s.MemoryHistoryStore.Save(ctx, other); err != nil {
			return err
		}
	}
	return s.MemoryHistoryStore.Save(ctx, h)
}

// brokenStore fails every write.
type brokenStore struct {
	*store.MemoryHistoryStore
	writes atomic.Int32
}

func (s *brokenStore) Create(context.Context, *domain.StreamerHistory) error {
	s.writes.Add(1)
	return errors.New("connection reset")
}

func (s *brokenStore) Save(context.Context, *domain.StreamerHistory) error {
	s.writes.Add(1)
	return errors.New("connection reset")
}

func TestHistoryMerger_TwoRecordsSameDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemoryHistoryStore()
	m := services.NewHistoryMerger(st, fastMerge, metrics.New(), zerolog.Nop())

	require.NoError(t, m.Merge(ctx, "alice", day, streamRecord("alice_1", 3, 3)))
	require.NoError(t, m.Merge(ctx, "alice", day, streamRecord("alice_2", 7, 7)))

	h, err := m.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, h.History, 1)
	bucket := h.History[0]
	assert.Equal(t, day, bucket.Date)
	assert.Equal(t, int64(2), bucket.TotalStreams)
	assert.Equal(t, int64(10), bucket.TotalGiftValue)
	assert.Equal(t, int64(10), bucket.TotalGiftsReceived)
	require.NoError(t, h.Verify())
}

func TestHistoryMerger_ConflictIsReapplied(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := store.NewMemoryHistoryStore()
	require.NoError(t, inner.Create(ctx, domain.NewStreamerHistory("alice")))
	st := &racingStore{MemoryHistoryStore: inner}
	st.races.Store(1)

	met := metrics.New()
	m := services.NewHistoryMerger(st, fastMerge, met, zerolog.Nop())
	require.NoError(t, m.Merge(ctx, "alice", day, streamRecord("alice_1", 3, 3)))

	h, err := inner.Get(ctx, "alice")
	require.NoError(t, err)
	bucket := h.Day(day)
	require.NotNil(t, bucket)
	assert.Equal(t, int64(2), bucket.TotalStreams)
	assert.True(t, h.HasStream(day, "alice_1"))
	assert.Equal(t, int64(8), bucket.TotalGiftValue)
	require.NoError(t, h.Verify())
	assert.Equal(t, float64(1), testutil.ToFloat64(met.MergeConflicts))
}

func TestHistoryMerger_ConcurrentMergesKeepEveryRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemoryHistoryStore()
	m := services.NewHistoryMerger(st, fastMerge, metrics.New(), zerolog.Nop())

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- m.Merge(ctx, "alice", day, streamRecord(fmt.Sprintf("alice_%d", i), int64(i), int64(i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	h, err := st.Get(ctx, "alice")
	require.NoError(t, err)
	bucket := h.Day(day)
	require.NotNil(t, bucket)
	assert.Equal(t, int64(writers), bucket.TotalStreams)
	assert.Equal(t, int64(28), bucket.TotalGiftValue)
	require.NoError(t, h.Verify())
}

func TestHistoryMerger_ExhaustionReturnsStorageError(t *testing.T) {
	t.Parallel()

	st := &brokenStore{MemoryHistoryStore: store.NewMemoryHistoryStore()}
	met := metrics.New()
	m := services.NewHistoryMerger(st, services.MergeConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}, met, zerolog.Nop())

	err := m.Merge(context.Background(), "alice", day, streamRecord("alice_1", 3, 3))
	require.Error(t, err)
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "alice", se.Streamer)
	assert.Equal(t, day, se.Date)
	assert.Equal(t, int32(3), st.writes.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(met.MergeFailures))
}

func TestHistoryMerger_ReplayIsSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemoryHistoryStore()
	m := services.NewHistoryMerger(st, fastMerge, metrics.New(), zerolog.Nop())

	rec := streamRecord("alice_1", 3, 3)
	require.NoError(t, m.Merge(ctx, "alice", day, rec))
	require.NoError(t, m.Merge(ctx, "alice", day, rec))

	h, err := st.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.Day(day).TotalStreams)
}

func TestHistoryMerger_InvalidInputIsNotRetried(t *testing.T) {
	t.Parallel()

	st := &brokenStore{MemoryHistoryStore: store.NewMemoryHistoryStore()}
	m := services.NewHistoryMerger(st, fastMerge, metrics.New(), zerolog.Nop())

	err := m.Merge(context.Background(), "alice", day, streamRecord("", 1, 1))
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int32(0), st.writes.Load())
}
