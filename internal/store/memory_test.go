package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/store"
)

func record(id string, end time.Time) domain.StreamRecord {
	return domain.StreamRecord{StreamID: id, EndTime: end, TotalGiftValue: 10}
}

func TestMemoryHistoryStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryHistoryStore()
	_, err := s.Get(context.Background(), "alice")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryHistoryStore_CreateThenSave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryHistoryStore()

	h := domain.NewStreamerHistory("alice")
	require.NoError(t, s.Create(ctx, h))
	assert.Equal(t, int64(1), h.Version)

	require.ErrorIs(t, s.Create(ctx, domain.NewStreamerHistory("alice")), domain.ErrConflict)

	h.AddStream("2024-03-09", record("a_1", time.Now()))
	require.NoError(t, s.Save(ctx, h))
	assert.Equal(t, int64(2), h.Version)

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, got.History, 1)
	assert.Equal(t, int64(1), got.History[0].TotalStreams)
}

func TestMemoryHistoryStore_StaleSaveConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryHistoryStore()
	require.NoError(t, s.Create(ctx, domain.NewStreamerHistory("alice")))

	first, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	second, err := s.Get(ctx, "alice")
	require.NoError(t, err)

	first.AddStream("2024-03-09", record("a_1", time.Now()))
	require.NoError(t, s.Save(ctx, first))

	second.AddStream("2024-03-09", record("a_2", time.Now()))
	require.ErrorIs(t, s.Save(ctx, second), domain.ErrConflict)

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.HasStream("2024-03-09", "a_1"))
	assert.False(t, got.HasStream("2024-03-09", "a_2"))
}

func TestMemoryHistoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryHistoryStore()
	require.NoError(t, s.Create(ctx, domain.NewStreamerHistory("alice")))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	got.AddStream("2024-03-09", record("a_1", time.Now()))

	again, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, again.History)
}
