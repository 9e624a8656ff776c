package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/services"
)

type sliceSource struct {
	letters []domain.DeadLetter
	acked   []string
}

func (s *sliceSource) Consume(ctx context.Context, handler func(context.Context, domain.DeadLetter) error) error {
	for _, dl := range s.letters {
		if err := handler(ctx, dl); err != nil {
			return err
		}
		s.acked = append(s.acked, dl.Record.StreamID)
	}
	return nil
}

type flakyHistory struct {
	mu       sync.Mutex
	failures int
	calls    int
	dates    []string
}

func (h *flakyHistory) Merge(_ context.Context, id, date string, _ domain.StreamRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.failures > 0 {
		h.failures--
		return &domain.StorageError{Streamer: id, Date: date, Op: "merge", Err: errors.New("still down")}
	}
	h.dates = append(h.dates, date)
	return nil
}

func TestRecoveryService_RetriesUntilMerged(t *testing.T) {
	t.Parallel()

	src := &sliceSource{letters: []domain.DeadLetter{
		{StreamerID: "alice", Date: "2024-03-09", Record: domain.StreamRecord{StreamID: "alice_1"}},
		{StreamerID: "alice", Record: domain.StreamRecord{StreamID: "alice_2", EndTime: time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)}},
	}}
	hist := &flakyHistory{failures: 2}

	svc := services.NewRecoveryService(src, hist, time.Millisecond, zerolog.Nop())
	require.NoError(t, svc.Start(context.Background()))

	assert.Equal(t, []string{"alice_1", "alice_2"}, src.acked)
	assert.Equal(t, 4, hist.calls)
	assert.Equal(t, []string{"2024-03-09", "2024-03-10"}, hist.dates)
}

func TestRecoveryService_StopsWithoutAcknowledging(t *testing.T) {
	t.Parallel()

	src := &sliceSource{letters: []domain.DeadLetter{
		{StreamerID: "alice", Date: "2024-03-09", Record: domain.StreamRecord{StreamID: "alice_1"}},
	}}
	hist := &flakyHistory{failures: 1 << 30}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	svc := services.NewRecoveryService(src, hist, 5*time.Millisecond, zerolog.Nop())
	err := svc.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, src.acked)
}
