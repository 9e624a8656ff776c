package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/metrics"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/store"
)

// MergeConfig bounds the retries of a single history merge.
type MergeConfig struct {
	MaxAttempts    uint
	InitialBackoff time.Duration
}

// HistoryMerger appends finished stream records to the streamer's day buckets.
type HistoryMerger struct {
	store   store.HistoryStore
	cfg     MergeConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewHistoryMerger(st store.HistoryStore, cfg MergeConfig, m *metrics.Metrics, logger zerolog.Logger) *HistoryMerger {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	return &HistoryMerger{
		store:   st,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "history_merger").Logger(),
	}
}

// Merge adds rec to the bucket for date. A conflicting concurrent write makes
// it re-read the document and apply rec again. Records already present in the
// bucket are skipped, so replays are harmless. After the last attempt the
// failure is returned as a *domain.StorageError.
func (m *HistoryMerger) Merge(ctx context.Context, streamerID, date string, rec domain.StreamRecord) error {
	b := backoff.NewExponentialBackOff()
	if m.cfg.InitialBackoff > 0 {
		b.InitialInterval = m.cfg.InitialBackoff
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.mergeOnce(ctx, streamerID, date, rec)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(m.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			m.logger.Warn().Err(err).
				Str("streamer", streamerID).
				Str("date", date).
				Dur("retry_in", wait).
				Msg("history merge attempt failed")
		}),
	)
	if err != nil {
		m.metrics.MergeFailures.Inc()
		return &domain.StorageError{Streamer: streamerID, Date: date, Op: "merge", Err: err}
	}
	return nil
}

func (m *HistoryMerger) mergeOnce(ctx context.Context, streamerID, date string, rec domain.StreamRecord) error {
	if streamerID == "" || date == "" || rec.StreamID == "" {
		return backoff.Permanent(errors.New("streamer id, date and stream id are required"))
	}

	h, err := m.store.Get(ctx, streamerID)
	fresh := false
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h = domain.NewStreamerHistory(streamerID)
		fresh = true
	case err != nil:
		return fmt.Errorf("load history: %w", err)
	}

	if h.HasStream(date, rec.StreamID) {
		m.logger.Info().Str("streamer", streamerID).Str("stream_id", rec.StreamID).Msg("stream already recorded")
		return nil
	}
	h.AddStream(date, rec)

	if fresh {
		err = m.store.Create(ctx, h)
	} else {
		err = m.store.Save(ctx, h)
	}
	if errors.Is(err, domain.ErrConflict) {
		m.metrics.MergeConflicts.Inc()
	}
	return err
}

// History returns the persisted history for streamerID.
func (m *HistoryMerger) History(ctx context.Context, streamerID string) (*domain.StreamerHistory, error) {
	return m.store.Get(ctx, streamerID)
}
