// Package store persists streamer histories and loads the tracked-streamer list.
package store

import (
	"context"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

// HistoryStore is the durable document store for StreamerHistory.
//
// Version is the compare-and-swap token: Create writes version 1, Save only
// succeeds if the stored version still equals h.Version and then increments it.
// Both return domain.ErrConflict when another writer got there first.
type HistoryStore interface {
	Get(ctx context.Context, streamerID string) (*domain.StreamerHistory, error)
	Create(ctx context.Context, h *domain.StreamerHistory) error
	Save(ctx context.Context, h *domain.StreamerHistory) error
}
