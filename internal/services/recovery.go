package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

const defaultRecoveryDelay = 30 * time.Second

// DeadLetterSource delivers dead-lettered records. A record is acknowledged
// only when the handler returns nil.
type DeadLetterSource interface {
	Consume(ctx context.Context, handler func(context.Context, domain.DeadLetter) error) error
}

// RecoveryService replays dead-lettered records into the history store.
type RecoveryService struct {
	source  DeadLetterSource
	history HistoryWriter
	delay   time.Duration
	logger  zerolog.Logger
}

func NewRecoveryService(source DeadLetterSource, history HistoryWriter, delay time.Duration, logger zerolog.Logger) *RecoveryService {
	if delay <= 0 {
		delay = defaultRecoveryDelay
	}
	return &RecoveryService{
		source:  source,
		history: history,
		delay:   delay,
		logger:  logger.With().Str("component", "recovery").Logger(),
	}
}

// Start consumes dead letters until ctx is done.
func (r *RecoveryService) Start(ctx context.Context) error {
	if err := r.source.Consume(ctx, r.handle); err != nil {
		return fmt.Errorf("consume dead letters: %w", err)
	}
	return nil
}

// handle keeps retrying one record so the source does not move past it.
func (r *RecoveryService) handle(ctx context.Context, dl domain.DeadLetter) error {
	date := dl.Date
	if date == "" {
		date = dl.Record.Date()
	}
	log := r.logger.With().Str("streamer", dl.StreamerID).Str("stream_id", dl.Record.StreamID).Logger()

	for {
		err := r.history.Merge(ctx, dl.StreamerID, date, dl.Record)
		if err == nil {
			log.Info().Str("date", date).Time("failed_at", dl.FailedAt).Msg("dead-lettered record recovered")
			return nil
		}
		log.Error().Err(err).Dur("retry_in", r.delay).Msg("dead-lettered record still failing")
		if err := sleepContext(ctx, r.delay); err != nil {
			return err
		}
	}
}
