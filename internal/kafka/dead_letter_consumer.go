package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/config"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

// DeadLetterConsumer reads dead-lettered records and commits each one only
// after its handler succeeds.
type DeadLetterConsumer struct {
	reader *kafka.Reader
	logger zerolog.Logger
}

func NewDeadLetterConsumer(cfg config.Config, logger zerolog.Logger) *DeadLetterConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupIDRecovery,
		Topic:   cfg.KafkaTopicDeadLetter,
	})
	return &DeadLetterConsumer{
		reader: reader,
		logger: logger.With().Str("component", "dead_letter_consumer").Logger(),
	}
}

// Consume passes every message to handler until ctx is done or handler fails.
// Undecodable messages are logged and committed so they cannot block the topic.
func (c *DeadLetterConsumer) Consume(ctx context.Context, handler func(context.Context, domain.DeadLetter) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		dl, err := DecodeDeadLetter(msg.Value)
		if err != nil {
			c.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("skipping undecodable dead letter")
		} else if err := handler(ctx, dl); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

func (c *DeadLetterConsumer) Close() error {
	return c.reader.Close()
}
