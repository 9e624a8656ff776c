package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/config"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

// DeadLetterPublisher publishes unmerged stream records to Kafka.
type DeadLetterPublisher struct {
	writer *kafka.Writer
	Topic  string
}

func NewDeadLetterPublisher(cfg config.Config) *DeadLetterPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopicDeadLetter,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &DeadLetterPublisher{writer: writer, Topic: cfg.KafkaTopicDeadLetter}
}

func (p *DeadLetterPublisher) Publish(ctx context.Context, dl domain.DeadLetter) error {
	value, err := EncodeDeadLetter(dl)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(dl.StreamerID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *DeadLetterPublisher) Close() error {
	return p.writer.Close()
}
