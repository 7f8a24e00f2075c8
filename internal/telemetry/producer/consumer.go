package producer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Handler processes one consumed message value.
type Handler func(ctx context.Context, value []byte) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads access events from Kafka with a consumer group.
type Consumer struct {
	reader      messageReader
	log         zerolog.Logger
	pushTimeout time.Duration
}

// NewConsumer returns a Consumer on topic for groupID.
func NewConsumer(brokers []string, topic, groupID string, log zerolog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        time.Second,
			CommitInterval: time.Second,
		}),
		log:         log,
		pushTimeout: 10 * time.Second,
	}
}

// Run reads messages until ctx is cancelled and hands each to h. Handler errors are logged and the
// message is not retried.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Warn().Err(err).Msg("worker: kafka read error")
			continue
		}
		hctx, cancel := context.WithTimeout(ctx, c.pushTimeout)
		if err := h(hctx, msg.Value); err != nil {
			c.log.Warn().Err(err).Int64("offset", msg.Offset).Msg("worker: handler failed")
		}
		cancel()
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
