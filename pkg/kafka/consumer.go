package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/resilience"
)

// MessageHandler processes one message. Errors are retried unless wrapped
// with resilience.Permanent; a message that still fails is dropped and its
// offset committed so the partition keeps moving.
type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerStats counts messages since the consumer started.
type ConsumerStats struct {
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
	FetchErrs int64 `json:"fetch_errors"`
}

// Consumer reads a topic as part of the configured consumer group.
type Consumer struct {
	reader   messageReader
	handler  MessageHandler
	retry    resilience.RetryConfig
	logger   *slog.Logger
	pauseMax time.Duration

	processed atomic.Int64
	dropped   atomic.Int64
	fetchErrs atomic.Int64
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:   r,
		handler:  handler,
		retry:    resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		logger:   slog.Default().With("component", "kafka-consumer", "topic", topic),
		pauseMax: 30 * time.Second,
	}
}

// Run fetches and dispatches messages until ctx is cancelled, then closes
// the reader. Fetch failures back off exponentially up to 30s.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()

	pause := 100 * time.Millisecond
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err(), "stats", c.Stats())
				return nil
			}
			c.fetchErrs.Add(1)
			c.logger.Error("failed to fetch message", "error", err, "retry_in", pause)
			select {
			case <-ctx.Done():
				continue
			case <-time.After(pause):
			}
			pause = min(2*pause, c.pauseMax)
			continue
		}
		pause = 100 * time.Millisecond

		err = resilience.Retry(ctx, "kafka-handle", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.dropped.Add(1)
			c.logger.Error("dropping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		} else {
			c.processed.Add(1)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: c.processed.Load(),
		Dropped:   c.dropped.Load(),
		FetchErrs: c.fetchErrs.Load(),
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
