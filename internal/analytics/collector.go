package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/resilience"
)

// Publisher ships a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector buffers events without blocking the caller and publishes them
// in batches from a single background loop. Events that arrive while the
// buffer is full are dropped.
type Collector struct {
	publisher Publisher
	cfg       CollectorConfig
	eventCh   chan Event
	done      chan struct{}
	logger    *slog.Logger
}

func NewCollector(publisher Publisher, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		publisher: publisher,
		cfg:       cfg,
		eventCh:   make(chan Event, cfg.BufferSize),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "analytics-collector"),
	}
}

// Run publishes buffered events until ctx is cancelled, then flushes what
// is left and returns.
func (c *Collector) Run(ctx context.Context) error {
	defer close(c.done)
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.cfg.BatchSize)
	for {
		select {
		case event := <-c.eventCh:
			batch = append(batch, kafka.Event{Key: event.PartitionKey(), Value: event})
			if len(batch) >= c.cfg.BatchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
		drain:
			for {
				select {
				case event := <-c.eventCh:
					batch = append(batch, kafka.Event{Key: event.PartitionKey(), Value: event})
				default:
					break drain
				}
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flush(flushCtx, batch)
			cancel()
			return nil
		}
	}
}

// Track enqueues event. It never blocks.
func (c *Collector) Track(event Event) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Wait blocks until Run has returned.
func (c *Collector) Wait() {
	<-c.done
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	err := resilience.Retry(ctx, "analytics-publish", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return c.publisher.Publish(ctx, batch...)
	})
	if err != nil {
		c.logger.Error("analytics batch dropped", "events", len(batch), "error", err)
	} else {
		c.logger.Debug("analytics batch published", "events", len(batch))
	}
	return make([]kafka.Event, 0, c.cfg.BatchSize)
}
