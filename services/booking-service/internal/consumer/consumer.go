// Package consumer runs the booking service's Kafka consumers. Messages are deduplicated
// through the inbox and committed only after they were handled or given up on.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidMessage marks a message that can never be handled. It is logged and committed.
var ErrInvalidMessage = errors.New("invalid message")

type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	// Attempts bounds how often a failing message is handled before it is skipped.
	Attempts int
	Backoff  time.Duration
}

type Consumer struct {
	reader   MessageReader
	logger   *slog.Logger
	inbox    inbox.Store
	handler  Handler
	metrics  *metrics.Metrics
	attempts int
	backoff  time.Duration
}

func New(logger *slog.Logger, reader MessageReader, inboxStore inbox.Store, handler Handler, m *metrics.Metrics, cfg Config) *Consumer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{
		reader:   reader,
		logger:   logger,
		inbox:    inboxStore,
		handler:  handler,
		metrics:  m,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("kafka reader close failed", "err", err)
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		outcome := c.process(ctx, msg)
		if ctx.Err() != nil {
			return
		}
		c.metrics.ObserveConsumed(msg.Topic, outcome)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process handles one message and returns its metrics outcome.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) string {
	meta := kafkax.ExtractEventMeta(msg)
	ctx, span := otel.Tracer("kafka").Start(kafkax.ExtractTraceContext(ctx, msg), "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message_id", meta.EventID),
		),
	)
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 && !sleep(ctx, c.backoff*time.Duration(attempt-1)) {
			return metrics.OutcomeError
		}

		fresh, err := c.inbox.Record(ctx, meta.EventID, meta.EventType)
		if err != nil {
			lastErr = err
			c.logger.Warn("inbox record failed", "err", err, "event_id", meta.EventID, "attempt", attempt)
			continue
		}
		if !fresh {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return metrics.OutcomeDuplicate
		}

		err = c.handler(ctx, msg)
		if err == nil {
			return metrics.OutcomeOK
		}
		if errors.Is(err, ErrInvalidMessage) {
			c.logger.Error("invalid event dropped", "err", err, "event_id", meta.EventID, "topic", msg.Topic)
			span.SetStatus(codes.Error, err.Error())
			return metrics.OutcomeInvalid
		}
		lastErr = err
		c.logger.Warn("event handler failed", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if ferr := c.inbox.Forget(ctx, meta.EventID); ferr != nil {
			c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "giving up")
	c.logger.Error("event skipped after retries", "err", lastErr, "event_id", meta.EventID, "topic", msg.Topic)
	return metrics.OutcomeError
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
