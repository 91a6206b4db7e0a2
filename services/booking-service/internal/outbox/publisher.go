package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	store     Store
	writer    MessageWriter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(store Store, writer MessageWriter, logger *slog.Logger, m *metrics.Metrics, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		store:     store,
		writer:    writer,
		logger:    logger,
		metrics:   m,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run drains the outbox until ctx is cancelled. A full batch is followed immediately by the
// next one; otherwise the publisher sleeps for PollEvery.
func (p *Publisher) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		n, err := p.PublishOnce(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("outbox publish failed", "err", err)
		}
		wait := p.pollEvery
		if err == nil && n == p.batchSize {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// PublishOnce sends one batch and returns how many events went out.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	published := 0
	err := p.store.Claim(ctx, p.batchSize, func(records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, message(ctx, r))
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		published = len(records)
		return nil
	})
	if err != nil {
		p.metrics.ObserveOutbox(0, true)
		return 0, err
	}
	p.metrics.ObserveOutbox(published, false)
	return published, nil
}

func message(ctx context.Context, r Record) kafka.Message {
	meta := kafkax.EventMeta{EventID: r.ID, EventType: r.EventType, BusinessID: r.BusinessID}
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	return kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
		Time:    r.CreatedAt,
	}
}
