package outbox_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	fail error
	sent []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.fail != nil {
		return w.fail
	}
	w.sent = append(w.sent, msgs...)
	return nil
}

func commitEvents(t *testing.T, s *memstore.Store, n int) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := s.InStaffTx(ctx, "b1", "A", func(tx storage.Tx) error {
			a := model.Appointment{
				BusinessID: "b1", StaffID: "A", Status: model.StatusPending,
				StartTime: base.Add(time.Duration(i) * time.Hour), EndTime: base.Add(time.Duration(i)*time.Hour + 30*time.Minute),
			}
			require.NoError(t, tx.InsertAppointment(ctx, &a))
			ev, err := outbox.NewAppointmentEvent(ctx, outbox.TopicBooked, a, base)
			require.NoError(t, err)
			return tx.EnqueueEvent(ctx, ev)
		})
		require.NoError(t, err)
	}
}

func TestPublisherSendsInBatches(t *testing.T) {
	s := memstore.New()
	commitEvents(t, s, 3)
	w := &fakeWriter{}
	m := metrics.New(prometheus.NewRegistry())
	p := outbox.NewPublisher(s, w, slog.New(slog.NewTextHandler(io.Discard, nil)), m, outbox.PublisherConfig{BatchSize: 2})

	n, err := p.PublishOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = p.PublishOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = p.PublishOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	require.Len(t, w.sent, 3)
	require.Zero(t, s.Unpublished())
	require.Equal(t, float64(3), testutil.ToFloat64(m.OutboxPublishedTotal))

	msg := w.sent[0]
	require.Equal(t, outbox.TopicBooked, msg.Topic)
	meta := kafkax.ExtractEventMeta(msg)
	require.Equal(t, s.Events()[0].ID, meta.EventID)
	require.Equal(t, "b1", meta.BusinessID)
}

func TestPublisherKeepsEventsOnWriteFailure(t *testing.T) {
	s := memstore.New()
	commitEvents(t, s, 2)
	w := &fakeWriter{fail: errors.New("broker down")}
	m := metrics.New(prometheus.NewRegistry())
	p := outbox.NewPublisher(s, w, slog.New(slog.NewTextHandler(io.Discard, nil)), m, outbox.PublisherConfig{})

	_, err := p.PublishOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, s.Unpublished())
	require.Equal(t, float64(1), testutil.ToFloat64(m.OutboxFailuresTotal))

	w.fail = nil
	n, err := p.PublishOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
