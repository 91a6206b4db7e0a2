package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestEventMetaHeaders(t *testing.T) {
	meta := EventMeta{EventID: "e1", EventType: "booking.appointment.booked.v1", BusinessID: "b1"}
	msg := kafka.Message{Topic: "ignored", Headers: meta.Headers()}
	require.Equal(t, meta, ExtractEventMeta(msg))

	bare := kafka.Message{Topic: "payments.deposit.paid.v1", Key: []byte("k1")}
	got := ExtractEventMeta(bare)
	require.Equal(t, "k1", got.EventID)
	require.Equal(t, "payments.deposit.paid.v1", got.EventType)
	require.Empty(t, got.BusinessID)

	anon := kafka.Message{Topic: "payments.deposit.paid.v1", Partition: 2, Offset: 41}
	require.Equal(t, "payments.deposit.paid.v1/2/41", ExtractEventMeta(anon).EventID)
	anon.Offset = 42
	require.Equal(t, "payments.deposit.paid.v1/2/42", ExtractEventMeta(anon).EventID)
}

func TestSplitBrokers(t *testing.T) {
	require.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	require.Nil(t, SplitBrokers(""))
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "e1"}.Headers())
	require.NotEmpty(t, HeaderValue(headers, "traceparent"))

	got := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	_, child := tp.Tracer("test").Start(got, "consume")
	defer child.End()
	require.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())
}
