package kafkax

import (
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID    = "event_id"
	HeaderEventType  = "event_type"
	HeaderBusinessID = "business_id"
)

// EventMeta is the metadata carried in Kafka headers next to every domain event.
type EventMeta struct {
	EventID    string
	EventType  string
	BusinessID string
}

// Headers renders meta as Kafka headers, skipping empty fields.
func (m EventMeta) Headers() []kafka.Header {
	var out []kafka.Header
	for _, kv := range [][2]string{
		{HeaderEventID, m.EventID},
		{HeaderEventType, m.EventType},
		{HeaderBusinessID, m.BusinessID},
	} {
		if kv[1] != "" {
			out = append(out, kafka.Header{Key: kv[0], Value: []byte(kv[1])})
		}
	}
	return out
}

// ExtractEventMeta falls back to the message key and topic when producers omit headers.
// A message with neither an event_id header nor a key is identified by its log position,
// which still dedupes redelivery of that exact message.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:    HeaderValue(msg.Headers, HeaderEventID),
		EventType:  HeaderValue(msg.Headers, HeaderEventType),
		BusinessID: HeaderValue(msg.Headers, HeaderBusinessID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventID == "" {
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
