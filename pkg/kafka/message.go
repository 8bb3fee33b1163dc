package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
	HeaderTraceParent   = "traceparent"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string

	// Parsed content
	Observation *ObservationMessage
}

// ObservationMessage is one contact observation read from the observations topic.
// phoneNumber may be a JSON string or number, like the HTTP body.
type ObservationMessage struct {
	Email       *string                `json:"email,omitempty"`
	PhoneNumber *models.FlexibleString `json:"phoneNumber,omitempty"`
}

func newIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers[HeaderTraceParent],
	}
}

// ParseObservation decodes the message value as an observation.
func (m *IncomingMessage) ParseObservation() error {
	var obs ObservationMessage
	if err := json.Unmarshal(m.Value, &obs); err != nil {
		return fmt.Errorf("invalid observation payload: %w", err)
	}
	m.Observation = &obs
	return nil
}
