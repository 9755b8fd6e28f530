package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/farm-protest-map/internal/config"
	"github.com/couchcryptid/farm-protest-map/internal/observability"
	"github.com/couchcryptid/farm-protest-map/internal/session"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes session transitions to a Kafka topic.
// It implements session.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates an asynchronous Kafka producer for the transitions topic.
// Messages are keyed by session ID so one viewer's transitions stay ordered
// within a partition. Batch outcomes are counted in metrics.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
	}
	w.Completion = func(messages []kafkago.Message, err error) {
		if err != nil {
			metrics.PublishErrors.Add(float64(len(messages)))
			logger.Warn("kafka batch write failed", "messages", len(messages), "error", err)
			return
		}
		metrics.TransitionsDelivered.Add(float64(len(messages)))
	}
	return &Writer{writer: w, logger: logger}
}

// Publish enqueues a transition. Delivery errors are reported asynchronously.
func (w *Writer) Publish(ctx context.Context, t session.Transition) error {
	msg, err := serializeToMessage(t)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Transition into a Kafka message.
func serializeToMessage(t session.Transition) (kafkago.Message, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize transition: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(t.SessionID),
		Value: data,
		Time:  t.At,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(t.Event)},
			{Key: "occurred_at", Value: []byte(t.At.Format(time.RFC3339))},
		},
	}, nil
}
