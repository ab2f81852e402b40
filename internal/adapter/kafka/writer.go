// Package kafka adapts the raw-event and processed-event channels onto
// Kafka topics. Messages are JSON envelopes keyed by location so ordering
// holds per location.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces JSON messages to one topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a synchronous producer. Publish returns once the
// broker acknowledges the write.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 250 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// NewAsyncWriter creates a fire-and-forget producer: Publish enqueues and
// returns immediately, and delivery results are logged from the completion
// callback instead of being awaited.
func NewAsyncWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 250 * time.Millisecond,
		Async:        true,
	}
	w.Completion = func(messages []kafkago.Message, err error) {
		if err != nil {
			logger.Error("message delivery failed", "topic", topic, "count", len(messages), "error", err)
			return
		}
		logger.Debug("messages delivered", "topic", topic, "count", len(messages))
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes the payload and writes it under the given key. The
// key carries the partition affinity; envelopes for the same location
// always land on the same partition.
func (w *Writer) Publish(ctx context.Context, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	return w.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
}

func (w *Writer) Close() error {
	return w.writer.Close()
}
