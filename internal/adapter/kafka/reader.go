package kafka

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Message is one consumed record with its commit hook, decoupling the
// processing loops from the broker client.
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Reader consumes one topic within a consumer group.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a group consumer for the given topic.
func NewReader(brokers []string, topic, groupID string, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return &Reader{reader: r, logger: logger}
}

// Fetch blocks until one message is available or the context is cancelled.
// The returned message's Commit marks it consumed within the group.
func (r *Reader) Fetch(ctx context.Context) (Message, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Commit: func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		},
	}, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}
