package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/outbreak-dashboard/internal/config"
	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Message header keys.
const (
	HeaderKind        = "kind"
	HeaderVersion     = "version"
	HeaderCommittedAt = "committed_at"
)

// Writer produces committed view updates to a Kafka topic.
// It implements dashboard.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured view topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaViewTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes a single view update. Updates of one kind
// share a key, so they land on one partition in commit order.
func (w *Writer) Publish(ctx context.Context, u domain.ViewUpdate) error {
	msg, err := serializeToMessage(u)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s update: %w", u.Kind, err)
	}
	w.logger.Debug("view update published", "kind", u.Kind, "version", u.Version)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ViewUpdate into a Kafka message.
func serializeToMessage(u domain.ViewUpdate) (kafkago.Message, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize view update: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(u.Kind),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderKind, Value: []byte(u.Kind)},
			{Key: HeaderVersion, Value: []byte(strconv.FormatUint(u.Version, 10))},
			{Key: HeaderCommittedAt, Value: []byte(u.CommittedAt.Format(time.RFC3339))},
		},
	}, nil
}
