package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes view updates for widgets running in other processes.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the view topic.
func NewReader(brokers []string, topic, groupID string, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{reader: r, logger: logger}
}

// ReadUpdate blocks until the next update arrives. Offsets are committed
// automatically as messages are read.
func (r *Reader) ReadUpdate(ctx context.Context) (domain.ViewUpdate, error) {
	msg, err := r.reader.ReadMessage(ctx)
	if err != nil {
		return domain.ViewUpdate{}, err
	}
	u, err := decodeMessage(msg)
	if err != nil {
		r.logger.Warn("skipping undecodable view update",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return domain.ViewUpdate{}, err
	}
	return u, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// decodeMessage unmarshals a view update and checks it against its kind header.
func decodeMessage(msg kafkago.Message) (domain.ViewUpdate, error) {
	var u domain.ViewUpdate
	if err := json.Unmarshal(msg.Value, &u); err != nil {
		return domain.ViewUpdate{}, fmt.Errorf("decode view update: %w", err)
	}
	for _, h := range msg.Headers {
		if h.Key == HeaderKind && string(h.Value) != u.Kind {
			return domain.ViewUpdate{}, fmt.Errorf("kind header %q does not match payload kind %q", h.Value, u.Kind)
		}
	}
	return u, nil
}
