// Package kafka publishes artifact events to a Kafka topic so downstream
// consumers learn about new artifacts without polling storage.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
)

// Notifier produces one message per persisted artifact.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured artifact topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes e keyed by its storage key, so every event about the
// same artifact lands on the same partition.
func (n *Notifier) Notify(ctx context.Context, e pipeline.ArtifactEvent) error {
	msg, err := serializeToMessage(e)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e, err)
	}
	n.logger.Debug("artifact event published", "topic", n.writer.Topic, "key", e.Key)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

func serializeToMessage(e pipeline.ArtifactEvent) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize artifact event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "product", Value: []byte(e.Product)},
			{Key: "published_at", Value: []byte(e.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
