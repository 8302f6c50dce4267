// Package kafka publishes dispatched rain warnings to an audit topic for
// downstream consumers (dashboards, long-term stats).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"rainwatch/internal/config"
	"rainwatch/internal/domain"
)

// Writer produces warning events to the audit topic. It implements
// monitor.AuditPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured audit topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaAuditTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes one warning event.
func (w *Writer) Publish(ctx context.Context, event domain.WarningEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a WarningEvent into a Kafka message keyed by
// the nowcast entity so warnings from one home stay in one partition.
func serializeToMessage(event domain.WarningEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize warning event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.NowcastEntity),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("rain_warning")},
			{Key: "sent_at", Value: []byte(event.SentAt.Format(time.RFC3339))},
		},
	}, nil
}
