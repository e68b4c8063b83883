package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes cycle reports to a Kafka topic.
// It implements pipeline.ReportPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the report topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes a cycle report and writes it keyed by cycle ID.
func (w *Writer) Publish(ctx context.Context, report domain.CycleReport) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish cycle report %s: %w", report.CycleID, err)
	}
	w.logger.Debug("cycle report published", "cycle_id", report.CycleID, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage maps a cycle report onto a Kafka message with sorted headers.
func serializeToMessage(report domain.CycleReport) (kafkago.Message, error) {
	m, err := domain.SerializeReport(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cycle report: %w", err)
	}

	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(m.Headers[k])})
	}
	return kafkago.Message{
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
		Time:    report.CompletedAt,
	}, nil
}
