package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/aqi-prediction-service/internal/config"
	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/couchcryptid/aqi-prediction-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes prediction events to a Kafka topic.
// It implements pipeline.EventPublisher.
type Writer struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates an asynchronous Kafka producer for the configured topic.
// Delivery results are reported through metrics and logs only.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &Writer{logger: logger, metrics: metrics}
	w.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion:   w.complete,
	}
	return w
}

// Publish serializes event and queues it for delivery.
func (w *Writer) Publish(ctx context.Context, event domain.PredictionEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		w.metrics.EventsPublished.WithLabelValues("error").Inc()
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		w.metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("write prediction event: %w", err)
	}
	return nil
}

// complete is invoked by the async writer once a batch is acknowledged or fails.
func (w *Writer) complete(messages []kafkago.Message, err error) {
	if err != nil {
		w.metrics.EventsPublished.WithLabelValues("error").Add(float64(len(messages)))
		w.logger.Warn("prediction events not delivered", "count", len(messages), "error", err)
		return
	}
	w.metrics.EventsPublished.WithLabelValues("success").Add(float64(len(messages)))
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a PredictionEvent into a Kafka message keyed by event ID.
func serializeToMessage(event domain.PredictionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "endpoint", Value: []byte(event.Endpoint)},
			{Key: "category", Value: []byte(event.Category)},
			{Key: "predicted_at", Value: []byte(event.PredictedAt.Format(time.RFC3339))},
		},
	}, nil
}
