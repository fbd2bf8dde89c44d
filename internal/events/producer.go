package events

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher pushes lifecycle events to downstream consumers (analytics,
// notification bots). Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, event CloudEvent) error
	Close() error
}

// KafkaPublisher publishes CloudEvents to Kafka.
type KafkaPublisher struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers.
func NewKafkaPublisher(brokers []string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		// Topics are created out of band in production; auto-create keeps
		// local development friction-free.
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish sends one CloudEvent, keyed by event id for stable partitioning.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event CloudEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   []byte(event.ID),
		Value: value,
	})
	if err != nil {
		p.logger.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("type", event.Type),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("type", event.Type),
		zap.String("id", event.ID),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// NoopPublisher drops every event; used when no brokers are configured.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that discards events.
func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

// Publish discards the event.
func (*NoopPublisher) Publish(context.Context, string, CloudEvent) error { return nil }

// Close is a no-op.
func (*NoopPublisher) Close() error { return nil }
