// Package kafka publishes task lifecycle events to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/domain/task"
	"github.com/ahrav/castverify/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/castverify/pkg/common/logger"
)

var _ task.EventPublisher = (*Publisher)(nil)

// Envelope is the wire format of every published event.
type Envelope struct {
	ID         string          `json:"id"`
	Type       task.EventType  `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	ActorFID   int64           `json:"actor_fid"`
	Payload    json.RawMessage `json:"payload"`
}

// CompletedPayload is the payload of a TaskCompleted event.
type CompletedPayload struct {
	TaskID    string `json:"task_id"`
	Reference string `json:"reference"`
	ContentID string `json:"content_id"`
	Action    string `json:"action"`
}

// AllSatisfiedPayload is the payload of an AllTasksSatisfied event.
type AllSatisfiedPayload struct {
	Action    string `json:"action"`
	TaskCount int    `json:"task_count"`
}

// Publisher writes task events to a single topic, keyed by actor so every
// event of one actor lands on the same partition in order.
type Publisher struct {
	producer sarama.SyncProducer
	client   sarama.Client
	topic    string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewPublisher creates a Publisher on top of producer.
func NewPublisher(producer sarama.SyncProducer, topic string, logger *logger.Logger, tracer trace.Tracer) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka_publisher", "topic", topic),
		tracer:   tracer,
	}
}

// PublishCompleted publishes evt.
func (p *Publisher) PublishCompleted(ctx context.Context, evt task.CompletedEvent) error {
	return p.publish(ctx, evt.EventType(), evt.OccurredAt(), evt.Actor, CompletedPayload{
		TaskID:    evt.TaskID,
		Reference: evt.Reference.String(),
		ContentID: evt.ContentID.String(),
		Action:    evt.Action.String(),
	})
}

// PublishAllSatisfied publishes evt.
func (p *Publisher) PublishAllSatisfied(ctx context.Context, evt task.AllSatisfiedEvent) error {
	return p.publish(ctx, evt.EventType(), evt.OccurredAt(), evt.Actor, AllSatisfiedPayload{
		Action:    evt.Action.String(),
		TaskCount: evt.TaskCount,
	})
}

func (p *Publisher) publish(
	ctx context.Context,
	eventType task.EventType,
	at time.Time,
	actor engagement.ActorID,
	payload any,
) error {
	ctx, span := tracing.StartProducerSpan(ctx, p.topic, p.tracer)
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", string(eventType)),
		attribute.Int64("actor", int64(actor)),
	)

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal payload")
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	msgBytes, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		ActorFID:   int64(actor),
		Payload:    body,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal envelope")
		return fmt.Errorf("failed to marshal %s envelope: %w", eventType, err)
	}

	key := actor.String()
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(msgBytes),
	}
	carrier := &messageCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	msg.Headers = carrier.headers

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		return fmt.Errorf("failed to send %s to kafka topic %s: %w", eventType, p.topic, err)
	}

	span.SetAttributes(attribute.Int("partition", int(partition)), attribute.Int64("offset", offset))
	span.SetStatus(codes.Ok, "event published")
	p.logger.Debug(ctx, "Published event",
		"type", string(eventType),
		"partition", partition,
		"offset", offset,
		"key", key,
	)
	return nil
}

// Close closes the producer and, when the Publisher owns it, the client.
func (p *Publisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("closing producer: %w", err)
	}
	if p.client != nil && !p.client.Closed() {
		return p.client.Close()
	}
	return nil
}
