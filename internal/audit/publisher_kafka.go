package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher pushes audit events to a Kafka topic keyed by request id so
// one request's trail stays ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects to the given seed brokers. Close the publisher
// during shutdown to flush buffered records.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// kafkaPayload is the JSON structure produced to the topic. Field names are
// part of the consumer contract.
type kafkaPayload struct {
	Action        string `json:"action"`
	Timestamp     string `json:"timestamp"`
	RequestID     string `json:"requestId"`
	EntityType    string `json:"entityType,omitempty"`
	EntityID      string `json:"entityId,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
	ActorID       string `json:"actorId,omitempty"`
	OnBehalfOf    string `json:"onBehalfOf,omitempty"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload := kafkaPayload{
		Action:        string(event.Action),
		Timestamp:     event.Timestamp.Format(time.RFC3339Nano),
		RequestID:     event.RequestID.String(),
		EntityType:    event.EntityType.String(),
		EntityID:      event.EntityID,
		Reason:        event.Reason,
		CorrelationID: event.CorrelationID,
	}
	if !event.TenantID.IsNil() {
		payload.TenantID = event.TenantID.String()
	}
	if !event.ActorID.IsNil() {
		payload.ActorID = event.ActorID.String()
	}
	if !event.OnBehalfOf.IsNil() {
		payload.OnBehalfOf = event.OnBehalfOf.String()
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.RequestID.String()),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
