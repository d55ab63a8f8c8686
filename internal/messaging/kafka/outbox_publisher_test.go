package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-123" {
			return fmt.Errorf("expected aggregate id as key, got %s", key)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope Envelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		if envelope.EventType != string(domain.EventOrderCreated) || envelope.ID != "outbox-1" {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		if string(envelope.Payload) != `{"order_id":"order-123"}` {
			return fmt.Errorf("payload must be embedded as raw json, got %s", envelope.Payload)
		}
		for _, h := range msg.Headers {
			if string(h.Key) == HeaderEventType && string(h.Value) == string(domain.EventOrderCreated) {
				return nil
			}
		}
		return fmt.Errorf("event type header is missing")
	})

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer, TopicOrderEvents)

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-123",
		EventType:     string(domain.EventOrderCreated),
		Payload:       []byte(`{"order_id":"order-123"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer, TopicOrderEvents)

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-234",
		EventType:     string(domain.EventOrderDeleted),
		Payload:       []byte(`{"order_id":"order-234"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestOutboxPublisher_DefaultTopicAndCanceledContext(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(newProducerWithSync(mocks.NewSyncProducer(t, nil), nil), "")
	if publisher.Topic() != TopicOrderEvents {
		t.Fatalf("expected default topic %s, got %s", TopicOrderEvents, publisher.Topic())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := publisher.Publish(ctx, domain.OutboxMessage{ID: "outbox-4"}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestNewEnvelope(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("MSK", 3*60*60))
	envelope := NewEnvelope(domain.OutboxMessage{
		ID:            "outbox-5",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-5",
		EventType:     string(domain.EventOrderItemUpdated),
	}, at)

	if envelope.PublishedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %s", envelope.PublishedAt.Location())
	}
	if string(envelope.Payload) != "null" {
		t.Fatalf("expected null payload for empty message, got %s", envelope.Payload)
	}
	headers := envelope.Headers()
	if headers[HeaderOutboxID] != "outbox-5" || headers[HeaderAggregateType] != domain.AggregateOrder {
		t.Fatalf("unexpected headers %v", headers)
	}
}
