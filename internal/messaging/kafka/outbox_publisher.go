package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// eventPublisher — то, что нужно OutboxTopicPublisher от producer.
type eventPublisher interface {
	PublishEvent(topic string, key string, event any, headers map[string]string) error
}

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer eventPublisher
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	pub := &OutboxTopicPublisher{
		topic: topic,
		now:   time.Now,
	}
	// nil *Producer не должен превращаться в ненулевой интерфейс.
	if producer != nil {
		pub.producer = producer
	}
	return pub
}

// Topic возвращает topic, в который публикуются сообщения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := NewEnvelope(event, p.now())
	return p.producer.PublishEvent(p.topic, key, envelope, envelope.Headers())
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
