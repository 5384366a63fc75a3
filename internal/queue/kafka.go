// Package queue moves entity-creation messages through Kafka: a publisher for the
// send endpoint and sample producer, and one consumer per record kind.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"retailapi/internal/config"
	"retailapi/internal/model"
)

// Topics maps each kind to its queue topic.
type Topics map[model.Kind]string

// TopicsFromConfig reads the per-kind topic names.
func TopicsFromConfig(cfg config.KafkaConfig) Topics {
	return Topics{
		model.KindOrder:    cfg.TopicOrder,
		model.KindProduct:  cfg.TopicProduct,
		model.KindCustomer: cfg.TopicCustomer,
	}
}

// NewKafkaReader creates a consumer-group reader for topic. Offsets are committed explicitly.
func NewKafkaReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}

// ErrUnknownTopic is returned when publishing for a kind without a configured topic.
var ErrUnknownTopic = errors.New("no topic configured for kind")

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends raw JSON payloads to the kind's topic, keyed by kind.
type Publisher struct {
	writer kafkaMessageWriter
	topics Topics
}

// NewPublisher creates a synchronous Kafka publisher. Pure-Go client (segmentio/kafka-go).
func NewPublisher(brokers []string, topics Topics) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			Async:                  false,
		},
		topics: topics,
	}
}

// NewPublisherWith is only for tests to inject a fake writer.
func NewPublisherWith(w kafkaMessageWriter, topics Topics) *Publisher {
	return &Publisher{writer: w, topics: topics}
}

// Publish writes one message and waits for all in-sync replicas to acknowledge it.
func (p *Publisher) Publish(ctx context.Context, kind model.Kind, payload []byte) error {
	topic := p.topics[kind]
	if topic == "" {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, kind)
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(kind.Slug()),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.writer.Close() }
