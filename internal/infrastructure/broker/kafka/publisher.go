package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/sendit/parcel-service/internal/core/ports"
)

const DefaultTopic = "parcel.status_changed"

// Publisher emits parcel status events to Kafka, keyed by parcel ID so a
// parcel's events stay ordered within one partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   zerolog.Logger
}

func NewPublisher(brokers []string, topic string, logger zerolog.Logger) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Timeout = 5 * time.Second
	prod, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return newPublisher(prod, topic, logger), nil
}

func newPublisher(prod sarama.SyncProducer, topic string, logger zerolog.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{producer: prod, topic: topic, logger: logger}
}

func (p *Publisher) PublishStatusChanged(_ context.Context, event ports.StatusChangedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.ParcelID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte("parcel.status_changed")},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	p.logger.Debug().
		Str("topic", p.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Str("parcel_id", event.ParcelID).
		Msg("status event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
