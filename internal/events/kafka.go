package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// KafkaPublisher publishes events to a Kafka topic
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Logger
}

// NewKafkaPublisher creates a new Kafka event publisher
func NewKafkaPublisher(brokers []string, topic string, logger *logrus.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.ClientID = "grabarr"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newKafkaPublisher(producer, topic, logger), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, topic string, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish sends the JSON encoded event keyed by its library entity
func (p *KafkaPublisher) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%s-%d", event.MediaType, event.EntityID)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(event.ID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":  event.ID,
		"topic":     p.topic,
		"partition": partition,
		"offset":    offset,
	}).Debug("Event published to Kafka")
	return nil
}

// Close closes the producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
