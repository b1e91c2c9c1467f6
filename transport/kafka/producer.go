package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Producer publishes lifecycle events to the topic named after the event.
type Producer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

func NewProducer(brokers []string, clientID string, logger *zap.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewProducerFrom(producer, logger), nil
}

func NewProducerFrom(producer sarama.SyncProducer, logger *zap.Logger) *Producer {
	return &Producer{producer: producer, logger: logger}
}

// Send implements messaging.Transport. Messages are keyed by booking id so
// every event of one booking lands on the same partition.
func (p *Producer) Send(ctx context.Context, topic, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		key = uuid.New().String()
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("source"), Value: []byte("booking-service")},
			{Key: []byte("message_id"), Value: []byte(uuid.NewString())},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug("Published booking event",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("booking_id", key),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
