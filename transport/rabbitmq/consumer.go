package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"staybook/services/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Dispatcher turns an envelope into an outcome.
type Dispatcher interface {
	Handle(ctx context.Context, env messaging.Envelope) messaging.Outcome
}

type ConsumerConfig struct {
	URL         string
	Exchange    string
	Queue       string
	Bindings    []string
	ConsumerTag string
	// DeliveryLimit caps broker redeliveries of one message (quorum queues only).
	DeliveryLimit int
	// DeadLetterExchange receives rejected and over-limit messages when set.
	DeadLetterExchange string
}

// Consumer reads one queue with a single unacknowledged message in flight.
type Consumer struct {
	cfg        ConsumerConfig
	dispatcher Dispatcher
	logger     *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(cfg ConsumerConfig, dispatcher Dispatcher, logger *zap.Logger) *Consumer {
	return &Consumer{cfg: cfg, dispatcher: dispatcher, logger: logger.With(zap.String("queue", cfg.Queue))}
}

// QueueArgs are the arguments the consume queue is declared with.
func QueueArgs(cfg ConsumerConfig) amqp.Table {
	args := amqp.Table{"x-queue-type": "quorum"}
	if cfg.DeliveryLimit > 0 {
		args["x-delivery-limit"] = cfg.DeliveryLimit
	}
	if cfg.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = cfg.DeadLetterExchange
	}
	return args
}

// Connect dials the broker and declares the exchange, queue, bindings and
// dead-letter topology.
func (c *Consumer) Connect() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("rabbit dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel failed: %w", err)
	}
	fail := func(format string, args ...interface{}) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf(format, args...)
	}

	if c.cfg.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(c.cfg.DeadLetterExchange, "topic", true, false, false, false, nil); err != nil {
			return fail("declare dlx failed: %w", err)
		}
		dlq := c.cfg.Queue + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fail("declare dlq failed: %w", err)
		}
		if err := ch.QueueBind(dlq, "#", c.cfg.DeadLetterExchange, false, nil); err != nil {
			return fail("bind dlq failed: %w", err)
		}
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange %s failed: %w", c.cfg.Exchange, err)
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, QueueArgs(c.cfg))
	if err != nil {
		return fail("declare queue failed: %w", err)
	}
	for _, key := range c.cfg.Bindings {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fail("bind queue to exchange=%s key=%s failed: %w", c.cfg.Exchange, key, err)
		}
	}

	// One message in flight so acks follow processing order.
	if err := ch.Qos(1, 0, false); err != nil {
		return fail("set qos failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.mu.Unlock()
	return nil
}

// Run consumes until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return errors.New("consumer is not connected")
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}
	c.logger.Info("RabbitMQ consumer started", zap.Strings("bindings", c.cfg.Bindings))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.Process(ctx, d)
		}
	}
}

// Process dispatches one delivery and settles it with the broker.
func (c *Consumer) Process(ctx context.Context, d amqp.Delivery) messaging.Outcome {
	env := messaging.NewEnvelope(c.cfg.Queue, d.RoutingKey, d.Body, d.DeliveryTag)
	env.BrokerDeadLetters = c.cfg.DeadLetterExchange != ""
	outcome := c.dispatcher.Handle(ctx, env)

	var err error
	switch outcome {
	case messaging.Ack:
		err = d.Ack(false)
	case messaging.Retry:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}

	log := c.logger.With(
		zap.String("routing_key", d.RoutingKey),
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Stringer("outcome", outcome),
	)
	if count, ok := d.Headers["x-delivery-count"]; ok {
		log = log.With(zap.Any("delivery_count", count))
	}
	if err != nil {
		log.Error("Failed to settle delivery", zap.Error(err))
	} else {
		log.Debug("Delivery settled")
	}
	return outcome
}

// Ping reports whether the connection is still open.
func (c *Consumer) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
