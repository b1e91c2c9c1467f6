package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"staybook/services/messaging"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Dispatcher turns an envelope into an outcome and accepts messages that
// ran out of redeliveries.
type Dispatcher interface {
	Handle(ctx context.Context, env messaging.Envelope) messaging.Outcome
	DeadLetter(ctx context.Context, env messaging.Envelope, reason string)
}

type ConsumerConfig struct {
	Brokers  []string
	ClientID string
	GroupID  string
	Topics   []string
	// MaxRedeliveries is how many times one offset may come back with RETRY
	// before it is dead-lettered and committed.
	MaxRedeliveries int
	// RetryBackoff is the pause before the group rejoins after a RETRY.
	RetryBackoff time.Duration
}

// Consumer reads the subscribed topics as one consumer group member.
// Partitions are processed sequentially. A RETRY leaves its offset
// uncommitted and restarts the session so the broker hands the message back.
type Consumer struct {
	cfg     ConsumerConfig
	client  sarama.Client
	group   sarama.ConsumerGroup
	handler *groupHandler
	logger  *zap.Logger
}

func NewConsumerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	return config
}

func NewConsumer(cfg ConsumerConfig, dispatcher Dispatcher, logger *zap.Logger) (*Consumer, error) {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	client, err := sarama.NewClient(cfg.Brokers, NewConsumerConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	group, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return &Consumer{
		cfg:     cfg,
		client:  client,
		group:   group,
		handler: newGroupHandler(dispatcher, cfg.MaxRedeliveries, logger),
		logger:  logger,
	}, nil
}

// Run joins the group and consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	c.logger.Info("Kafka consumer started", zap.Strings("topics", c.cfg.Topics), zap.String("group", c.cfg.GroupID))
	for {
		sessionCtx, cancel := context.WithCancel(ctx)
		c.handler.setRestart(cancel)
		err := c.group.Consume(sessionCtx, c.cfg.Topics, c.handler)
		cancel()

		if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Error("Kafka session ended with error", zap.Error(err))
		}
		if err != nil || c.handler.takeRestart() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
	}
}

// Ping refreshes cluster metadata.
func (c *Consumer) Ping(context.Context) error {
	if c.client.Closed() {
		return errors.New("kafka client closed")
	}
	return c.client.RefreshMetadata(c.cfg.Topics...)
}

func (c *Consumer) Close() error {
	err := c.group.Close()
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}

type offsetKey struct {
	topic     string
	partition int32
	offset    int64
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	dispatcher      Dispatcher
	maxRedeliveries int
	logger          *zap.Logger

	mu        sync.Mutex
	attempts  map[offsetKey]int
	restart   context.CancelFunc
	restarted bool
}

func newGroupHandler(dispatcher Dispatcher, maxRedeliveries int, logger *zap.Logger) *groupHandler {
	return &groupHandler{
		dispatcher:      dispatcher,
		maxRedeliveries: maxRedeliveries,
		logger:          logger,
		attempts:        make(map[offsetKey]int),
	}
}

func (h *groupHandler) setRestart(cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restart = cancel
}

func (h *groupHandler) takeRestart() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.restarted
	h.restarted = false
	return r
}

func (h *groupHandler) requestRestart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restarted = true
	if h.restart != nil {
		h.restart()
	}
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !h.process(sess, msg) {
				h.requestRestart()
				return nil
			}
		}
	}
}

// process handles one message and reports whether the claim may continue.
func (h *groupHandler) process(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) bool {
	ctx := sess.Context()
	env := messaging.NewEnvelope(msg.Topic, msg.Topic, msg.Value, msg)
	if t := header(msg, "eventType"); t != "" {
		env.EventType = t
	}

	outcome := h.dispatcher.Handle(ctx, env)
	key := offsetKey{topic: msg.Topic, partition: msg.Partition, offset: msg.Offset}
	log := h.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.Stringer("outcome", outcome),
	)

	if outcome != messaging.Retry {
		h.forget(key)
		sess.MarkMessage(msg, "")
		return true
	}

	attempt := h.bump(key)
	if h.maxRedeliveries > 0 && attempt > h.maxRedeliveries {
		log.Error("Redelivery limit reached, dead-lettering", zap.Int("attempts", attempt))
		h.dispatcher.DeadLetter(ctx, env, fmt.Sprintf("redelivery limit %d reached", h.maxRedeliveries))
		h.forget(key)
		sess.MarkMessage(msg, "")
		return true
	}

	log.Warn("Leaving offset uncommitted for redelivery", zap.Int("attempt", attempt))
	return false
}

func (h *groupHandler) bump(k offsetKey) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts[k]++
	return h.attempts[k]
}

func (h *groupHandler) forget(k offsetKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attempts, k)
}

func header(msg *sarama.ConsumerMessage, key string) string {
	for _, rh := range msg.Headers {
		if rh != nil && string(rh.Key) == key {
			return string(rh.Value)
		}
	}
	return ""
}
