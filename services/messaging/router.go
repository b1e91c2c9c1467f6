package messaging

import (
	"context"
	"fmt"

	"staybook/services/booking"

	"go.uber.org/zap"
)

// Handler applies one inbound event. A nil error or a replay acknowledges
// the message; other errors are classified with booking.KindOf.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

type HandlerFunc func(ctx context.Context, env Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// DeadLetterSink keeps rejected messages for inspection.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, env Envelope, reason string) error
}

type routeKey struct {
	topic     string
	eventType string
}

// Router dispatches envelopes to handlers and turns handler results into an
// Outcome. It holds no business rules.
type Router struct {
	routes      map[routeKey]Handler
	byType      map[string]Handler
	deadLetters DeadLetterSink
	logger      *zap.Logger
}

func NewRouter(logger *zap.Logger, deadLetters DeadLetterSink) *Router {
	return &Router{
		routes:      make(map[routeKey]Handler),
		byType:      make(map[string]Handler),
		deadLetters: deadLetters,
		logger:      logger,
	}
}

// Route registers h for one (topic, event type) pair.
func (r *Router) Route(topic, eventType string, h Handler) {
	r.routes[routeKey{topic: topic, eventType: eventType}] = h
}

// RouteType registers h for an event type arriving on any topic.
func (r *Router) RouteType(eventType string, h Handler) {
	r.byType[eventType] = h
}

func (r *Router) lookup(env Envelope) (Handler, bool) {
	if h, ok := r.routes[routeKey{topic: env.SourceTopic, eventType: env.EventType}]; ok {
		return h, true
	}
	h, ok := r.byType[env.EventType]
	return h, ok
}

// Handle runs the matching handler and reports what the transport must do
// with the delivery.
func (r *Router) Handle(ctx context.Context, env Envelope) (outcome Outcome) {
	log := r.logger.With(
		zap.String("topic", env.SourceTopic),
		zap.String("event_type", env.EventType),
		zap.String("booking_id", env.BookingID),
		zap.Int64("event_id", env.EventID),
	)

	h, ok := r.lookup(env)
	if !ok {
		log.Warn("No handler registered, dropping event")
		return Ack
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Handler panicked", zap.Any("panic", rec))
			r.deadLetter(ctx, log, env, fmt.Sprintf("handler panic: %v", rec))
			outcome = Reject
		}
	}()

	err := h.Handle(ctx, env)
	if err == nil {
		log.Debug("Event processed", zap.Stringer("outcome", Ack))
		return Ack
	}

	switch booking.KindOf(err) {
	case booking.KindReplay:
		log.Info("Replayed event ignored", zap.Error(err))
		return Ack
	case booking.KindMalformedEvent:
		log.Error("Poison message rejected", zap.Error(err), zap.ByteString("payload", env.Payload))
		r.deadLetter(ctx, log, env, err.Error())
		return Reject
	case booking.KindMissingReference:
		log.Warn("Event references unknown booking", zap.Error(err))
		r.deadLetter(ctx, log, env, err.Error())
		return Reject
	default:
		log.Warn("Transient failure, asking for redelivery", zap.Error(err))
		return Retry
	}
}

// DeadLetter hands env to the sink directly. Transports call it when their
// own redelivery budget runs out.
func (r *Router) DeadLetter(ctx context.Context, env Envelope, reason string) {
	log := r.logger.With(zap.String("topic", env.SourceTopic), zap.String("event_type", env.EventType))
	r.deadLetter(ctx, log, env, reason)
}

func (r *Router) deadLetter(ctx context.Context, log *zap.Logger, env Envelope, reason string) {
	if r.deadLetters == nil {
		return
	}
	if env.BrokerDeadLetters {
		log.Debug("Rejected message left to the broker dead-letter exchange")
		return
	}
	if err := r.deadLetters.DeadLetter(ctx, env, reason); err != nil {
		log.Error("Failed to dead-letter message", zap.Error(err))
	}
}
