package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	bookingRepo "staybook/database/repository/booking"
	"staybook/services/booking"

	"go.uber.org/zap"
)

const defaultConflictAttempts = 3

// PaymentPayload is the body of payment.success, payment.failed and payment.refunded.
type PaymentPayload struct {
	BookingID     string     `json:"bookingId"`
	EventID       EventID    `json:"eventId"`
	PaymentID     string     `json:"paymentId"`
	Amount        *float64   `json:"amount,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

// PaymentHandler applies one payment event kind to the booking it names.
type PaymentHandler struct {
	kind             booking.EventKind
	repo             bookingRepo.BookingRepository
	guard            *IdempotencyGuard
	publisher        booking.LifecyclePublisher
	logger           *zap.Logger
	conflictAttempts int
}

func NewPaymentHandler(kind booking.EventKind, repo bookingRepo.BookingRepository, publisher booking.LifecyclePublisher, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		kind:             kind,
		repo:             repo,
		guard:            NewIdempotencyGuard(repo),
		publisher:        publisher,
		logger:           logger.With(zap.String("handler", string(kind))),
		conflictAttempts: defaultConflictAttempts,
	}
}

func (h *PaymentHandler) decode(env Envelope) (PaymentPayload, error) {
	var p PaymentPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return p, booking.NewMalformedEvent("payload is not a JSON object: " + err.Error())
	}
	if p.BookingID == "" {
		p.BookingID = env.BookingID
	}
	if p.EventID == 0 {
		p.EventID = EventID(env.EventID)
	}

	switch {
	case p.BookingID == "":
		return p, booking.NewMalformedEvent("bookingId is required")
	case p.EventID <= 0:
		return p, booking.NewMalformedEvent("eventId must be a positive integer")
	case p.PaymentID == "":
		return p, booking.NewMalformedEvent("paymentId is required")
	}
	if h.kind == booking.PaymentSucceeded {
		if p.Amount == nil {
			return p, booking.NewMalformedEvent("amount is required")
		}
		if p.TransactionID == "" {
			return p, booking.NewMalformedEvent("transactionId is required")
		}
	}
	return p, nil
}

func (h *PaymentHandler) Handle(ctx context.Context, env Envelope) error {
	p, err := h.decode(env)
	if err != nil {
		return err
	}
	eventID := int64(p.EventID)

	ev := booking.Event{
		Kind:          h.kind,
		PaymentID:     p.PaymentID,
		TransactionID: p.TransactionID,
		Reason:        p.Reason,
	}
	if p.Timestamp != nil {
		ev.OccurredAt = p.Timestamp.UTC()
	}

	log := h.logger.With(zap.String("booking_id", p.BookingID), zap.Int64("event_id", eventID))

	for attempt := 1; ; attempt++ {
		current, err := h.guard.Admit(ctx, p.BookingID, eventID)
		if err != nil {
			return err
		}

		d := booking.Decide(*current, ev)
		if d.NoOp() {
			log.Info("Event does not apply to current state",
				zap.String("status", string(current.Status)),
				zap.String("payment_status", string(current.PaymentStatus)),
			)
			return nil
		}

		updated, err := h.repo.UpdateIfEventNewer(ctx, p.BookingID, eventID, current.Status, current.PaymentStatus, *d.Patch)
		switch {
		case err == nil:
			log.Info("Booking transitioned",
				zap.String("from", string(current.Status)),
				zap.String("status", string(updated.Status)),
				zap.String("payment_status", string(updated.PaymentStatus)),
			)
			if d.Milestone != "" {
				h.publisher.Publish(d.Milestone, *updated)
			}
			return nil
		case errors.Is(err, bookingRepo.ErrStale):
			return booking.NewReplay(p.BookingID, eventID)
		case errors.Is(err, bookingRepo.ErrBookingNotFound):
			return booking.NewMissingReference(p.BookingID, err)
		case errors.Is(err, bookingRepo.ErrConflict):
			if attempt >= h.conflictAttempts {
				return booking.NewTransientStoreFailure("booking kept changing during update", err)
			}
			log.Debug("Status changed underneath, recomputing", zap.Int("attempt", attempt))
		default:
			return booking.NewTransientStoreFailure("apply event", err)
		}
	}
}

// InformationalHandler accepts events this service only observes.
type InformationalHandler struct {
	logger *zap.Logger
}

func NewInformationalHandler(logger *zap.Logger) *InformationalHandler {
	return &InformationalHandler{logger: logger}
}

func (h *InformationalHandler) Handle(_ context.Context, env Envelope) error {
	h.logger.Debug("Informational event received",
		zap.String("topic", env.SourceTopic),
		zap.String("event_type", env.EventType),
	)
	return nil
}

// InformationalEventTypes are consumed but never change a booking.
var InformationalEventTypes = []string{
	"booking.created",
	"booking.canceled",
	"room.created",
	"room.updated",
	"room.deleted",
	"user.registered",
	"user.updated",
	"notification.sent",
	"review.created",
	"review.updated",
}

// NewBookingRouter wires the payment handlers and the informational topics.
func NewBookingRouter(repo bookingRepo.BookingRepository, publisher booking.LifecyclePublisher, deadLetters DeadLetterSink, logger *zap.Logger) *Router {
	r := NewRouter(logger, deadLetters)
	for _, kind := range []booking.EventKind{booking.PaymentSucceeded, booking.PaymentFailed, booking.PaymentRefunded} {
		r.RouteType(string(kind), NewPaymentHandler(kind, repo, publisher, logger))
	}
	info := NewInformationalHandler(logger)
	for _, t := range InformationalEventTypes {
		r.RouteType(t, info)
	}
	return r
}
