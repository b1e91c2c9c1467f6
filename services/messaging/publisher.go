package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"staybook/models"
	"staybook/services/booking"

	"go.uber.org/zap"
)

// Transport delivers one outbound message. key is used for partitioning
// where the transport supports it.
type Transport interface {
	Send(ctx context.Context, topic, key string, body []byte) error
}

// FailureObserver is told about every publish that did not go through.
type FailureObserver func(event booking.LifecycleEvent, bookingID string, err error)

// LifecyclePayload is the body of every outbound booking event.
type LifecyclePayload struct {
	Event              string               `json:"event"`
	BookingID          string               `json:"bookingId"`
	Status             models.BookingStatus `json:"status"`
	PaymentStatus      models.PaymentStatus `json:"paymentStatus"`
	PaymentMethod      models.PaymentMethod `json:"paymentMethod,omitempty"`
	PaymentID          string               `json:"paymentId,omitempty"`
	TotalPrice         float64              `json:"totalPrice"`
	LastAppliedEventID int64                `json:"lastAppliedEventId"`
	Timestamp          time.Time            `json:"timestamp"`
}

// Publisher sends lifecycle events in the background. Publish never blocks
// on the transport and never returns an error.
type Publisher struct {
	transport Transport
	logger    *zap.Logger
	timeout   time.Duration
	observer  FailureObserver
	now       func() time.Time
	wg        sync.WaitGroup
}

type PublisherOption func(*Publisher)

func WithFailureObserver(o FailureObserver) PublisherOption {
	return func(p *Publisher) { p.observer = o }
}

func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

func NewPublisher(transport Transport, timeout time.Duration, logger *zap.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		transport: transport,
		logger:    logger,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Publish(event booking.LifecycleEvent, b models.Booking) {
	payload := LifecyclePayload{
		Event:              string(event),
		BookingID:          b.ID,
		Status:             b.Status,
		PaymentStatus:      b.PaymentStatus,
		PaymentMethod:      b.PaymentMethod,
		PaymentID:          b.PaymentID,
		TotalPrice:         b.TotalPrice,
		LastAppliedEventID: b.LastAppliedEventID,
		Timestamp:          p.now(),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.send(event, payload)
	}()
}

func (p *Publisher) send(event booking.LifecycleEvent, payload LifecyclePayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.fail(event, payload.BookingID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.transport.Send(ctx, string(event), payload.BookingID, body); err != nil {
		p.fail(event, payload.BookingID, err)
		return
	}
	p.logger.Debug("Lifecycle event published",
		zap.String("event", string(event)),
		zap.String("booking_id", payload.BookingID),
	)
}

func (p *Publisher) fail(event booking.LifecycleEvent, bookingID string, err error) {
	p.logger.Error("Failed to publish lifecycle event",
		zap.String("event", string(event)),
		zap.String("booking_id", bookingID),
		zap.Error(err),
	)
	if p.observer != nil {
		p.observer(event, bookingID, err)
	}
}

// Wait blocks until every in-flight publish has finished.
func (p *Publisher) Wait() {
	p.wg.Wait()
}
