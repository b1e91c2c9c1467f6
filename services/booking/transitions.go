package booking

import (
	"time"

	"staybook/models"
)

// EventKind is an input to the lifecycle state machine.
type EventKind string

const (
	PaymentSucceeded EventKind = "payment.success"
	PaymentFailed    EventKind = "payment.failed"
	PaymentRefunded  EventKind = "payment.refunded"
	UserCanceled     EventKind = "user.cancel"
)

// LifecycleEvent is an outbound notification about a booking.
type LifecycleEvent string

const (
	BookingCreated   LifecycleEvent = "booking.created"
	BookingUpdated   LifecycleEvent = "booking.updated"
	BookingCanceled  LifecycleEvent = "booking.canceled"
	BookingConfirmed LifecycleEvent = "booking.confirmed"
	PaymentCancel    LifecycleEvent = "payment.cancel"
)

// Event carries the facts of one inbound occurrence.
type Event struct {
	Kind          EventKind
	PaymentID     string
	TransactionID string
	Reason        string
	OccurredAt    time.Time
}

// Decision is the outcome of applying an event to a booking. A nil Patch
// means the event is a no-op for the booking's current state.
type Decision struct {
	Patch     *models.LifecyclePatch
	Milestone LifecycleEvent
}

// NoOp reports whether the decision leaves the booking untouched.
func (d Decision) NoOp() bool {
	return d.Patch == nil
}

// Decide is the lifecycle transition table. It is total: any pair not
// listed yields a no-op.
func Decide(b models.Booking, ev Event) Decision {
	switch b.Status {
	case models.BookingPending:
		switch ev.Kind {
		case PaymentSucceeded:
			return Decision{
				Patch: &models.LifecyclePatch{
					Status:        models.BookingConfirmed,
					PaymentStatus: models.PaymentSuccess,
					PaymentID:     ev.PaymentID,
					TransactionID: ev.TransactionID,
				},
				Milestone: BookingConfirmed,
			}
		case PaymentFailed:
			return Decision{
				Patch: &models.LifecyclePatch{
					Status:        models.BookingPending,
					PaymentStatus: models.PaymentFailed,
					PaymentID:     ev.PaymentID,
					FailureReason: failureReason(ev.Reason),
				},
			}
		case PaymentRefunded:
			return refund(b, ev)
		case UserCanceled:
			return cancel(b)
		}
	case models.BookingConfirmed:
		switch ev.Kind {
		case PaymentRefunded:
			return refund(b, ev)
		case UserCanceled:
			return cancel(b)
		}
	}
	return Decision{}
}

func refund(b models.Booking, ev Event) Decision {
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Decision{
		Patch: &models.LifecyclePatch{
			Status:        models.BookingCanceled,
			PaymentStatus: b.PaymentStatus,
			PaymentID:     ev.PaymentID,
			RefundedAt:    &at,
		},
		Milestone: BookingCanceled,
	}
}

func cancel(b models.Booking) Decision {
	return Decision{
		Patch: &models.LifecyclePatch{
			Status:        models.BookingCanceled,
			PaymentStatus: b.PaymentStatus,
		},
		Milestone: BookingCanceled,
	}
}

func failureReason(reason string) string {
	if reason == "" {
		return "unspecified"
	}
	return reason
}
