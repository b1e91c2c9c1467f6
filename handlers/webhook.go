package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"staybook/services/booking"
	"staybook/services/messaging"
	"staybook/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// StripeWebhookTopic is the source topic of envelopes built from Stripe events.
const StripeWebhookTopic = "stripe.webhook"

const maxWebhookBody = int64(65536)

// EventDispatcher applies one inbound envelope. *messaging.Router satisfies it.
type EventDispatcher interface {
	Handle(ctx context.Context, env messaging.Envelope) messaging.Outcome
}

// StripeWebhookHandler turns signed Stripe events into payment envelopes.
// RETRY answers 503 so Stripe redelivers. ACK and REJECT both answer 200; a
// rejected event is already dead-lettered and carries "rejected": true.
type StripeWebhookHandler struct {
	Secret     string
	Dispatcher EventDispatcher
	Logger     *zap.Logger
}

func NewStripeWebhookHandler(secret string, dispatcher EventDispatcher, logger *zap.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{Secret: secret, Dispatcher: dispatcher, Logger: logger}
}

func (h *StripeWebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusRequestEntityTooLarge, "Failed to read webhook body", err.Error())
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, c.GetHeader("Stripe-Signature"), h.Secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid webhook signature", err.Error())
		return
	}

	log := h.Logger.With(zap.String("stripe_event", event.ID), zap.String("type", string(event.Type)))

	eventType, payload, err := translateStripeEvent(event)
	if errors.Is(err, errUnhandledStripeEvent) {
		log.Debug("Ignoring stripe event")
		utils.JSONData(c, http.StatusOK, "Event ignored", nil)
		return
	}
	if err != nil {
		log.Warn("Unreadable stripe event object", zap.Error(err))
		utils.JSONData(c, http.StatusOK, "Event rejected", gin.H{"eventType": string(event.Type), "rejected": true})
		return
	}

	env := messaging.NewEnvelope(StripeWebhookTopic, eventType, payload, event.ID)
	outcome := h.Dispatcher.Handle(c.Request.Context(), env)
	log.Info("Stripe event dispatched",
		zap.String("booking_id", env.BookingID),
		zap.Stringer("outcome", outcome),
	)

	switch outcome {
	case messaging.Ack:
		utils.JSONData(c, http.StatusOK, "Event processed", gin.H{"eventType": eventType})
	case messaging.Retry:
		utils.JSONError(c, http.StatusServiceUnavailable, "Event not applied yet", "Retry later.")
	default:
		utils.JSONData(c, http.StatusOK, "Event rejected", gin.H{"eventType": eventType, "rejected": true})
	}
}

var errUnhandledStripeEvent = errors.New("unhandled stripe event type")

// Stripe only stamps events to the second. Within one second a failure sorts
// before a success and a success before a refund.
const stripeRanksPerSecond = 4

var stripeEventRank = map[booking.EventKind]int64{
	booking.PaymentFailed:    1,
	booking.PaymentSucceeded: 2,
	booking.PaymentRefunded:  3,
}

// stripeEventID orders Stripe events by creation second, then by kind.
func stripeEventID(created int64, kind booking.EventKind) int64 {
	return created*stripeRanksPerSecond + stripeEventRank[kind]
}

// translateStripeEvent maps a Stripe event onto a payment event type and its
// JSON body. The booking id comes from the object's metadata and the event
// id from stripeEventID, so newer Stripe events always win.
func translateStripeEvent(event stripe.Event) (string, []byte, error) {
	if event.Data == nil {
		return "", nil, errors.New("event has no data object")
	}

	ts := time.Unix(event.Created, 0).UTC()
	p := messaging.PaymentPayload{Timestamp: &ts}

	var eventType string
	switch string(event.Type) {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return "", nil, err
		}
		amount := float64(pi.AmountReceived)
		if amount == 0 {
			amount = float64(pi.Amount)
		}
		eventType = string(booking.PaymentSucceeded)
		p.BookingID = pi.Metadata["bookingId"]
		p.PaymentID = pi.ID
		p.Amount = &amount
		p.TransactionID = pi.ID
		if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
			p.TransactionID = pi.LatestCharge.ID
		}

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return "", nil, err
		}
		eventType = string(booking.PaymentFailed)
		p.BookingID = pi.Metadata["bookingId"]
		p.PaymentID = pi.ID
		if pi.LastPaymentError != nil {
			p.Reason = pi.LastPaymentError.Msg
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return "", nil, err
		}
		eventType = string(booking.PaymentRefunded)
		p.BookingID = ch.Metadata["bookingId"]
		p.PaymentID = ch.ID
		if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
			p.PaymentID = ch.PaymentIntent.ID
		}

	default:
		return "", nil, errUnhandledStripeEvent
	}
	p.EventID = messaging.EventID(stripeEventID(event.Created, booking.EventKind(eventType)))

	body, err := json.Marshal(p)
	if err != nil {
		return "", nil, err
	}
	return eventType, body, nil
}
