package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Outcome is the router's verdict for one delivery.
type Outcome int

const (
	// Ack removes the message from the transport.
	Ack Outcome = iota
	// Retry asks the transport to redeliver later.
	Retry
	// Reject drops the message; it is dead-lettered first.
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ACK"
	case Retry:
		return "RETRY"
	case Reject:
		return "REJECT"
	}
	return "Outcome(" + strconv.Itoa(int(o)) + ")"
}

// Envelope wraps one inbound message with its routing metadata.
type Envelope struct {
	SourceTopic string          `json:"sourceTopic"`
	EventType   string          `json:"eventType"`
	Payload     json.RawMessage `json:"payload"`
	EventID     int64           `json:"eventId"`
	BookingID   string          `json:"bookingId"`
	ReceivedAt  time.Time       `json:"receivedAt"`

	// DeliveryHandle belongs to the transport that produced the envelope.
	DeliveryHandle interface{} `json:"-"`
	// BrokerDeadLetters is set when the transport's broker archives rejected
	// deliveries itself. The router then skips its own sink.
	BrokerDeadLetters bool `json:"-"`
}

// EventID accepts both JSON numbers and numeric strings.
type EventID int64

func (id *EventID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("eventId %q is not an integer", string(b))
	}
	*id = EventID(n)
	return nil
}

type envelopeHeader struct {
	BookingID string  `json:"bookingId"`
	EventID   EventID `json:"eventId"`
}

// NewEnvelope builds an envelope from a raw message body. The booking id
// and event id are lifted from the body when it is a JSON object; a body
// that cannot be read leaves them empty and is rejected by the handler.
func NewEnvelope(topic, eventType string, body []byte, handle interface{}) Envelope {
	env := Envelope{
		SourceTopic:    topic,
		EventType:      eventType,
		Payload:        json.RawMessage(body),
		ReceivedAt:     time.Now().UTC(),
		DeliveryHandle: handle,
	}
	var h envelopeHeader
	if err := json.Unmarshal(body, &h); err == nil {
		env.BookingID = h.BookingID
		env.EventID = int64(h.EventID)
	}
	return env
}
