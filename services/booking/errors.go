package booking

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an inbound event could not be applied.
type ErrorKind string

const (
	// KindMalformedEvent is a payload missing required fields. Redelivery never fixes it.
	KindMalformedEvent ErrorKind = "malformedEvent"
	// KindMissingReference is an event for a booking that does not exist.
	KindMissingReference ErrorKind = "missingReference"
	// KindTransientStoreFailure means the store could not be reached; the event may succeed later.
	KindTransientStoreFailure ErrorKind = "transientStoreFailure"
	// KindReplay is an event that is not newer than the last one applied.
	KindReplay ErrorKind = "replay"
)

type EventError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *EventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

func NewMalformedEvent(msg string) error {
	return &EventError{Kind: KindMalformedEvent, Message: msg}
}

func NewMissingReference(bookingID string, err error) error {
	return &EventError{Kind: KindMissingReference, Message: "booking " + bookingID + " not found", Err: err}
}

func NewTransientStoreFailure(msg string, err error) error {
	return &EventError{Kind: KindTransientStoreFailure, Message: msg, Err: err}
}

func NewReplay(bookingID string, eventID int64) error {
	return &EventError{Kind: KindReplay, Message: fmt.Sprintf("event %d already applied to booking %s", eventID, bookingID)}
}

// KindOf returns the kind of an EventError anywhere in err's chain.
// Unclassified errors are treated as transient.
func KindOf(err error) ErrorKind {
	var ee *EventError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindTransientStoreFailure
}

// CRUD surface errors.
var (
	ErrBookingCanceled = errors.New("booking is canceled")
	ErrNothingToUpdate = errors.New("patch contains no fields")
)
