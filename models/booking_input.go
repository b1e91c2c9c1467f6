package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateBookingInput is the body of a booking creation request.
type CreateBookingInput struct {
	StartDate     time.Time       `json:"startDate"`
	EndDate       time.Time       `json:"endDate"`
	PaymentMethod string          `json:"paymentMethod"`
	Note          string          `json:"note,omitempty"`
	Details       []BookingDetail `json:"details"`
}

// BookingPatch is a partial update. Nil fields are left untouched and
// Details, when present, replaces the whole list. Status is deliberately
// absent: it only moves through the lifecycle transitions.
type BookingPatch struct {
	StartDate     *time.Time       `json:"startDate,omitempty"`
	EndDate       *time.Time       `json:"endDate,omitempty"`
	PaymentMethod *string          `json:"paymentMethod,omitempty"`
	Note          *string          `json:"note,omitempty"`
	Details       *[]BookingDetail `json:"details,omitempty"`
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every invalid field of a request.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ValidateCreateBooking checks a creation request.
func ValidateCreateBooking(in CreateBookingInput) error {
	v := &ValidationError{}
	if in.StartDate.IsZero() {
		v.add("startDate", "is required")
	}
	if in.EndDate.IsZero() {
		v.add("endDate", "is required")
	}
	if !in.StartDate.IsZero() && !in.EndDate.IsZero() && !in.EndDate.After(in.StartDate) {
		v.add("endDate", "must be after startDate")
	}
	if _, err := ParsePaymentMethod(in.PaymentMethod); err != nil {
		v.add("paymentMethod", "must be one of %s, %s", PaymentMethodVietQR, PaymentMethodVNPay)
	}
	if len(in.Details) == 0 {
		v.add("details", "must contain at least one item")
	}
	validateDetails(v, in.Details)
	return v.errOrNil()
}

// ValidateBookingPatch checks the fields present in a patch on their own.
func ValidateBookingPatch(p BookingPatch) error {
	v := &ValidationError{}
	if p.StartDate != nil && p.StartDate.IsZero() {
		v.add("startDate", "must be a valid date")
	}
	if p.EndDate != nil && p.EndDate.IsZero() {
		v.add("endDate", "must be a valid date")
	}
	if p.PaymentMethod != nil {
		if _, err := ParsePaymentMethod(*p.PaymentMethod); err != nil {
			v.add("paymentMethod", "must be one of %s, %s", PaymentMethodVietQR, PaymentMethodVNPay)
		}
	}
	if p.Details != nil {
		if len(*p.Details) == 0 {
			v.add("details", "must contain at least one item")
		}
		validateDetails(v, *p.Details)
	}
	return v.errOrNil()
}

// IsEmpty reports whether the patch changes nothing.
func (p BookingPatch) IsEmpty() bool {
	return p.StartDate == nil && p.EndDate == nil && p.PaymentMethod == nil && p.Note == nil && p.Details == nil
}

// ApplyBookingPatch returns b with the patch applied and revalidates the
// fields that depend on each other.
func ApplyBookingPatch(b Booking, p BookingPatch) (Booking, error) {
	if err := ValidateBookingPatch(p); err != nil {
		return b, err
	}
	if p.StartDate != nil {
		b.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		b.EndDate = *p.EndDate
	}
	if p.PaymentMethod != nil {
		b.PaymentMethod = PaymentMethod(*p.PaymentMethod)
	}
	if p.Note != nil {
		b.Note = *p.Note
	}
	if p.Details != nil {
		b.Details = append([]BookingDetail(nil), (*p.Details)...)
		b.TotalPrice = SumPrices(b.Details)
	}
	if !b.EndDate.After(b.StartDate) {
		v := &ValidationError{}
		v.add("endDate", "must be after startDate")
		return b, v
	}
	return b, nil
}

func validateDetails(v *ValidationError, details []BookingDetail) {
	for i, d := range details {
		field := fmt.Sprintf("details[%d]", i)
		if _, err := uuid.Parse(d.RoomID); err != nil {
			v.add(field+".roomId", "must be a UUID")
		}
		if d.Price < 0 {
			v.add(field+".price", "must not be negative")
		}
		if d.Time < 0 {
			v.add(field+".time", "must not be negative")
		}
	}
}
