package models

import (
	"fmt"
	"time"
)

// BookingStatus is the reservation lifecycle state.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCanceled  BookingStatus = "CANCELED"
)

// PaymentStatus tracks the payment outcome independently of the booking status.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// PaymentMethod is the channel the guest pays through.
type PaymentMethod string

const (
	PaymentMethodVietQR PaymentMethod = "VIETQR"
	PaymentMethodVNPay  PaymentMethod = "VNPAY"
)

// ParseBookingStatus validates a status coming from outside the service.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case BookingPending, BookingConfirmed, BookingCanceled:
		return st, nil
	}
	return "", fmt.Errorf("invalid booking status %q", s)
}

// ParsePaymentStatus validates a payment status coming from outside the service.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentPending, PaymentSuccess, PaymentFailed:
		return st, nil
	}
	return "", fmt.Errorf("invalid payment status %q", s)
}

// ParsePaymentMethod validates a payment method coming from outside the service.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodVietQR, PaymentMethodVNPay:
		return m, nil
	}
	return "", fmt.Errorf("invalid payment method %q", s)
}

// Booking is a reservation with its own lifecycle and an independent payment axis.
type Booking struct {
	ID                 string          `bson:"id" json:"id"`
	Status             BookingStatus   `bson:"status" json:"status"`
	PaymentStatus      PaymentStatus   `bson:"paymentStatus" json:"paymentStatus"`
	PaymentMethod      PaymentMethod   `bson:"paymentMethod" json:"paymentMethod"`
	StartDate          time.Time       `bson:"startDate" json:"startDate"`
	EndDate            time.Time       `bson:"endDate" json:"endDate"`
	Note               string          `bson:"note,omitempty" json:"note,omitempty"`
	Details            []BookingDetail `bson:"details" json:"details"`
	TotalPrice         float64         `bson:"totalPrice" json:"totalPrice"`
	LastAppliedEventID int64           `bson:"lastAppliedEventId" json:"lastAppliedEventId"`

	// Payment bookkeeping recorded from inbound payment events.
	PaymentID     string     `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	TransactionID string     `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	FailureReason string     `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	RefundedAt    *time.Time `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// BookingDetail is one line item. It belongs to exactly one booking.
type BookingDetail struct {
	RoomID string  `bson:"roomId" json:"roomId"`
	Price  float64 `bson:"price" json:"price"`
	Time   int     `bson:"time" json:"time"`
	Note   string  `bson:"note,omitempty" json:"note,omitempty"`
}

// SumPrices totals the detail prices.
func SumPrices(details []BookingDetail) float64 {
	var total float64
	for _, d := range details {
		total += d.Price
	}
	return total
}

// BookingFilter narrows a booking listing.
type BookingFilter struct {
	Status *BookingStatus
	Page   int
	Limit  int
}

// BookingPage is one page of a listing.
type BookingPage struct {
	Items []Booking `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}
