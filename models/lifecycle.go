package models

import "time"

// LifecyclePatch is the state written by a lifecycle transition. Empty
// strings and a nil RefundedAt leave the stored values untouched.
type LifecyclePatch struct {
	Status        BookingStatus
	PaymentStatus PaymentStatus
	PaymentID     string
	TransactionID string
	FailureReason string
	RefundedAt    *time.Time
}
