package models

import "time"

// DeadLetter is an inbound message that was rejected or ran out of redeliveries.
type DeadLetter struct {
	ID          string    `bson:"id" json:"id"`
	SourceTopic string    `bson:"sourceTopic" json:"sourceTopic"`
	EventType   string    `bson:"eventType" json:"eventType"`
	BookingID   string    `bson:"bookingId,omitempty" json:"bookingId,omitempty"`
	EventID     int64     `bson:"eventId,omitempty" json:"eventId,omitempty"`
	Payload     string    `bson:"payload" json:"payload"`
	Reason      string    `bson:"reason" json:"reason"`
	ReceivedAt  time.Time `bson:"receivedAt" json:"receivedAt"`
	ArchivedAt  time.Time `bson:"archivedAt" json:"archivedAt"`
}
