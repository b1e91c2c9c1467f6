package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// MongoBookingRepo implements BookingRepository using MongoDB.
type MongoBookingRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
	now     func() time.Time
}

// NewMongoBookingRepo constructs a repository over the bookings collection.
func NewMongoBookingRepo(coll *mongo.Collection) *MongoBookingRepo {
	return &MongoBookingRepo{
		coll:    coll,
		timeout: 5 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// GetByID retrieves a booking by its ID.
func (repo *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.timeout)
	defer cancel()

	var booking models.Booking
	err := repo.coll.FindOne(ctx, bson.M{"id": id}).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrBookingNotFound)
	}
	if err != nil {
		return nil, unavailable("error fetching booking "+id, err)
	}
	return &booking, nil
}

// Create inserts a new booking document.
func (repo *MongoBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, repo.timeout)
	defer cancel()

	_, err := repo.coll.InsertOne(ctx, booking)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("booking %s: %w", booking.ID, ErrDuplicateBooking)
	}
	if err != nil {
		return unavailable("error creating booking", err)
	}
	return nil
}

// Update replaces the editable fields of a booking that is not canceled.
func (repo *MongoBookingRepo) Update(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.timeout)
	defer cancel()

	filter := bson.M{"id": booking.ID, "status": bson.M{"$ne": models.BookingCanceled}}
	update := bson.M{"$set": bson.M{
		"startDate":     booking.StartDate,
		"endDate":       booking.EndDate,
		"paymentMethod": booking.PaymentMethod,
		"note":          booking.Note,
		"details":       booking.Details,
		"totalPrice":    booking.TotalPrice,
		"updatedAt":     repo.now(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Booking
	err := repo.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, unavailable("error updating booking "+booking.ID, err)
	}

	if _, err := repo.GetByID(ctx, booking.ID); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("booking %s: %w", booking.ID, ErrNotModifiable)
}

// Cancel moves a booking to CANCELED. Cancelling twice is not an error.
func (repo *MongoBookingRepo) Cancel(ctx context.Context, id string) (*models.Booking, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.timeout)
	defer cancel()

	filter := bson.M{
		"id":     id,
		"status": bson.M{"$in": bson.A{models.BookingPending, models.BookingConfirmed}},
	}
	update := bson.M{"$set": bson.M{"status": models.BookingCanceled, "updatedAt": repo.now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var canceled models.Booking
	err := repo.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&canceled)
	if err == nil {
		return &canceled, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, unavailable("error canceling booking "+id, err)
	}

	current, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// List returns one page of bookings, newest first.
func (repo *MongoBookingRepo) List(ctx context.Context, f models.BookingFilter) (*models.BookingPage, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.timeout)
	defer cancel()

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filter := bson.M{}
	if f.Status != nil {
		filter["status"] = *f.Status
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable("error listing bookings", err)
	}
	defer cursor.Close(ctx)

	items := []models.Booking{}
	for cursor.Next(ctx) {
		var b models.Booking
		if err := cursor.Decode(&b); err != nil {
			return nil, fmt.Errorf("error decoding booking: %w", err)
		}
		items = append(items, b)
	}
	if err := cursor.Err(); err != nil {
		return nil, unavailable("cursor error", err)
	}

	total, err := repo.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, unavailable("error counting bookings", err)
	}

	return &models.BookingPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// UpdateIfEventNewer applies a lifecycle patch only when eventID is newer
// than the stored marker and the booking still holds the status and payment
// status the patch was computed from.
func (repo *MongoBookingRepo) UpdateIfEventNewer(ctx context.Context, id string, eventID int64, expected models.BookingStatus, expectedPayment models.PaymentStatus, patch models.LifecyclePatch) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.timeout)
	defer cancel()

	filter := bson.M{
		"id":                 id,
		"status":             expected,
		"paymentStatus":      expectedPayment,
		"lastAppliedEventId": bson.M{"$lt": eventID},
	}
	update := bson.M{"$set": lifecycleSet(patch, eventID, repo.now())}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Booking
	err := repo.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, unavailable("error applying event to booking "+id, err)
	}

	// The filter missed; find out which condition failed.
	current, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.LastAppliedEventID >= eventID {
		return current, fmt.Errorf("booking %s event %d: %w", id, eventID, ErrStale)
	}
	return current, fmt.Errorf("booking %s expected %s/%s got %s/%s: %w",
		id, expected, expectedPayment, current.Status, current.PaymentStatus, ErrConflict)
}

func lifecycleSet(p models.LifecyclePatch, eventID int64, now time.Time) bson.M {
	set := bson.M{
		"status":             p.Status,
		"paymentStatus":      p.PaymentStatus,
		"lastAppliedEventId": eventID,
		"updatedAt":          now,
	}
	if p.PaymentID != "" {
		set["paymentId"] = p.PaymentID
	}
	if p.TransactionID != "" {
		set["transactionId"] = p.TransactionID
	}
	if p.FailureReason != "" {
		set["failureReason"] = p.FailureReason
	}
	if p.RefundedAt != nil {
		set["refundedAt"] = *p.RefundedAt
	}
	return set
}
