package bookingRepo

import (
	"context"
	"testing"
	"time"

	"staybook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const testNS = "staybook.bookings"

func toDoc(t *testing.T, b models.Booking) bson.D {
	t.Helper()
	raw, err := bson.Marshal(b)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func sampleBooking(status models.BookingStatus, last int64) models.Booking {
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	return models.Booking{
		ID:                 "b1",
		Status:             status,
		PaymentStatus:      models.PaymentPending,
		PaymentMethod:      models.PaymentMethodVNPay,
		StartDate:          created.Add(24 * time.Hour),
		EndDate:            created.Add(72 * time.Hour),
		Details:            []models.BookingDetail{{RoomID: "3f8e9a3c-7c1e-4d5e-9a57-1d1b2c3d4e5f", Price: 100, Time: 2}},
		TotalPrice:         100,
		LastAppliedEventID: last,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

func noDocument() bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil})
}

func TestMongoBookingRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("GetByID found", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, toDoc(t, sampleBooking(models.BookingPending, 0))))

		b, err := repo.GetByID(context.Background(), "b1")
		require.NoError(t, err)
		assert.Equal(t, "b1", b.ID)
		assert.Equal(t, models.BookingPending, b.Status)
		assert.Len(t, b.Details, 1)
	})

	mt.Run("GetByID not found", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch))

		_, err := repo.GetByID(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})

	mt.Run("GetByID driver failure is transient", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 91, Name: "ShutdownInProgress", Message: "shutting down"}))

		_, err := repo.GetByID(context.Background(), "b1")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	mt.Run("Create", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		b := sampleBooking(models.BookingPending, 0)
		assert.NoError(t, repo.Create(context.Background(), &b))
	})

	mt.Run("Create duplicate", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key error"}))

		b := sampleBooking(models.BookingPending, 0)
		assert.ErrorIs(t, repo.Create(context.Background(), &b), ErrDuplicateBooking)
	})

	mt.Run("UpdateIfEventNewer applied", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		after := sampleBooking(models.BookingConfirmed, 5)
		after.PaymentStatus = models.PaymentSuccess
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(t, after)}))

		patch := models.LifecyclePatch{Status: models.BookingConfirmed, PaymentStatus: models.PaymentSuccess, PaymentID: "p1"}
		b, err := repo.UpdateIfEventNewer(context.Background(), "b1", 5, models.BookingPending, models.PaymentPending, patch)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, b.Status)
		assert.Equal(t, int64(5), b.LastAppliedEventID)
	})

	mt.Run("UpdateIfEventNewer stale", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(
			noDocument(),
			mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, toDoc(t, sampleBooking(models.BookingConfirmed, 5))),
		)

		b, err := repo.UpdateIfEventNewer(context.Background(), "b1", 3, models.BookingConfirmed, models.PaymentSuccess, models.LifecyclePatch{})
		assert.ErrorIs(t, err, ErrStale)
		require.NotNil(t, b)
		assert.Equal(t, int64(5), b.LastAppliedEventID)
	})

	mt.Run("UpdateIfEventNewer conflict", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(
			noDocument(),
			mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, toDoc(t, sampleBooking(models.BookingCanceled, 2))),
		)

		b, err := repo.UpdateIfEventNewer(context.Background(), "b1", 7, models.BookingPending, models.PaymentPending, models.LifecyclePatch{})
		assert.ErrorIs(t, err, ErrConflict)
		require.NotNil(t, b)
		assert.Equal(t, models.BookingCanceled, b.Status)
	})

	mt.Run("UpdateIfEventNewer payment status moved", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		failed := sampleBooking(models.BookingPending, 2)
		failed.PaymentStatus = models.PaymentFailed
		mt.AddMockResponses(
			noDocument(),
			mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, toDoc(t, failed)),
		)

		patch := models.LifecyclePatch{Status: models.BookingCanceled, PaymentStatus: models.PaymentPending}
		b, err := repo.UpdateIfEventNewer(context.Background(), "b1", 7, models.BookingPending, models.PaymentPending, patch)
		assert.ErrorIs(t, err, ErrConflict)
		require.NotNil(t, b)
		assert.Equal(t, models.PaymentFailed, b.PaymentStatus)
	})

	mt.Run("UpdateIfEventNewer missing booking", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(noDocument(), mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch))

		_, err := repo.UpdateIfEventNewer(context.Background(), "nope", 1, models.BookingPending, models.PaymentPending, models.LifecyclePatch{})
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})

	mt.Run("Cancel already canceled", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(
			noDocument(),
			mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, toDoc(t, sampleBooking(models.BookingCanceled, 0))),
		)

		b, changed, err := repo.Cancel(context.Background(), "b1")
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, models.BookingCanceled, b.Status)
	})

	mt.Run("Cancel pending", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(t, sampleBooking(models.BookingCanceled, 0))}))

		b, changed, err := repo.Cancel(context.Background(), "b1")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.BookingCanceled, b.Status)
	})

	mt.Run("Update canceled booking", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		mt.AddMockResponses(
			noDocument(),
			mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, toDoc(t, sampleBooking(models.BookingCanceled, 0))),
		)

		b := sampleBooking(models.BookingCanceled, 0)
		_, err := repo.Update(context.Background(), &b)
		assert.ErrorIs(t, err, ErrNotModifiable)
	})

	mt.Run("List", func(mt *mtest.T) {
		repo := NewMongoBookingRepo(mt.Coll)
		first := sampleBooking(models.BookingPending, 0)
		second := sampleBooking(models.BookingPending, 0)
		second.ID = "b2"
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, toDoc(t, first), toDoc(t, second)),
			mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(12)}}),
		)

		status := models.BookingPending
		page, err := repo.List(context.Background(), models.BookingFilter{Status: &status, Page: 2, Limit: 500})
		require.NoError(t, err)
		assert.Len(t, page.Items, 2)
		assert.Equal(t, int64(12), page.Total)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, maxPageSize, page.Limit)
	})
}

func TestLifecycleSet(t *testing.T) {
	now := time.Now().UTC()
	refunded := now.Add(-time.Minute)

	set := lifecycleSet(models.LifecyclePatch{Status: models.BookingCanceled, PaymentStatus: models.PaymentSuccess, RefundedAt: &refunded}, 9, now)

	assert.Equal(t, models.BookingCanceled, set["status"])
	assert.Equal(t, int64(9), set["lastAppliedEventId"])
	assert.Equal(t, refunded, set["refundedAt"])
	assert.NotContains(t, set, "paymentId")
	assert.NotContains(t, set, "failureReason")
}
