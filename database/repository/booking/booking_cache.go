package bookingRepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"staybook/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "booking:"

// CachedBookingRepo is a read-through Redis cache in front of another
// repository. Every write drops the cached entry. Cache errors are logged and
// never fail the call.
type CachedBookingRepo struct {
	next   BookingRepository
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedBookingRepo(next BookingRepository, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedBookingRepo {
	return &CachedBookingRepo{next: next, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}

func (r *CachedBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	raw, err := r.cache.Get(ctx, cacheKey(id)).Bytes()
	if err == nil {
		var b models.Booking
		if jsonErr := json.Unmarshal(raw, &b); jsonErr == nil {
			return &b, nil
		}
		r.logger.Warn("Dropping undecodable cached booking", zap.String("booking_id", id))
		r.invalidate(ctx, id)
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Warn("Booking cache read failed", zap.String("booking_id", id), zap.Error(err))
	}

	b, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, b)
	return b, nil
}

func (r *CachedBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	return r.next.Create(ctx, booking)
}

func (r *CachedBookingRepo) Update(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	defer r.invalidate(ctx, booking.ID)
	return r.next.Update(ctx, booking)
}

func (r *CachedBookingRepo) Cancel(ctx context.Context, id string) (*models.Booking, bool, error) {
	defer r.invalidate(ctx, id)
	return r.next.Cancel(ctx, id)
}

func (r *CachedBookingRepo) List(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error) {
	return r.next.List(ctx, filter)
}

// UpdateIfEventNewer always invalidates so a Conflict re-read sees the stored document.
func (r *CachedBookingRepo) UpdateIfEventNewer(ctx context.Context, id string, eventID int64, expected models.BookingStatus, expectedPayment models.PaymentStatus, patch models.LifecyclePatch) (*models.Booking, error) {
	defer r.invalidate(ctx, id)
	return r.next.UpdateIfEventNewer(ctx, id, eventID, expected, expectedPayment, patch)
}

func (r *CachedBookingRepo) store(ctx context.Context, b *models.Booking) {
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(b.ID), raw, r.ttl).Err(); err != nil {
		r.logger.Warn("Booking cache write failed", zap.String("booking_id", b.ID), zap.Error(err))
	}
}

func (r *CachedBookingRepo) invalidate(ctx context.Context, id string) {
	if err := r.cache.Del(ctx, cacheKey(id)).Err(); err != nil {
		r.logger.Warn("Booking cache invalidation failed", zap.String("booking_id", id), zap.Error(err))
	}
}
