package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingRepo "staybook/database/repository/booking"
	"staybook/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBookingService implements BookingService.
type DefaultBookingService struct {
	Repo      bookingRepo.BookingRepository
	Publisher LifecyclePublisher
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewBookingService(repo bookingRepo.BookingRepository, publisher LifecyclePublisher, logger *zap.Logger) *DefaultBookingService {
	return &DefaultBookingService{
		Repo:      repo,
		Publisher: publisher,
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateBooking validates the request and stores a PENDING/PENDING booking.
func (s *DefaultBookingService) CreateBooking(ctx context.Context, in models.CreateBookingInput) (*models.Booking, error) {
	if err := models.ValidateCreateBooking(in); err != nil {
		return nil, err
	}

	now := s.Now()
	b := &models.Booking{
		ID:            uuid.NewString(),
		Status:        models.BookingPending,
		PaymentStatus: models.PaymentPending,
		PaymentMethod: models.PaymentMethod(in.PaymentMethod),
		StartDate:     in.StartDate.UTC(),
		EndDate:       in.EndDate.UTC(),
		Note:          in.Note,
		Details:       append([]models.BookingDetail(nil), in.Details...),
		TotalPrice:    models.SumPrices(in.Details),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.Repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.Logger.Info("Booking created",
		zap.String("booking_id", b.ID),
		zap.Float64("total_price", b.TotalPrice),
		zap.Int("items", len(b.Details)),
	)
	s.Publisher.Publish(BookingCreated, *b)
	return b, nil
}

func (s *DefaultBookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.Repo.GetByID(ctx, id)
}

func (s *DefaultBookingService) ListBookings(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error) {
	return s.Repo.List(ctx, filter)
}

// UpdateBooking applies a partial update. Canceled bookings are frozen.
func (s *DefaultBookingService) UpdateBooking(ctx context.Context, id string, patch models.BookingPatch) (*models.Booking, error) {
	if patch.IsEmpty() {
		return nil, ErrNothingToUpdate
	}
	if err := models.ValidateBookingPatch(patch); err != nil {
		return nil, err
	}

	current, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingCanceled {
		return nil, fmt.Errorf("booking %s: %w", id, ErrBookingCanceled)
	}

	next, err := models.ApplyBookingPatch(*current, patch)
	if err != nil {
		return nil, err
	}

	updated, err := s.Repo.Update(ctx, &next)
	if errors.Is(err, bookingRepo.ErrNotModifiable) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrBookingCanceled)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	s.Logger.Info("Booking updated", zap.String("booking_id", id))
	s.Publisher.Publish(BookingUpdated, *updated)
	return updated, nil
}

// CancelBooking is the user-initiated cancel. A second cancel returns the
// booking unchanged and publishes nothing.
func (s *DefaultBookingService) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	current, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if Decide(*current, Event{Kind: UserCanceled}).NoOp() {
		return current, nil
	}

	b, changed, err := s.Repo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		s.Logger.Debug("Booking already canceled", zap.String("booking_id", id))
		return b, nil
	}

	s.Logger.Info("Booking canceled",
		zap.String("booking_id", id),
		zap.String("payment_status", string(b.PaymentStatus)),
	)
	s.Publisher.Publish(BookingCanceled, *b)
	if b.PaymentStatus == models.PaymentPending || b.PaymentStatus == models.PaymentSuccess {
		s.Publisher.Publish(PaymentCancel, *b)
	}
	return b, nil
}
