package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	bookingRepo "staybook/database/repository/booking"
	"staybook/models"
	"staybook/services/booking"
)

// memStore is an in-memory BookingRepository with the same conditional
// update rules as the Mongo repository.
type memStore struct {
	mu       sync.Mutex
	bookings map[string]models.Booking
	// unavailable makes every call fail with ErrStoreUnavailable.
	unavailable bool
	// interfere runs once before the next conditional update is evaluated.
	interfere func(b *models.Booking)
	updates   int
}

func newMemStore(bs ...models.Booking) *memStore {
	s := &memStore{bookings: make(map[string]models.Booking)}
	for _, b := range bs {
		s.bookings[b.ID] = b
	}
	return s
}

func (s *memStore) get(id string) models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[id]
}

func (s *memStore) setUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

func (s *memStore) down() error {
	if s.unavailable {
		return fmt.Errorf("ping: %w", bookingRepo.ErrStoreUnavailable)
	}
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.down(); err != nil {
		return nil, err
	}
	b, ok := s.bookings[id]
	if !ok {
		return nil, bookingRepo.ErrBookingNotFound
	}
	return &b, nil
}

func (s *memStore) Create(_ context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = *b
	return nil
}

func (s *memStore) Update(_ context.Context, b *models.Booking) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = *b
	return b, nil
}

func (s *memStore) Cancel(_ context.Context, id string) (*models.Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, false, bookingRepo.ErrBookingNotFound
	}
	if b.Status == models.BookingCanceled {
		return &b, false, nil
	}
	b.Status = models.BookingCanceled
	s.bookings[id] = b
	return &b, true, nil
}

func (s *memStore) List(context.Context, models.BookingFilter) (*models.BookingPage, error) {
	return &models.BookingPage{}, nil
}

func (s *memStore) UpdateIfEventNewer(_ context.Context, id string, eventID int64, expected models.BookingStatus, expectedPayment models.PaymentStatus, p models.LifecyclePatch) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.down(); err != nil {
		return nil, err
	}
	b, ok := s.bookings[id]
	if !ok {
		return nil, bookingRepo.ErrBookingNotFound
	}
	if s.interfere != nil {
		s.interfere(&b)
		s.bookings[id] = b
		s.interfere = nil
	}
	if b.LastAppliedEventID >= eventID {
		return &b, bookingRepo.ErrStale
	}
	if b.Status != expected || b.PaymentStatus != expectedPayment {
		return &b, bookingRepo.ErrConflict
	}

	b.Status = p.Status
	b.PaymentStatus = p.PaymentStatus
	if p.PaymentID != "" {
		b.PaymentID = p.PaymentID
	}
	if p.TransactionID != "" {
		b.TransactionID = p.TransactionID
	}
	if p.FailureReason != "" {
		b.FailureReason = p.FailureReason
	}
	if p.RefundedAt != nil {
		b.RefundedAt = p.RefundedAt
	}
	b.LastAppliedEventID = eventID
	b.UpdatedAt = time.Now().UTC()
	s.bookings[id] = b
	s.updates++
	return &b, nil
}

type publishedEvent struct {
	event   booking.LifecycleEvent
	booking models.Booking
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(event booking.LifecycleEvent, b models.Booking) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{event: event, booking: b})
}

func (p *recordingPublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type deadLetter struct {
	env    Envelope
	reason string
}

type recordingSink struct {
	mu      sync.Mutex
	letters []deadLetter
	err     error
}

func (s *recordingSink) DeadLetter(_ context.Context, env Envelope, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, deadLetter{env: env, reason: reason})
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.letters)
}
