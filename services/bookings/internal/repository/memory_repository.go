package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
)

// MemoryBookingRepository keeps bookings in process. It backs local runs
// (BOOKING_STORE=memory) and tests, and enforces the same version check and
// confirmed-overlap rule as the Postgres schema.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]domain.Booking
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[string]domain.Booking)}
}

func (m *MemoryBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.CheckConsistency(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bookings[b.ID]; exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	m.bookings[b.ID] = clone(*b)
	return nil
}

func (m *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	out := clone(b)
	return &out, nil
}

func (m *MemoryBookingRepository) ListByListing(ctx context.Context, listingID string, f domain.BookingFilter) ([]domain.Booking, error) {
	return m.list(ctx, f, func(b *domain.Booking) bool { return b.ListingID == listingID })
}

func (m *MemoryBookingRepository) ListByUser(ctx context.Context, userID string, f domain.BookingFilter) ([]domain.Booking, error) {
	return m.list(ctx, f, func(b *domain.Booking) bool { return b.GuestID == userID || b.HostID == userID })
}

func (m *MemoryBookingRepository) ListByStatus(ctx context.Context, status domain.BookingStatus, f domain.BookingFilter) ([]domain.Booking, error) {
	f.Status = &status
	return m.list(ctx, f, func(*domain.Booking) bool { return true })
}

func (m *MemoryBookingRepository) list(ctx context.Context, f domain.BookingFilter, match func(*domain.Booking) bool) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f = f.Normalize()

	m.mu.RLock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if !match(&b) {
			continue
		}
		if !f.Matches(&b) {
			continue
		}
		out = append(out, clone(b))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset >= len(out) {
		return []domain.Booking{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[f.Offset:end], nil
}

func (m *MemoryBookingRepository) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	return m.scan(ctx, limit, func(b *domain.Booking) bool { return domain.IsExpired(b, now) })
}

func (m *MemoryBookingRepository) ListEndedConfirmed(ctx context.Context, today time.Time, limit int) ([]domain.Booking, error) {
	return m.scan(ctx, limit, func(b *domain.Booking) bool { return domain.IsStayOver(b, today) })
}

func (m *MemoryBookingRepository) scan(ctx context.Context, limit int, match func(*domain.Booking) bool) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Booking
	for _, b := range m.bookings {
		if match(&b) {
			out = append(out, clone(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryBookingRepository) HasConfirmedOverlap(ctx context.Context, listingID string, dates domain.DateRange, excludeID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overlapLocked(listingID, dates, excludeID), nil
}

func (m *MemoryBookingRepository) overlapLocked(listingID string, dates domain.DateRange, excludeID string) bool {
	for id, b := range m.bookings {
		if id == excludeID || b.ListingID != listingID || b.Status != domain.BookingConfirmed {
			continue
		}
		if b.Dates.Overlaps(dates) {
			return true
		}
	}
	return false
}

func (m *MemoryBookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.CheckConsistency(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.bookings[b.ID]
	if !ok || stored.Version != b.Version {
		return domain.ErrVersionConflict
	}
	if b.Status == domain.BookingConfirmed && m.overlapLocked(b.ListingID, b.Dates, b.ID) {
		return domain.ErrDatesUnavailable
	}

	b.Version++
	m.bookings[b.ID] = clone(*b)
	return nil
}

func clone(b domain.Booking) domain.Booking {
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		b.CancelledAt = &at
	}
	return b
}

var _ BookingRepository = (*MemoryBookingRepository)(nil)
