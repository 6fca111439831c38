package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

func newBooking(t *testing.T, id string, startOffset int) *domain.Booking {
	t.Helper()
	start := time.Date(2025, time.June, 12, 0, 0, 0, 0, time.UTC).AddDate(0, 0, startOffset)
	dates, err := domain.NewDateRange(start, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	return &domain.Booking{
		ID:            id,
		ListingID:     "listing-1",
		GuestID:       "guest-1",
		HostID:        "host-1",
		Dates:         dates,
		GuestCount:    1,
		PricePerNight: 100,
		TotalPrice:    200,
		Status:        domain.BookingPending,
		PaymentStatus: domain.PaymentPending,
		ExpiresAt:     base.Add(24 * time.Hour),
		Version:       1,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
}

func TestMemoryUpdateIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	require.NoError(t, repo.Create(ctx, newBooking(t, "b-1", 0)))

	first, err := repo.GetByID(ctx, "b-1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "b-1")
	require.NoError(t, err)

	first.Status, first.PaymentStatus = domain.BookingConfirmed, domain.PaymentPaid
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Status, second.PaymentStatus = domain.BookingDeclined, domain.PaymentReleased
	assert.ErrorIs(t, repo.Update(ctx, second), domain.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, stored.Status)
}

func TestMemoryRejectsInconsistentWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	bad := newBooking(t, "bad", 0)
	bad.PaymentStatus = domain.PaymentPaid
	assert.ErrorIs(t, repo.Create(ctx, bad), domain.ErrInconsistentBooking)

	b := newBooking(t, "b-1", 0)
	require.NoError(t, repo.Create(ctx, b))
	b.Status = domain.BookingConfirmed
	assert.ErrorIs(t, repo.Update(ctx, b), domain.ErrInconsistentBooking)

	stored, err := repo.GetByID(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestMemoryGetMissing(t *testing.T) {
	b, err := NewMemoryBookingRepository().GetByID(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, b)
}

func TestMemoryRejectsOverlappingConfirmation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	a := newBooking(t, "a", 0)
	b := newBooking(t, "b", 1)
	c := newBooking(t, "c", 2) // starts on a's check-out day
	for _, bk := range []*domain.Booking{a, b, c} {
		require.NoError(t, repo.Create(ctx, bk))
	}

	a.Status, a.PaymentStatus = domain.BookingConfirmed, domain.PaymentPaid
	require.NoError(t, repo.Update(ctx, a))

	taken, err := repo.HasConfirmedOverlap(ctx, "listing-1", b.Dates, b.ID)
	require.NoError(t, err)
	assert.True(t, taken)

	b.Status, b.PaymentStatus = domain.BookingConfirmed, domain.PaymentPaid
	assert.ErrorIs(t, repo.Update(ctx, b), domain.ErrDatesUnavailable)

	c.Status, c.PaymentStatus = domain.BookingConfirmed, domain.PaymentPaid
	assert.NoError(t, repo.Update(ctx, c))
}

func TestMemoryListsNewestFirstWithPaging(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	for i := 0; i < 5; i++ {
		b := newBooking(t, fmt.Sprintf("b-%d", i), i*3)
		b.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i == 4 {
			b.GuestID = "guest-2"
		}
		require.NoError(t, repo.Create(ctx, b))
	}

	page, err := repo.ListByListing(ctx, "listing-1", domain.BookingFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b-3", page[0].ID)
	assert.Equal(t, "b-2", page[1].ID)

	mine, err := repo.ListByUser(ctx, "guest-2", domain.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "b-4", mine[0].ID)

	hosted, err := repo.ListByUser(ctx, "host-1", domain.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, hosted, 5)

	past, err := repo.ListByListing(ctx, "listing-1", domain.BookingFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestMemoryStatusFilterAsOf(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	overdue := newBooking(t, "overdue", 0)
	overdue.ExpiresAt = base.Add(-time.Minute)
	overdue.CreatedAt = base.Add(time.Minute)
	open := newBooking(t, "open", 3)
	for _, b := range []*domain.Booking{overdue, open} {
		require.NoError(t, repo.Create(ctx, b))
	}

	pending, expired := domain.BookingPending, domain.BookingExpired

	stored, err := repo.ListByListing(ctx, "listing-1", domain.BookingFilter{Status: &pending})
	require.NoError(t, err)
	assert.Len(t, stored, 2, "without AsOf the stored status is used")

	page, err := repo.ListByListing(ctx, "listing-1", domain.BookingFilter{Status: &pending, AsOf: base, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "open", page[0].ID)

	gone, err := repo.ListByStatus(ctx, domain.BookingExpired, domain.BookingFilter{AsOf: base})
	require.NoError(t, err)
	require.Len(t, gone, 1)
	assert.Equal(t, "overdue", gone[0].ID)
	assert.Equal(t, domain.BookingPending, gone[0].Status, "the repository returns stored rows")

	mine, err := repo.ListByUser(ctx, "guest-1", domain.BookingFilter{Status: &expired})
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestMemorySweepQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	overdue := newBooking(t, "overdue", 0)
	overdue.ExpiresAt = base.Add(-time.Minute)
	fresh := newBooking(t, "fresh", 3)
	ended := newBooking(t, "ended", 6)
	ended.Status, ended.PaymentStatus = domain.BookingConfirmed, domain.PaymentPaid
	for _, b := range []*domain.Booking{overdue, fresh, ended} {
		require.NoError(t, repo.Create(ctx, b))
	}

	due, err := repo.ListOverduePending(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "overdue", due[0].ID)

	done, err := repo.ListEndedConfirmed(ctx, ended.Dates.End, 10)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "ended", done[0].ID)
}

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore()
	now := base
	store.now = func() time.Time { return now }

	id, reserved, err := store.Reserve(ctx, "key", "b-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Equal(t, "b-1", id)

	id, reserved, err = store.Reserve(ctx, "key", "b-2", time.Hour)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, "b-1", id)

	now = now.Add(2 * time.Hour)
	_, reserved, _ = store.Reserve(ctx, "key", "b-3", time.Hour)
	assert.True(t, reserved, "expired keys can be reused")

	require.NoError(t, store.Forget(ctx, "key"))
	_, reserved, _ = store.Reserve(ctx, "key", "b-4", time.Hour)
	assert.True(t, reserved)
}
