package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.June, 10, 15, 30, 0, 0, time.UTC)

func day(offset int) time.Time {
	return Today(testNow, time.UTC).AddDate(0, 0, offset)
}

func stay(t *testing.T, from, to int) DateRange {
	t.Helper()
	r, err := NewDateRange(day(from), day(to))
	require.NoError(t, err)
	return r
}

func openListing() Availability {
	return Availability{
		ListingID:     "listing-1",
		HostID:        "host-1",
		StartDate:     day(-30),
		EndDate:       day(60),
		MaxOccupancy:  4,
		PricePerNight: 100,
	}
}

func TestValidateAdvanceWindowBoundary(t *testing.T) {
	v := NewAvailabilityValidator(7, time.UTC)

	err := v.Validate(BookingRequest{ListingID: "listing-1", Dates: stay(t, 7, 9), GuestCount: 2}, openListing(), testNow)
	assert.NoError(t, err, "start on today+7 is inside the window")

	err = v.Validate(BookingRequest{ListingID: "listing-1", Dates: stay(t, 8, 10), GuestCount: 2}, openListing(), testNow)
	assert.ErrorIs(t, err, ErrAdvanceWindowExceeded)
}

func TestValidateStartToday(t *testing.T) {
	v := NewAvailabilityValidator(7, time.UTC)
	err := v.Validate(BookingRequest{Dates: stay(t, 0, 1), GuestCount: 1}, openListing(), testNow)
	assert.NoError(t, err)
}

func TestValidateRuleOrder(t *testing.T) {
	v := NewAvailabilityValidator(7, time.UTC)

	narrow := openListing()
	narrow.StartDate = day(20)
	narrow.EndDate = day(25)
	narrow.MaxOccupancy = 1

	tests := []struct {
		name  string
		req   BookingRequest
		avail Availability
		want  ValidationReason
	}{
		{
			name:  "past start beats everything",
			req:   BookingRequest{Dates: stay(t, -2, 1), GuestCount: 9},
			avail: narrow,
			want:  ReasonStartInPast,
		},
		{
			name:  "advance window before listing window",
			req:   BookingRequest{Dates: stay(t, 26, 28), GuestCount: 3},
			avail: narrow,
			want:  ReasonAdvanceWindowExceeded,
		},
		{
			name:  "listing window before occupancy",
			req:   BookingRequest{Dates: stay(t, 2, 4), GuestCount: 9},
			avail: narrow,
			want:  ReasonOutsideAvailabilityWindow,
		},
		{
			name:  "occupancy",
			req:   BookingRequest{Dates: stay(t, 2, 4), GuestCount: 5},
			avail: openListing(),
			want:  ReasonOccupancyExceeded,
		},
		{
			name:  "zero guests",
			req:   BookingRequest{Dates: stay(t, 2, 4), GuestCount: 0},
			avail: openListing(),
			want:  ReasonInvalidGuestCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req, tt.avail, testNow)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.want, ve.Reason)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestValidateListingWindowIsInclusive(t *testing.T) {
	v := NewAvailabilityValidator(7, time.UTC)
	avail := openListing()
	avail.StartDate = day(1)
	avail.EndDate = day(3)

	assert.NoError(t, v.Validate(BookingRequest{Dates: stay(t, 1, 3), GuestCount: 1}, avail, testNow))
	assert.ErrorIs(t, v.Validate(BookingRequest{Dates: stay(t, 1, 4), GuestCount: 1}, avail, testNow), ErrOutsideAvailabilityWindow)
	assert.ErrorIs(t, v.Validate(BookingRequest{Dates: stay(t, 0, 2), GuestCount: 1}, avail, testNow), ErrOutsideAvailabilityWindow)
}

func TestValidateUsesConfiguredZone(t *testing.T) {
	// 15:30 UTC on June 10 is already June 11 in Auckland.
	auckland := time.FixedZone("NZST", 12*60*60)
	v := NewAvailabilityValidator(7, auckland)

	err := v.Validate(BookingRequest{Dates: stay(t, 0, 2), GuestCount: 1}, openListing(), testNow)
	assert.ErrorIs(t, err, ErrStartInPast)

	err = v.Validate(BookingRequest{Dates: stay(t, 8, 9), GuestCount: 1}, openListing(), testNow)
	assert.NoError(t, err)
}

func TestDateRange(t *testing.T) {
	_, err := ParseDateRange("2025-06-12", "2025-06-12")
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = ParseDateRange("12/06/2025", "2025-06-14")
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	r, err := ParseDateRange("2025-06-12", "2025-06-14")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Nights())

	next, _ := ParseDateRange("2025-06-14", "2025-06-16")
	assert.False(t, r.Overlaps(next), "check-out day can be the next check-in")

	inside, _ := ParseDateRange("2025-06-13", "2025-06-15")
	assert.True(t, r.Overlaps(inside))
}
