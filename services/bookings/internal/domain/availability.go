package domain

import (
	"fmt"
	"time"
)

// DefaultAdvanceWindowDays caps how far ahead a stay may start.
const DefaultAdvanceWindowDays = 7

// BookingRequest is what the validator needs to judge a proposed stay.
type BookingRequest struct {
	ListingID  string
	Dates      DateRange
	GuestCount int
}

// AvailabilityValidator checks a request against the advance-booking policy and
// the listing's published window and occupancy. It has no side effects.
type AvailabilityValidator struct {
	AdvanceWindowDays int
	Location          *time.Location
}

func NewAvailabilityValidator(advanceWindowDays int, loc *time.Location) AvailabilityValidator {
	if advanceWindowDays <= 0 {
		advanceWindowDays = DefaultAdvanceWindowDays
	}
	if loc == nil {
		loc = time.UTC
	}
	return AvailabilityValidator{AdvanceWindowDays: advanceWindowDays, Location: loc}
}

// Validate returns nil or the first *ValidationError in rule order:
// well-formedness, advance window, listing window, occupancy.
func (v AvailabilityValidator) Validate(req BookingRequest, avail Availability, now time.Time) error {
	if !req.Dates.Start.Before(req.Dates.End) {
		return ErrInvalidDateRange
	}
	if req.GuestCount < 1 {
		return ErrInvalidGuestCount
	}

	today := Today(now, v.Location)
	if req.Dates.Start.Before(today) {
		return ErrStartInPast
	}

	latest := today.AddDate(0, 0, v.AdvanceWindowDays)
	if req.Dates.Start.After(latest) {
		return &ValidationError{
			Reason:  ReasonAdvanceWindowExceeded,
			Message: fmt.Sprintf("start_date must be on or before %s", FormatDate(latest)),
		}
	}

	if !req.Dates.Within(avail.StartDate, avail.EndDate) {
		return &ValidationError{
			Reason: ReasonOutsideAvailabilityWindow,
			Message: fmt.Sprintf("dates %s fall outside the listing availability %s..%s",
				req.Dates, FormatDate(avail.StartDate), FormatDate(avail.EndDate)),
		}
	}

	if req.GuestCount > avail.MaxOccupancy {
		return &ValidationError{
			Reason:  ReasonOccupancyExceeded,
			Message: fmt.Sprintf("guest_count %d exceeds maximum occupancy %d", req.GuestCount, avail.MaxOccupancy),
		}
	}

	return nil
}
