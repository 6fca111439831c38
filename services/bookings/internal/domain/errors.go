package domain

import (
	"errors"
	"fmt"
)

// State errors returned by transition attempts.
var (
	ErrBookingNotFound    = errors.New("booking not found")
	ErrNotPending         = errors.New("booking is not pending")
	ErrNotConfirmed       = errors.New("booking is not confirmed")
	ErrAlreadyTerminal    = errors.New("booking is already in a terminal state")
	ErrRequestExpired     = errors.New("booking request has expired")
	ErrNotParticipant     = errors.New("user is not a participant of this booking")
	ErrActionNotPermitted = errors.New("action not permitted for this participant")
	ErrStayNotEnded       = errors.New("stay has not ended yet")
	ErrNotYetExpired      = errors.New("booking request has not expired")
	ErrDatesUnavailable   = errors.New("dates overlap a confirmed booking")
	ErrPaymentFailed      = errors.New("payment could not be processed")
	ErrListingNotFound    = errors.New("listing not found")
	ErrUnknownAction      = errors.New("unknown booking action")
)

// Persistence-level errors.
var (
	// ErrVersionConflict means another writer committed first; re-read and re-evaluate.
	ErrVersionConflict     = errors.New("booking was modified concurrently")
	ErrInconsistentBooking = errors.New("booking status and payment status disagree")
)

// StateError carries the status that made a transition illegal, so callers
// can tell "already expired" apart from "already declined".
type StateError struct {
	Err     error
	Current BookingStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s (current status: %s)", e.Err.Error(), e.Current)
}

func (e *StateError) Unwrap() error { return e.Err }

func stateError(err error, current BookingStatus) error {
	return &StateError{Err: err, Current: current}
}

// ValidationReason names the first rule a booking request broke.
type ValidationReason string

const (
	ReasonInvalidDateRange          ValidationReason = "invalid_date_range"
	ReasonStartInPast               ValidationReason = "start_in_past"
	ReasonInvalidGuestCount         ValidationReason = "invalid_guest_count"
	ReasonInvalidPrice              ValidationReason = "invalid_price"
	ReasonPriceMismatch             ValidationReason = "price_mismatch"
	ReasonInvalidParticipants       ValidationReason = "invalid_participants"
	ReasonAdvanceWindowExceeded     ValidationReason = "advance_window_exceeded"
	ReasonOutsideAvailabilityWindow ValidationReason = "outside_availability_window"
	ReasonOccupancyExceeded         ValidationReason = "occupancy_exceeded"
)

// ValidationError rejects a booking request before anything is persisted.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return e.Message
}

// Is matches ErrValidation and any ValidationError with the same reason.
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	var other *ValidationError
	if errors.As(target, &other) {
		return other.Reason == e.Reason
	}
	return false
}

// ErrValidation matches every ValidationError.
var ErrValidation = errors.New("booking request is invalid")

var (
	ErrInvalidDateRange          = &ValidationError{Reason: ReasonInvalidDateRange, Message: "start_date must be before end_date"}
	ErrStartInPast               = &ValidationError{Reason: ReasonStartInPast, Message: "start_date is in the past"}
	ErrInvalidGuestCount         = &ValidationError{Reason: ReasonInvalidGuestCount, Message: "guest_count must be at least 1"}
	ErrInvalidPrice              = &ValidationError{Reason: ReasonInvalidPrice, Message: "price_per_night must be positive"}
	ErrPriceMismatch             = &ValidationError{Reason: ReasonPriceMismatch, Message: "price_per_night does not match the listing"}
	ErrInvalidParticipants       = &ValidationError{Reason: ReasonInvalidParticipants, Message: "guest and host must be different users"}
	ErrAdvanceWindowExceeded     = &ValidationError{Reason: ReasonAdvanceWindowExceeded, Message: "start_date is too far in the future"}
	ErrOutsideAvailabilityWindow = &ValidationError{Reason: ReasonOutsideAvailabilityWindow, Message: "dates fall outside the listing availability"}
	ErrOccupancyExceeded         = &ValidationError{Reason: ReasonOccupancyExceeded, Message: "guest_count exceeds the listing maximum occupancy"}
)
