package handlers

import (
	"errors"
	"net/http"

	"github.com/diagnosis/stays-bookings/pkg/logger"
	"github.com/diagnosis/stays-bookings/pkg/response"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/service"
)

var validationCodes = map[domain.ValidationReason]string{
	domain.ReasonAdvanceWindowExceeded:     response.CodeAdvanceWindow,
	domain.ReasonOutsideAvailabilityWindow: response.CodeOutsideWindow,
	domain.ReasonOccupancyExceeded:         response.CodeOccupancyExceeded,
}

// writeServiceError maps a service error onto a status and a machine code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *domain.ValidationError
		se *domain.StateError
	)

	switch {
	case errors.As(err, &ve):
		code, ok := validationCodes[ve.Reason]
		if !ok {
			code = response.CodeInvalidInput
		}
		response.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, ve.Error(), code, string(ve.Reason))

	case errors.Is(err, domain.ErrBookingNotFound):
		response.WriteError(w, http.StatusNotFound, "Booking not found", response.CodeBookingNotFound)
	case errors.Is(err, domain.ErrListingNotFound):
		response.WriteError(w, http.StatusNotFound, "Listing not found", response.CodeListingNotFound)

	case errors.Is(err, domain.ErrNotParticipant):
		response.WriteError(w, http.StatusForbidden, err.Error(), response.CodeNotParticipant)
	case errors.Is(err, domain.ErrActionNotPermitted):
		response.Forbidden(w, err.Error())

	case errors.Is(err, domain.ErrRequestExpired):
		response.WriteErrorWithDetails(w, http.StatusConflict, err.Error(), response.CodeRequestExpired, string(domain.BookingExpired))
	case errors.As(err, &se):
		code := response.CodeConflict
		switch {
		case errors.Is(se, domain.ErrNotPending):
			code = response.CodeNotPending
		case errors.Is(se, domain.ErrAlreadyTerminal):
			code = response.CodeAlreadyTerminal
		}
		response.WriteErrorWithDetails(w, http.StatusConflict, se.Err.Error(), code, string(se.Current))
	case errors.Is(err, domain.ErrStayNotEnded):
		response.WriteError(w, http.StatusConflict, err.Error(), response.CodeStayNotEnded)
	case errors.Is(err, domain.ErrDatesUnavailable):
		response.WriteError(w, http.StatusConflict, err.Error(), response.CodeDatesUnavailable)
	case errors.Is(err, service.ErrRequestInFlight), errors.Is(err, domain.ErrVersionConflict):
		response.Conflict(w, err.Error())

	case errors.Is(err, domain.ErrPaymentFailed):
		response.WriteError(w, http.StatusPaymentRequired, "Payment could not be processed", response.CodePaymentFailed)

	default:
		logger.ErrorContext(r.Context(), "Booking request failed", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Internal server error")
	}
}
