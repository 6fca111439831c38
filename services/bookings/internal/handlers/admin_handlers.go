package handlers

import (
	"net/http"

	"github.com/diagnosis/stays-bookings/pkg/logger"
	"github.com/diagnosis/stays-bookings/pkg/response"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ListBookingsByStatus handles listing bookings in one status for operators.
// Without a status filter it lists pending requests.
func (h *Handlers) ListBookingsByStatus(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(r)
	if !ok {
		response.BadRequest(w, "Invalid status parameter")
		return
	}

	status := domain.BookingPending
	if f.Status != nil {
		status = *f.Status
	}

	bookings, err := h.bookingService.ListByStatus(r.Context(), status, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, bookings)
}

// SweepBookings runs one expiry and completion pass immediately
func (h *Handlers) SweepBookings(w http.ResponseWriter, r *http.Request) {
	result, err := h.bookingService.SweepOnce(r.Context())
	if err != nil {
		// Partial progress is still reported.
		logger.ErrorContext(r.Context(), "Manual booking sweep had failures", "error", err)
		response.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"result": result,
			"error":  "Sweep finished with errors",
			"code":   response.CodeInternalError,
		})
		return
	}

	response.WriteJSON(w, http.StatusOK, result)
}

// ForceCompleteBooking completes a finished stay as the system
func (h *Handlers) ForceCompleteBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookingService.Complete(r.Context(), chi.URLParam(r, "id"), domain.SystemActor())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}
