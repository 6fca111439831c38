package handlers

import (
	"net/http"
	"strings"

	"github.com/diagnosis/stays-bookings/pkg/response"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/go-chi/chi/v5"
)

// CreateBooking handles a guest's booking request
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req createBookingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	in, err := req.toInput(claims.Sub, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	booking, err := h.bookingService.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, booking)
}

// ListMyBookings lists bookings where the caller is guest or host
func (h *Handlers) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	f, ok := parseFilter(r)
	if !ok {
		response.BadRequest(w, "Invalid status parameter")
		return
	}

	bookings, err := h.bookingService.ListForUser(r.Context(), claims.Sub, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, bookings)
}

// ListListingBookings lists a listing's bookings for its host
func (h *Handlers) ListListingBookings(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	f, ok := parseFilter(r)
	if !ok {
		response.BadRequest(w, "Invalid status parameter")
		return
	}

	viewer := actorFor(claims)
	if isOperator(claims) {
		viewer = domain.SystemActor()
	}

	bookings, err := h.bookingService.ListForListing(r.Context(), chi.URLParam(r, "id"), viewer, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, bookings)
}

// GetBooking returns one booking to a participant or an operator
func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	booking, err := h.bookingService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, ok := booking.PartyOf(claims.Sub); !ok && !isOperator(claims) {
		writeServiceError(w, r, domain.ErrNotParticipant)
		return
	}

	response.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handlers) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	booking, err := h.bookingService.Accept(r.Context(), chi.URLParam(r, "id"), actorFor(claims))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handlers) DeclineBooking(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	booking, err := h.bookingService.Decline(r.Context(), chi.URLParam(r, "id"), actorFor(claims))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}

// CancelBooking cancels on behalf of the guest or the host. The body is optional.
func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req cancelBookingRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	if err := req.normalize(); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	booking, err := h.bookingService.Cancel(r.Context(), chi.URLParam(r, "id"), actorFor(claims), req.Reason, req.Details)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}

// CompleteBooking lets the host end a stay once check-out has passed
func (h *Handlers) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	booking, err := h.bookingService.Complete(r.Context(), chi.URLParam(r, "id"), actorFor(claims))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}
