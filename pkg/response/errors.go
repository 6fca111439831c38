package response

import (
	"encoding/json"
	"net/http"

	"github.com/diagnosis/stays-bookings/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteJSON encodes data with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// Common error codes
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"

	// Booking lifecycle
	CodeBookingNotFound   = "BOOKING_NOT_FOUND"
	CodeListingNotFound   = "LISTING_NOT_FOUND"
	CodeNotPending        = "BOOKING_NOT_PENDING"
	CodeAlreadyTerminal   = "BOOKING_ALREADY_TERMINAL"
	CodeRequestExpired    = "BOOKING_REQUEST_EXPIRED"
	CodeNotParticipant    = "BOOKING_NOT_PARTICIPANT"
	CodeStayNotEnded      = "BOOKING_STAY_NOT_ENDED"
	CodeDatesUnavailable  = "BOOKING_DATES_UNAVAILABLE"
	CodePaymentFailed     = "PAYMENT_FAILED"
	CodeAdvanceWindow     = "ADVANCE_WINDOW_EXCEEDED"
	CodeOutsideWindow     = "OUTSIDE_AVAILABILITY_WINDOW"
	CodeOccupancyExceeded = "OCCUPANCY_EXCEEDED"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}
