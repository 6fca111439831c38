package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/service"
)

const (
	maxBodyBytes     = 64 << 10
	maxReasonLength  = 100
	maxDetailsLength = 2000
)

// createBookingRequest is the body of POST /bookings.
type createBookingRequest struct {
	ListingID     string `json:"listing_id"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	GuestCount    int    `json:"guest_count"`
	PricePerNight int64  `json:"price_per_night"`
	PaymentMethod string `json:"payment_method_id"`
}

func (req createBookingRequest) toInput(guestID, idempotencyKey string) (service.CreateBookingInput, error) {
	listingID := strings.TrimSpace(req.ListingID)
	if listingID == "" {
		return service.CreateBookingInput{}, errors.New("listing_id is required")
	}
	dates, err := domain.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return service.CreateBookingInput{}, err
	}
	if req.GuestCount < 1 {
		return service.CreateBookingInput{}, domain.ErrInvalidGuestCount
	}
	if req.PricePerNight < 0 {
		return service.CreateBookingInput{}, domain.ErrInvalidPrice
	}
	return service.CreateBookingInput{
		ListingID:      listingID,
		GuestID:        guestID,
		Dates:          dates,
		GuestCount:     req.GuestCount,
		PricePerNight:  req.PricePerNight,
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		IdempotencyKey: idempotencyKey,
	}, nil
}

// cancelBookingRequest is the optional body of POST /bookings/{id}/cancel.
type cancelBookingRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

func (req *cancelBookingRequest) normalize() error {
	req.Reason = strings.TrimSpace(req.Reason)
	req.Details = strings.TrimSpace(req.Details)
	if len(req.Reason) > maxReasonLength {
		return fmt.Errorf("reason must be at most %d characters", maxReasonLength)
	}
	if len(req.Details) > maxDetailsLength {
		return fmt.Errorf("details must be at most %d characters", maxDetailsLength)
	}
	return nil
}

// decodeJSON decodes a bounded body into v. An empty body is allowed when
// optional is true.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	return err
}
