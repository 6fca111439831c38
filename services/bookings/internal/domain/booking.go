package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingDeclined  BookingStatus = "declined"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
	BookingCompleted BookingStatus = "completed"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPending, BookingConfirmed, BookingDeclined, BookingCancelled, BookingExpired, BookingCompleted:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentReleased PaymentStatus = "released"
)

// Party is the side of a booking a user is on.
type Party string

const (
	PartyGuest Party = "guest"
	PartyHost  Party = "host"
)

const dateLayout = "2006-01-02"

// DateRange is a stay of whole nights: Start is check-in, End is check-out.
// Both are calendar dates stored as UTC midnight.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to dates and requires at least one night.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: dateOnly(start), End: dateOnly(end)}
	if !r.Start.Before(r.End) {
		return DateRange{}, ErrInvalidDateRange
	}
	return r, nil
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start_date %q", ErrInvalidDateRange, start)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end_date %q", ErrInvalidDateRange, end)
	}
	return NewDateRange(s, e)
}

func (r DateRange) Nights() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Overlaps treats ranges as half-open, so a check-out day may be the next check-in.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Within reports whether r fits inside the inclusive window [from, to].
func (r DateRange) Within(from, to time.Time) bool {
	return !r.Start.Before(dateOnly(from)) && !r.End.After(dateOnly(to))
}

func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + ".." + r.End.Format(dateLayout)
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}{r.Start.Format(dateLayout), r.End.Format(dateLayout)})
}

func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDateRange(raw.StartDate, raw.EndDate)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// FormatDate renders a calendar date the way the API exchanges them.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// Today is the calendar date of now in loc, as UTC midnight.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Booking struct {
	ID                  string        `json:"id"`
	ListingID           string        `json:"listing_id"`
	GuestID             string        `json:"guest_id"`
	HostID              string        `json:"host_id"`
	Dates               DateRange     `json:"date_range"`
	GuestCount          int           `json:"guest_count"`
	PricePerNight       int64         `json:"price_per_night"`
	TotalPrice          int64         `json:"total_price"`
	HostFee             int64         `json:"host_fee"`
	GuestFee            int64         `json:"guest_fee"`
	Status              BookingStatus `json:"status"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	PaymentReference    string        `json:"payment_reference,omitempty"`
	PaymentMethod       string        `json:"-"`
	ExpiresAt           time.Time     `json:"expires_at"`
	CancellationReason  string        `json:"cancellation_reason,omitempty"`
	CancellationDetails string        `json:"cancellation_details,omitempty"`
	CancelledBy         Party         `json:"cancelled_by,omitempty"`
	CancelledAt         *time.Time    `json:"cancelled_at,omitempty"`
	ExpiredOn           Action        `json:"expired_on,omitempty"`
	Version             int64         `json:"version"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// PartyOf says which side of the booking userID is on.
func (b *Booking) PartyOf(userID string) (Party, bool) {
	switch userID {
	case "":
		return "", false
	case b.HostID:
		return PartyHost, true
	case b.GuestID:
		return PartyGuest, true
	default:
		return "", false
	}
}

// Service fees charged on top of, and deducted from, the stay price.
const (
	GuestFeePermille = 15
	HostFeePermille  = 15
)

// Fee rounds half-up to the minor unit.
func Fee(total int64, permille int64) int64 {
	return (total*permille + 500) / 1000
}

// CheckConsistency verifies the status/payment coupling that must hold at rest.
func (b *Booking) CheckConsistency() error {
	want, ok := paymentFor[b.Status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInconsistentBooking, b.Status)
	}
	if b.PaymentStatus != want {
		return fmt.Errorf("%w: status %s with payment %s", ErrInconsistentBooking, b.Status, b.PaymentStatus)
	}
	if b.TotalPrice != b.PricePerNight*int64(b.Dates.Nights()) {
		return fmt.Errorf("%w: total %d for %d nights at %d", ErrInconsistentBooking, b.TotalPrice, b.Dates.Nights(), b.PricePerNight)
	}
	return nil
}

var paymentFor = map[BookingStatus]PaymentStatus{
	BookingPending:   PaymentPending,
	BookingConfirmed: PaymentPaid,
	BookingCompleted: PaymentPaid,
	BookingDeclined:  PaymentReleased,
	BookingCancelled: PaymentReleased,
	BookingExpired:   PaymentReleased,
}

// Listing availability as published by the listing owner.
type Availability struct {
	ListingID     string    `json:"listing_id"`
	HostID        string    `json:"host_id,omitempty"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	MaxOccupancy  int       `json:"max_occupancy"`
	PricePerNight int64     `json:"price_per_night,omitempty"`
}

// BookingFilter narrows list queries. Zero values mean "any".
type BookingFilter struct {
	Status *BookingStatus
	// AsOf, when set, matches Status against the read-time view: a pending
	// request past its deadline counts as expired, not pending.
	AsOf   time.Time
	Limit  int
	Offset int
}

// Matches reports whether b passes the status part of the filter.
func (f BookingFilter) Matches(b *Booking) bool {
	if f.Status == nil {
		return true
	}
	status := b.Status
	if !f.AsOf.IsZero() && IsExpired(b, f.AsOf) {
		status = BookingExpired
	}
	return status == *f.Status
}

func (f BookingFilter) Normalize() BookingFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
