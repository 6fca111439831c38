package domain

import "time"

// DefaultRequestTTL is how long a host has to answer a request.
const DefaultRequestTTL = 24 * time.Hour

// IsExpired reports whether a pending request has reached its deadline.
// The deadline itself counts as expired.
func IsExpired(b *Booking, now time.Time) bool {
	return b.Status == BookingPending && !now.Before(b.ExpiresAt)
}

// IsStayOver reports whether a confirmed stay has reached its check-out date.
func IsStayOver(b *Booking, today time.Time) bool {
	return b.Status == BookingConfirmed && !b.Dates.End.After(today)
}

// Project returns the view of b a reader should see at now: an overdue
// pending request reads as expired. Nothing is written.
func Project(b Booking, now time.Time) Booking {
	if IsExpired(&b, now) {
		b.Status = BookingExpired
		b.PaymentStatus = PaymentReleased
	}
	return b
}
