package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingBooking(t *testing.T) Booking {
	t.Helper()
	created := testNow.Add(-time.Hour)
	return Booking{
		ID:            "b-1",
		ListingID:     "listing-1",
		GuestID:       "guest-1",
		HostID:        "host-1",
		Dates:         stay(t, 3, 5),
		GuestCount:    2,
		PricePerNight: 100,
		TotalPrice:    200,
		Status:        BookingPending,
		PaymentStatus: PaymentPending,
		ExpiresAt:     created.Add(DefaultRequestTTL),
		Version:       1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func as(user string, action Action) Transition {
	return Transition{Action: action, Actor: Actor{UserID: user}, Now: testNow, Today: Today(testNow, time.UTC)}
}

func TestApplyFromPending(t *testing.T) {
	tests := []struct {
		name    string
		t       Transition
		status  BookingStatus
		payment PaymentStatus
		err     error
	}{
		{"host accepts", as("host-1", ActionAccept), BookingConfirmed, PaymentPaid, nil},
		{"host declines", as("host-1", ActionDecline), BookingDeclined, PaymentReleased, nil},
		{"guest cancels", as("guest-1", ActionCancel), BookingCancelled, PaymentReleased, nil},
		{"host cancels", as("host-1", ActionCancel), BookingCancelled, PaymentReleased, nil},
		{"guest cannot accept", as("guest-1", ActionAccept), BookingPending, PaymentPending, ErrActionNotPermitted},
		{"guest cannot decline", as("guest-1", ActionDecline), BookingPending, PaymentPending, ErrActionNotPermitted},
		{"stranger", as("someone", ActionAccept), BookingPending, PaymentPending, ErrNotParticipant},
		{"complete needs confirmed", as("host-1", ActionComplete), BookingPending, PaymentPending, ErrNotConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(pendingBooking(t), tt.t)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
				assert.NoError(t, got.CheckConsistency())
			}
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.payment, got.PaymentStatus)
		})
	}
}

func TestDeclineTwice(t *testing.T) {
	b := pendingBooking(t)

	declined, err := Apply(b, as("host-1", ActionDecline))
	require.NoError(t, err)

	again, err := Apply(declined, as("host-1", ActionDecline))
	assert.ErrorIs(t, err, ErrNotPending)
	var se *StateError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, BookingDeclined, se.Current)
	assert.Equal(t, declined, again)
}

func TestExpirationTakesPrecedence(t *testing.T) {
	for _, action := range []Action{ActionAccept, ActionDecline, ActionCancel, ActionComplete} {
		t.Run(string(action), func(t *testing.T) {
			b := pendingBooking(t)
			b.ExpiresAt = testNow // the deadline itself counts

			user := "host-1"
			if action == ActionCancel {
				user = "guest-1"
			}
			got, err := Apply(b, as(user, action))
			assert.ErrorIs(t, err, ErrRequestExpired)
			assert.Equal(t, BookingExpired, got.Status)
			assert.Equal(t, PaymentReleased, got.PaymentStatus)
			assert.Equal(t, action, got.ExpiredOn)
			assert.NoError(t, got.CheckConsistency())
		})
	}
}

func TestNonParticipantSeesNoExpiry(t *testing.T) {
	b := pendingBooking(t)
	b.ExpiresAt = testNow.Add(-time.Minute)

	got, err := Apply(b, as("someone", ActionAccept))
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.Equal(t, BookingPending, got.Status)
}

func TestExpiryBeatsRoleChecksForParticipants(t *testing.T) {
	b := pendingBooking(t)
	b.ExpiresAt = testNow.Add(-time.Minute)

	got, err := Apply(b, as("guest-1", ActionAccept))
	assert.ErrorIs(t, err, ErrRequestExpired, "a guest may not accept, but the expiry is reported first")
	assert.Equal(t, BookingExpired, got.Status)

	got, err = Apply(b, as("stranger", ActionCancel))
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.Equal(t, b, got, "strangers cause no write")
}

func TestCancelConfirmed(t *testing.T) {
	confirmed, err := Apply(pendingBooking(t), as("host-1", ActionAccept))
	require.NoError(t, err)

	tr := as("guest-1", ActionCancel)
	tr.Reason = "change_of_plans"
	tr.Details = "flight moved"
	got, err := Apply(confirmed, tr)
	require.NoError(t, err)
	assert.Equal(t, BookingCancelled, got.Status)
	assert.Equal(t, PaymentReleased, got.PaymentStatus)
	assert.Equal(t, PartyGuest, got.CancelledBy)
	assert.Equal(t, "change_of_plans", got.CancellationReason)
	assert.Equal(t, "flight moved", got.CancellationDetails)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(testNow))

	_, err = Apply(got, as("guest-1", ActionCancel))
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestHostCancelStoresNoReason(t *testing.T) {
	tr := as("host-1", ActionCancel)
	tr.Reason = "other"
	got, err := Apply(pendingBooking(t), tr)
	require.NoError(t, err)
	assert.Equal(t, PartyHost, got.CancelledBy)
	assert.Empty(t, got.CancellationReason)
}

func TestConfirmedNeverExpires(t *testing.T) {
	confirmed, err := Apply(pendingBooking(t), as("host-1", ActionAccept))
	require.NoError(t, err)

	later := as("guest-1", ActionCancel)
	later.Now = testNow.Add(72 * time.Hour)
	got, err := Apply(confirmed, later)
	require.NoError(t, err)
	assert.Equal(t, BookingCancelled, got.Status)
	assert.Empty(t, got.ExpiredOn)
}

func TestComplete(t *testing.T) {
	confirmed, err := Apply(pendingBooking(t), as("host-1", ActionAccept))
	require.NoError(t, err)

	_, err = Apply(confirmed, as("host-1", ActionComplete))
	assert.ErrorIs(t, err, ErrStayNotEnded)

	_, err = Apply(confirmed, as("guest-1", ActionComplete))
	assert.ErrorIs(t, err, ErrActionNotPermitted)

	checkout := Transition{Action: ActionComplete, Actor: SystemActor(), Now: testNow, Today: confirmed.Dates.End}
	got, err := Apply(confirmed, checkout)
	require.NoError(t, err)
	assert.Equal(t, BookingCompleted, got.Status)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.True(t, got.Status.IsTerminal())
}

func TestSweep(t *testing.T) {
	sweep := Transition{Action: ActionSweep, Actor: SystemActor(), Now: testNow, Today: Today(testNow, time.UTC)}

	_, err := Apply(pendingBooking(t), sweep)
	assert.ErrorIs(t, err, ErrNotYetExpired)

	overdue := pendingBooking(t)
	overdue.ExpiresAt = testNow.Add(-time.Second)
	got, err := Apply(overdue, sweep)
	assert.ErrorIs(t, err, ErrRequestExpired)
	assert.Equal(t, ActionSweep, got.ExpiredOn)

	_, err = Apply(got, sweep)
	assert.ErrorIs(t, err, ErrAlreadyTerminal, "sweeping an expired booking changes nothing")

	_, err = Apply(pendingBooking(t), Transition{Action: ActionSweep, Actor: Actor{UserID: "host-1"}, Now: testNow})
	assert.ErrorIs(t, err, ErrActionNotPermitted)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(BookingPending, BookingExpired))
	assert.True(t, CanTransition(BookingConfirmed, BookingCompleted))
	assert.False(t, CanTransition(BookingConfirmed, BookingExpired))
	assert.False(t, CanTransition(BookingConfirmed, BookingDeclined))
	for _, s := range []BookingStatus{BookingDeclined, BookingCancelled, BookingExpired, BookingCompleted} {
		assert.True(t, s.IsTerminal(), s)
	}
}

func TestProjectIsPure(t *testing.T) {
	b := pendingBooking(t)
	b.ExpiresAt = testNow

	view := Project(b, testNow)
	assert.Equal(t, BookingExpired, view.Status)
	assert.Equal(t, PaymentReleased, view.PaymentStatus)
	assert.Equal(t, BookingPending, b.Status)

	fresh := pendingBooking(t)
	assert.Equal(t, fresh, Project(fresh, testNow))
}

func TestFee(t *testing.T) {
	assert.Equal(t, int64(3), Fee(200, GuestFeePermille))
	assert.Equal(t, int64(2), Fee(100, HostFeePermille), "1.5 rounds up")
	assert.Equal(t, int64(0), Fee(0, HostFeePermille))
}
