package domain

import "time"

// Action is a requested lifecycle change.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionSweep    Action = "sweep"
)

// transitions lists the legal edges. A status with no edges is terminal.
var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingDeclined, BookingCancelled, BookingExpired},
	BookingConfirmed: {BookingCancelled, BookingCompleted},
	BookingDeclined:  nil,
	BookingCancelled: nil,
	BookingExpired:   nil,
	BookingCompleted: nil,
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Actor is whoever asks for a transition. System actors are the scheduled
// sweep and operators; they are not booking participants.
type Actor struct {
	UserID string
	System bool
}

func SystemActor() Actor { return Actor{System: true} }

// Transition is one attempt to move a booking.
type Transition struct {
	Action  Action
	Actor   Actor
	Reason  string
	Details string
	Now     time.Time
	Today   time.Time
}

// Apply is the single authority over booking state. It returns the booking as
// it must be stored after the attempt.
//
// A caller who is not a participant is rejected before anything else and
// causes no write. Otherwise a pending booking past its deadline is expired
// first, whatever the action. In that case Apply returns the expired booking
// together with ErrRequestExpired and the caller must persist it. On any other
// error the returned booking equals b.
func Apply(b Booking, t Transition) (Booking, error) {
	var party Party
	if !t.Actor.System {
		p, ok := b.PartyOf(t.Actor.UserID)
		if !ok {
			return b, ErrNotParticipant
		}
		party = p
	}

	if IsExpired(&b, t.Now) {
		return expire(b, t.Action, t.Now), ErrRequestExpired
	}

	switch t.Action {
	case ActionAccept:
		return accept(b, t, party)
	case ActionDecline:
		return decline(b, t, party)
	case ActionCancel:
		return cancel(b, t, party)
	case ActionComplete:
		return complete(b, t, party)
	case ActionSweep:
		return sweep(b, t)
	default:
		return b, ErrUnknownAction
	}
}

func accept(b Booking, t Transition, party Party) (Booking, error) {
	if t.Actor.System || party != PartyHost {
		return b, ErrActionNotPermitted
	}
	if b.Status != BookingPending {
		return b, stateError(ErrNotPending, b.Status)
	}
	return moveTo(b, BookingConfirmed, t.Now), nil
}

func decline(b Booking, t Transition, party Party) (Booking, error) {
	if t.Actor.System || party != PartyHost {
		return b, ErrActionNotPermitted
	}
	if b.Status != BookingPending {
		return b, stateError(ErrNotPending, b.Status)
	}
	return moveTo(b, BookingDeclined, t.Now), nil
}

// cancel is open to both participants from pending or confirmed. Only a guest
// cancellation records a reason.
func cancel(b Booking, t Transition, party Party) (Booking, error) {
	if t.Actor.System {
		return b, ErrActionNotPermitted
	}
	if !CanTransition(b.Status, BookingCancelled) {
		return b, stateError(ErrAlreadyTerminal, b.Status)
	}

	next := moveTo(b, BookingCancelled, t.Now)
	next.CancelledBy = party
	at := t.Now
	next.CancelledAt = &at
	if party == PartyGuest {
		next.CancellationReason = t.Reason
		next.CancellationDetails = t.Details
	}
	return next, nil
}

func complete(b Booking, t Transition, party Party) (Booking, error) {
	if !t.Actor.System && party != PartyHost {
		return b, ErrActionNotPermitted
	}
	if b.Status.IsTerminal() {
		return b, stateError(ErrAlreadyTerminal, b.Status)
	}
	if b.Status != BookingConfirmed {
		return b, stateError(ErrNotConfirmed, b.Status)
	}
	if !IsStayOver(&b, t.Today) {
		return b, ErrStayNotEnded
	}
	return moveTo(b, BookingCompleted, t.Now), nil
}

// sweep is the scheduled pass. Overdue requests were already handled by the
// expiry check in Apply, so only finished stays are left to complete.
func sweep(b Booking, t Transition) (Booking, error) {
	if !t.Actor.System {
		return b, ErrActionNotPermitted
	}
	if b.Status == BookingPending {
		return b, ErrNotYetExpired
	}
	return complete(b, t, "")
}

func expire(b Booking, on Action, now time.Time) Booking {
	next := moveTo(b, BookingExpired, now)
	next.ExpiredOn = on
	return next
}

func moveTo(b Booking, to BookingStatus, now time.Time) Booking {
	b.Status = to
	b.PaymentStatus = paymentFor[to]
	b.UpdatedAt = now
	return b
}
