package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/stays-bookings/pkg/events"
	"github.com/diagnosis/stays-bookings/pkg/logger"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/listing"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/payment"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/repository"
	"github.com/google/uuid"
)

// ErrRequestInFlight is returned when an Idempotency-Key is bound but the
// booking it guards has not been stored yet.
var ErrRequestInFlight = errors.New("a request with this idempotency key is still being processed")

// CreateBookingInput is a guest's booking request.
type CreateBookingInput struct {
	ListingID      string
	GuestID        string
	Dates          domain.DateRange
	GuestCount     int
	PricePerNight  int64
	PaymentMethod  string
	IdempotencyKey string
}

// SweepResult counts what one sweep pass changed.
type SweepResult struct {
	Expired   int `json:"expired"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
}

type BookingService interface {
	Create(ctx context.Context, in CreateBookingInput) (*domain.Booking, error)
	Accept(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error)
	Decline(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error)
	Cancel(ctx context.Context, id string, actor domain.Actor, reason, details string) (*domain.Booking, error)
	Complete(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error)
	Get(ctx context.Context, id string) (*domain.Booking, error)
	ListForUser(ctx context.Context, userID string, f domain.BookingFilter) ([]domain.Booking, error)
	ListForListing(ctx context.Context, listingID string, viewer domain.Actor, f domain.BookingFilter) ([]domain.Booking, error)
	ListByStatus(ctx context.Context, status domain.BookingStatus, f domain.BookingFilter) ([]domain.Booking, error)
	SweepOnce(ctx context.Context) (SweepResult, error)
}

// Options are the policy knobs of the service. Zero values take defaults.
type Options struct {
	RequestTTL         time.Duration
	IdempotencyTTL     time.Duration
	MaxTransitionTries int
	SweepBatch         int
	Location           *time.Location
	Now                func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RequestTTL <= 0 {
		o.RequestTTL = domain.DefaultRequestTTL
	}
	if o.IdempotencyTTL <= 0 {
		o.IdempotencyTTL = 24 * time.Hour
	}
	if o.MaxTransitionTries <= 0 {
		o.MaxTransitionTries = 3
	}
	if o.SweepBatch <= 0 {
		o.SweepBatch = 500
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type bookingService struct {
	bookingRepo     repository.BookingRepository
	idempotencyRepo repository.IdempotencyStore
	listings        listing.Provider
	payments        payment.Processor
	eventBus        events.EventBus
	validator       domain.AvailabilityValidator
	opts            Options
}

func NewBookingService(
	bookingRepo repository.BookingRepository,
	idempotencyRepo repository.IdempotencyStore,
	listings listing.Provider,
	payments payment.Processor,
	eventBus events.EventBus,
	validator domain.AvailabilityValidator,
	opts Options,
) BookingService {
	if payments == nil {
		payments = payment.Disabled{}
	}
	if eventBus == nil {
		eventBus = events.NopBus{}
	}
	opts = opts.withDefaults()
	if validator.Location == nil {
		validator.Location = opts.Location
	}
	return &bookingService{
		bookingRepo:     bookingRepo,
		idempotencyRepo: idempotencyRepo,
		listings:        listings,
		payments:        payments,
		eventBus:        eventBus,
		validator:       validator,
		opts:            opts,
	}
}

func (s *bookingService) Create(ctx context.Context, in CreateBookingInput) (*domain.Booking, error) {
	if !in.Dates.Start.Before(in.Dates.End) {
		return nil, domain.ErrInvalidDateRange
	}
	if in.PricePerNight < 0 {
		return nil, domain.ErrInvalidPrice
	}

	avail, err := s.listings.GetAvailability(ctx, in.ListingID)
	if err != nil {
		if errors.Is(err, domain.ErrListingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load listing availability: %w", err)
	}

	now := s.opts.Now()
	req := domain.BookingRequest{ListingID: in.ListingID, Dates: in.Dates, GuestCount: in.GuestCount}
	if err := s.validator.Validate(req, *avail, now); err != nil {
		return nil, err
	}
	if avail.HostID == "" || avail.HostID == in.GuestID {
		return nil, domain.ErrInvalidParticipants
	}

	price, err := settlePrice(in.PricePerNight, avail.PricePerNight)
	if err != nil {
		return nil, err
	}

	total := price * int64(in.Dates.Nights())
	booking := &domain.Booking{
		ID:            uuid.NewString(),
		ListingID:     in.ListingID,
		GuestID:       in.GuestID,
		HostID:        avail.HostID,
		Dates:         in.Dates,
		GuestCount:    in.GuestCount,
		PricePerNight: price,
		TotalPrice:    total,
		GuestFee:      domain.Fee(total, domain.GuestFeePermille),
		HostFee:       domain.Fee(total, domain.HostFeePermille),
		Status:        domain.BookingPending,
		PaymentStatus: domain.PaymentPending,
		PaymentMethod: in.PaymentMethod,
		ExpiresAt:     now.Add(s.opts.RequestTTL),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Keys are scoped per guest so two users cannot collide on the same key.
	var idemKey string
	if in.IdempotencyKey != "" {
		idemKey = in.GuestID + ":" + in.IdempotencyKey
		existingID, reserved, err := s.idempotencyRepo.Reserve(ctx, idemKey, booking.ID, s.opts.IdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !reserved {
			existing, err := s.bookingRepo.GetByID(ctx, existingID)
			if err != nil {
				return nil, fmt.Errorf("load idempotent booking: %w", err)
			}
			if existing == nil {
				return nil, ErrRequestInFlight
			}
			logger.InfoContext(ctx, "Returning booking for repeated idempotency key", "booking_id", existing.ID)
			view := domain.Project(*existing, now)
			return &view, nil
		}
	}

	if err := booking.CheckConsistency(); err != nil {
		return nil, err
	}
	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		if idemKey != "" {
			if ferr := s.idempotencyRepo.Forget(ctx, idemKey); ferr != nil {
				logger.WarnContext(ctx, "Failed to drop idempotency key", "error", ferr)
			}
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	logger.InfoContext(logger.WithBooking(ctx, booking.ID), "Booking requested",
		"listing_id", booking.ListingID, "start_date", domain.FormatDate(booking.Dates.Start),
		"end_date", domain.FormatDate(booking.Dates.End), "total_price", booking.TotalPrice)
	s.publish(ctx, events.BookingCreated, booking, in.GuestID, "")
	return booking, nil
}

// settlePrice picks the nightly price. The listing's own price wins when it
// publishes one; a caller quoting a different figure is rejected.
func settlePrice(requested, published int64) (int64, error) {
	switch {
	case published > 0 && requested > 0 && requested != published:
		return 0, domain.ErrPriceMismatch
	case published > 0:
		return published, nil
	case requested > 0:
		return requested, nil
	default:
		return 0, domain.ErrInvalidPrice
	}
}

func (s *bookingService) Accept(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error) {
	return s.transition(ctx, id, domain.Transition{Action: domain.ActionAccept, Actor: actor})
}

func (s *bookingService) Decline(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error) {
	return s.transition(ctx, id, domain.Transition{Action: domain.ActionDecline, Actor: actor})
}

func (s *bookingService) Cancel(ctx context.Context, id string, actor domain.Actor, reason, details string) (*domain.Booking, error) {
	return s.transition(ctx, id, domain.Transition{
		Action:  domain.ActionCancel,
		Actor:   actor,
		Reason:  reason,
		Details: details,
	})
}

func (s *bookingService) Complete(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error) {
	return s.transition(ctx, id, domain.Transition{Action: domain.ActionComplete, Actor: actor})
}

// transition loads, applies and stores one lifecycle change. A lost version
// race re-reads the booking and applies the action again against the winner's
// state. An overdue request is stored as expired and ErrRequestExpired returned.
func (s *bookingService) transition(ctx context.Context, id string, t domain.Transition) (*domain.Booking, error) {
	ctx = logger.WithBooking(ctx, id)

	for attempt := 1; ; attempt++ {
		current, err := s.bookingRepo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load booking: %w", err)
		}
		if current == nil {
			return nil, domain.ErrBookingNotFound
		}

		t.Now = s.opts.Now()
		t.Today = domain.Today(t.Now, s.opts.Location)

		next, applyErr := domain.Apply(*current, t)
		if applyErr != nil && !errors.Is(applyErr, domain.ErrRequestExpired) {
			return nil, applyErr
		}

		if applyErr == nil && next.Status == domain.BookingConfirmed && current.Status == domain.BookingPending {
			if err := s.prepareConfirm(ctx, &next); err != nil {
				return nil, err
			}
		}

		if err := next.CheckConsistency(); err != nil {
			s.compensate(ctx, current, &next)
			return nil, err
		}

		err = s.bookingRepo.Update(ctx, &next)
		if err != nil {
			s.compensate(ctx, current, &next)
			if errors.Is(err, domain.ErrVersionConflict) && attempt < s.opts.MaxTransitionTries {
				logger.DebugContext(ctx, "Booking changed underneath transition, retrying",
					"action", t.Action, "attempt", attempt)
				continue
			}
			if errors.Is(err, domain.ErrDatesUnavailable) {
				return nil, domain.ErrDatesUnavailable
			}
			return nil, fmt.Errorf("update booking %s: %w", id, err)
		}

		s.afterCommit(ctx, current, &next, t)
		if applyErr != nil {
			return nil, applyErr
		}
		return &next, nil
	}
}

// prepareConfirm runs the side effects that must succeed before a booking may
// be stored as confirmed.
func (s *bookingService) prepareConfirm(ctx context.Context, next *domain.Booking) error {
	taken, err := s.bookingRepo.HasConfirmedOverlap(ctx, next.ListingID, next.Dates, next.ID)
	if err != nil {
		return fmt.Errorf("check confirmed overlap: %w", err)
	}
	if taken {
		return domain.ErrDatesUnavailable
	}

	ref, err := s.payments.Charge(ctx, next)
	if err != nil {
		logger.ErrorContext(ctx, "Payment charge failed", "error", err)
		if errors.Is(err, domain.ErrPaymentFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrPaymentFailed, err)
	}
	next.PaymentReference = ref
	return nil
}

// compensate refunds a charge taken for a write that did not commit.
func (s *bookingService) compensate(ctx context.Context, current, next *domain.Booking) {
	if next.PaymentReference == "" || next.PaymentReference == current.PaymentReference {
		return
	}
	if err := s.payments.Refund(ctx, next); err != nil {
		logger.ErrorContext(ctx, "Failed to refund payment after aborted commit",
			"error", err, "payment_reference", next.PaymentReference)
	}
}

func (s *bookingService) afterCommit(ctx context.Context, current, next *domain.Booking, t domain.Transition) {
	logger.InfoContext(ctx, "Booking transitioned",
		"action", t.Action, "from", current.Status, "to", next.Status, "payment_status", next.PaymentStatus)

	if current.PaymentStatus == domain.PaymentPaid && next.PaymentStatus == domain.PaymentReleased {
		if err := s.payments.Refund(ctx, next); err != nil {
			logger.ErrorContext(ctx, "Failed to refund payment", "error", err, "payment_reference", next.PaymentReference)
		}
	}

	subject, ok := subjectFor[next.Status]
	if !ok {
		return
	}
	actorID := t.Actor.UserID
	reason := next.CancellationReason
	if next.Status == domain.BookingExpired {
		reason = string(next.ExpiredOn)
	}
	s.publish(ctx, subject, next, actorID, reason)
}

var subjectFor = map[domain.BookingStatus]string{
	domain.BookingConfirmed: events.BookingConfirmed,
	domain.BookingDeclined:  events.BookingDeclined,
	domain.BookingCancelled: events.BookingCancelled,
	domain.BookingExpired:   events.BookingExpired,
	domain.BookingCompleted: events.BookingCompleted,
}

func (s *bookingService) publish(ctx context.Context, subject string, b *domain.Booking, actorID, reason string) {
	event := events.BookingEvent{
		Type:          subject,
		BookingID:     b.ID,
		ListingID:     b.ListingID,
		GuestID:       b.GuestID,
		HostID:        b.HostID,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		StartDate:     domain.FormatDate(b.Dates.Start),
		EndDate:       domain.FormatDate(b.Dates.End),
		TotalPrice:    b.TotalPrice,
		ActorID:       actorID,
		Reason:        reason,
		OccurredAt:    b.UpdatedAt,
	}
	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish booking event", "error", err, "subject", subject, "booking_id", b.ID)
	}
}

func (s *bookingService) Get(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if b == nil {
		return nil, domain.ErrBookingNotFound
	}
	view := domain.Project(*b, s.opts.Now())
	return &view, nil
}

func (s *bookingService) ListForUser(ctx context.Context, userID string, f domain.BookingFilter) ([]domain.Booking, error) {
	now := s.opts.Now()
	f.AsOf = now
	bookings, err := s.bookingRepo.ListByUser(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings for user: %w", err)
	}
	return project(bookings, now), nil
}

// ListForListing is open to the listing's host and the system actor only. The
// host is resolved from the listing before any booking is read.
func (s *bookingService) ListForListing(ctx context.Context, listingID string, viewer domain.Actor, f domain.BookingFilter) ([]domain.Booking, error) {
	if !viewer.System {
		avail, err := s.listings.GetAvailability(ctx, listingID)
		if err != nil {
			if errors.Is(err, domain.ErrListingNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load listing availability: %w", err)
		}
		if viewer.UserID == "" || avail.HostID != viewer.UserID {
			return nil, domain.ErrNotParticipant
		}
	}

	now := s.opts.Now()
	f.AsOf = now
	bookings, err := s.bookingRepo.ListByListing(ctx, listingID, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings for listing: %w", err)
	}
	return project(bookings, now), nil
}

func (s *bookingService) ListByStatus(ctx context.Context, status domain.BookingStatus, f domain.BookingFilter) ([]domain.Booking, error) {
	now := s.opts.Now()
	f.AsOf = now
	bookings, err := s.bookingRepo.ListByStatus(ctx, status, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings by status: %w", err)
	}
	return project(bookings, now), nil
}

// project applies the read-time expiry view. The repository already matched
// the status filter against the same view at now.
func project(bookings []domain.Booking, now time.Time) []domain.Booking {
	out := make([]domain.Booking, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, domain.Project(b, now))
	}
	return out
}

// SweepOnce expires every overdue request and completes every finished stay.
// Running it again with nothing due changes nothing.
func (s *bookingService) SweepOnce(ctx context.Context) (SweepResult, error) {
	var (
		result SweepResult
		errs   []error
	)
	now := s.opts.Now()
	sweep := domain.Transition{Action: domain.ActionSweep, Actor: domain.SystemActor()}

	overdue, err := s.bookingRepo.ListOverduePending(ctx, now, s.opts.SweepBatch)
	if err != nil {
		return result, fmt.Errorf("list overdue requests: %w", err)
	}
	for _, b := range overdue {
		_, err := s.transition(ctx, b.ID, sweep)
		switch {
		case errors.Is(err, domain.ErrRequestExpired):
			result.Expired++
		case err == nil, isStateError(err):
			result.Skipped++
		default:
			errs = append(errs, fmt.Errorf("expire %s: %w", b.ID, err))
		}
	}

	ended, err := s.bookingRepo.ListEndedConfirmed(ctx, domain.Today(now, s.opts.Location), s.opts.SweepBatch)
	if err != nil {
		errs = append(errs, fmt.Errorf("list ended stays: %w", err))
		return result, errors.Join(errs...)
	}
	for _, b := range ended {
		_, err := s.transition(ctx, b.ID, sweep)
		switch {
		case err == nil:
			result.Completed++
		case isStateError(err):
			result.Skipped++
		default:
			errs = append(errs, fmt.Errorf("complete %s: %w", b.ID, err))
		}
	}

	if result.Expired+result.Completed > 0 {
		logger.InfoContext(ctx, "Booking sweep finished",
			"expired", result.Expired, "completed", result.Completed, "skipped", result.Skipped)
	}
	return result, errors.Join(errs...)
}

// isStateError reports outcomes that mean another writer already moved the booking.
func isStateError(err error) bool {
	var se *domain.StateError
	return errors.As(err, &se) ||
		errors.Is(err, domain.ErrNotYetExpired) ||
		errors.Is(err, domain.ErrStayNotEnded) ||
		errors.Is(err, domain.ErrBookingNotFound)
}
