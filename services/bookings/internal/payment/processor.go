// Package payment settles the charge behind a confirmed booking.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/diagnosis/stays-bookings/pkg/config"
	"github.com/diagnosis/stays-bookings/pkg/logger"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Processor charges the guest when a host accepts and refunds the charge
// when a paid booking ends without a stay.
type Processor interface {
	Charge(ctx context.Context, b *domain.Booking) (reference string, err error)
	Refund(ctx context.Context, b *domain.Booking) error
}

// Disabled keeps the bookkeeping labels only. It is the default.
type Disabled struct{}

func (Disabled) Charge(context.Context, *domain.Booking) (string, error) { return "", nil }
func (Disabled) Refund(context.Context, *domain.Booking) error           { return nil }

// intents and refunds are the parts of the Stripe client we use.
type intents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type refunds interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeProcessor confirms a PaymentIntent for the guest total (stay plus
// guest fee) against the payment method given with the request. The intent
// captures automatically, so a returned reference is money collected.
type StripeProcessor struct {
	intents  intents
	refunds  refunds
	currency string
}

func NewStripeProcessor(cfg config.StripeConfig) (*StripeProcessor, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required when PAYMENTS_ENABLED=true")
	}
	sc := client.New(cfg.SecretKey, nil)
	return &StripeProcessor{intents: sc.PaymentIntents, refunds: sc.Refunds, currency: cfg.Currency}, nil
}

func (p *StripeProcessor) Charge(ctx context.Context, b *domain.Booking) (string, error) {
	if b.PaymentMethod == "" {
		return "", fmt.Errorf("%w: no payment method on the request", domain.ErrPaymentFailed)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(b.TotalPrice + b.GuestFee),
		Currency:      stripe.String(p.currency),
		PaymentMethod: stripe.String(b.PaymentMethod),
		Confirm:       stripe.Bool(true),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Description: stripe.String(fmt.Sprintf("Stay %s at listing %s", b.Dates, b.ListingID)),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", b.ID)
	params.AddMetadata("guest_id", b.GuestID)
	params.AddMetadata("host_id", b.HostID)
	// One intent per stored version; a retried accept after a lost race
	// must not get the intent that was already refunded.
	params.SetIdempotencyKey(fmt.Sprintf("booking-charge-%s-v%d", b.ID, b.Version))

	pi, err := p.intents.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPaymentFailed, err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		cancelParams := &stripe.PaymentIntentCancelParams{}
		cancelParams.Context = ctx
		if _, cerr := p.intents.Cancel(pi.ID, cancelParams); cerr != nil {
			logger.WarnContext(ctx, "Failed to cancel unfinished payment intent", "payment_intent", pi.ID, "error", cerr)
		}
		return "", fmt.Errorf("%w: payment intent %s is %s", domain.ErrPaymentFailed, pi.ID, pi.Status)
	}

	logger.InfoContext(ctx, "Payment captured", "booking_id", b.ID, "payment_intent", pi.ID, "amount", pi.Amount)
	return pi.ID, nil
}

func (p *StripeProcessor) Refund(ctx context.Context, b *domain.Booking) error {
	if b.PaymentReference == "" {
		return nil
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(b.PaymentReference)}
	params.Context = ctx
	params.SetIdempotencyKey("booking-refund-" + b.PaymentReference)

	if _, err := p.refunds.New(params); err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return nil
		}
		return fmt.Errorf("refund payment %s: %w", b.PaymentReference, err)
	}
	logger.InfoContext(ctx, "Payment refunded", "booking_id", b.ID, "payment_intent", b.PaymentReference)
	return nil
}

var (
	_ Processor = Disabled{}
	_ Processor = (*StripeProcessor)(nil)
)
