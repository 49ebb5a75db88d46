package payment

import (
	"context"
	"errors"
	"fmt"

	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeGate resolves a payment reference (a Stripe payment-intent id) to an
// outcome by asking Stripe for the intent's current status.
type StripeGate struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGate(secretKey string, log *logger.Logger) (*StripeGate, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGate{client: sc, log: log}, nil
}

func (g *StripeGate) GetOutcome(ctx context.Context, paymentRef string) (models.PaymentOutcome, error) {
	intent, err := g.client.PaymentIntents.Get(paymentRef, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve payment intent %s: %v", paymentRef, err))
		return "", fmt.Errorf("failed to retrieve payment intent %s: %w", paymentRef, err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentSuccess, nil
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentFailed, nil
	default:
		// requires_payment_method, requires_confirmation, requires_action,
		// processing, requires_capture: the caller retries confirm later or
		// lets the reservation expire.
		return models.PaymentPending, nil
	}
}
