package payment

import (
	"context"

	"ms-reservation/internal/models"
)

// Gate is the engine's only view of the payment system: given a reference, what
// happened to the money. The engine never initiates charges; it consumes a
// confirmed or failed outcome and treats PENDING as not-yet-confirmable.
type Gate interface {
	GetOutcome(ctx context.Context, paymentRef string) (models.PaymentOutcome, error)
}
