package payment

import (
	"context"
	"strings"

	"ms-reservation/internal/models"
)

// MockGate resolves outcomes from the reference itself, for development and
// tests: "fail_..." is FAILED, "pending_..." is PENDING, anything else is
// SUCCESS. Mirrors the Kafka mock-mode convention used elsewhere in the stack.
type MockGate struct{}

func NewMockGate() *MockGate {
	return &MockGate{}
}

func (g *MockGate) GetOutcome(ctx context.Context, paymentRef string) (models.PaymentOutcome, error) {
	switch {
	case strings.HasPrefix(paymentRef, "fail_"):
		return models.PaymentFailed, nil
	case strings.HasPrefix(paymentRef, "pending_"):
		return models.PaymentPending, nil
	default:
		return models.PaymentSuccess, nil
	}
}
