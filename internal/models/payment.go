package models

import "time"

type PaymentOutcome string

const (
	PaymentSuccess PaymentOutcome = "SUCCESS"
	PaymentFailed  PaymentOutcome = "FAILED"
	PaymentPending PaymentOutcome = "PENDING"
)

// PaymentOutcomeEvent is the payload consumed from the payment-outcomes topic.
// The payment service publishes one per settled payment attempt; the engine
// reacts by confirming or cancelling the referenced reservation.
type PaymentOutcomeEvent struct {
	ReservationID    string         `json:"reservation_id"`
	PaymentReference string         `json:"payment_reference"`
	Outcome          PaymentOutcome `json:"outcome"`
	Timestamp        time.Time      `json:"timestamp"`
}
