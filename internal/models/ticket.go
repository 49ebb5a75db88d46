package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "VALID"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
)

// Ticket is immutable proof of purchase. Rows are never deleted; voiding and
// redemption are recorded through the status column. UnitID carries a unique
// constraint so issuance stays idempotent per sold unit.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID         string       `bun:"ticket_id,pk" json:"ticket_id"`
	EventID          string       `bun:"event_id" json:"event_id"`
	UnitID           string       `bun:"unit_id,unique" json:"unit_id"`
	HolderID         string       `bun:"holder_id" json:"holder_id"`
	VerificationCode string       `bun:"verification_code" json:"verification_code"`
	Status           TicketStatus `bun:"status" json:"status"`
	IssuedAt         time.Time    `bun:"issued_at" json:"issued_at"`
	RedeemedAt       time.Time    `bun:"redeemed_at,nullzero" json:"redeemed_at,omitempty"`
}
