package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationState string

const (
	ReservationPending   ReservationState = "PENDING"
	ReservationConfirmed ReservationState = "CONFIRMED"
	ReservationExpired   ReservationState = "EXPIRED"
	ReservationCancelled ReservationState = "CANCELLED"
)

// Reservation is an atomic multi-unit claim for one checkout attempt. Every
// constituent lock is created together with one TTL, so ExpiresAt equals the
// expiry of each lock. Reservations are explicit records keyed by id; no
// ambient "current reservation" state exists anywhere.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ReservationID string           `bun:"reservation_id,pk" json:"reservation_id"`
	HolderID      string           `bun:"holder_id" json:"holder_id"`
	UnitIDs       []string         `bun:"unit_ids,type:jsonb" json:"unit_ids"`
	State         ReservationState `bun:"state" json:"state"`
	PaymentRef    string           `bun:"payment_ref,nullzero" json:"payment_ref,omitempty"`
	CreatedAt     time.Time        `bun:"created_at" json:"created_at"`
	ExpiresAt     time.Time        `bun:"expires_at" json:"expires_at"`
}

type ReservationRequest struct {
	HolderID   string   `json:"holder_id"`
	UnitIDs    []string `json:"unit_ids"`
	TTLSeconds int      `json:"ttl_seconds,omitempty"`
}

type ConfirmRequest struct {
	PaymentReference string `json:"payment_reference"`
}
