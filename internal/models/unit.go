package models

import (
	"time"

	"github.com/uptrace/bun"
)

type UnitStatus string

const (
	UnitAvailable UnitStatus = "AVAILABLE"
	UnitLocked    UnitStatus = "LOCKED"
	UnitSold      UnitStatus = "SOLD"
)

// InventoryUnit is the sellable atom: one seat scoped to one event occurrence.
// Lock metadata lives on the row so a restarted instance recovers lock state
// from the store alone. Status only ever moves
// AVAILABLE -> LOCKED -> {SOLD, AVAILABLE}; SOLD is terminal. On a SOLD row
// LockedBy records the purchaser.
type InventoryUnit struct {
	bun.BaseModel `bun:"table:inventory_units"`

	UnitID        string     `bun:"unit_id,pk" json:"unit_id"`
	EventID       string     `bun:"event_id" json:"event_id"`
	SeatID        string     `bun:"seat_id" json:"seat_id"`
	SeatLabel     string     `bun:"seat_label" json:"seat_label"`
	PriceCents    int64      `bun:"price_cents" json:"price_cents"`
	Status        UnitStatus `bun:"status" json:"status"`
	LockedBy      string     `bun:"locked_by,nullzero" json:"locked_by,omitempty"`
	LockExpiresAt time.Time  `bun:"lock_expires_at,nullzero" json:"lock_expires_at,omitempty"`
}
