package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	EventID     string    `bun:"event_id,pk" json:"event_id"`
	Title       string    `bun:"title" json:"title"`
	Description string    `bun:"description,nullzero" json:"description,omitempty"`
	Venue       string    `bun:"venue" json:"venue"`
	City        string    `bun:"city" json:"city"`
	StartsAt    time.Time `bun:"starts_at" json:"starts_at"`
	CreatedAt   time.Time `bun:"created_at" json:"created_at"`
}
