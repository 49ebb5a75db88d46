package models

import "time"

// ReservationEvent is published on the reservation lifecycle topics.
type ReservationEvent struct {
	ReservationID string    `json:"reservation_id"`
	HolderID      string    `json:"holder_id"`
	UnitIDs       []string  `json:"unit_ids"`
	State         string    `json:"state"`
	Timestamp     time.Time `json:"timestamp"`
}

// SeatReleasedEvent is published when a unit returns to AVAILABLE, whether by
// explicit release, cancellation, or the expiry sweep.
type SeatReleasedEvent struct {
	UnitID    string    `json:"unit_id"`
	EventID   string    `json:"event_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketIssuedEvent is published once per newly issued ticket.
type TicketIssuedEvent struct {
	TicketID  string    `json:"ticket_id"`
	EventID   string    `json:"event_id"`
	UnitID    string    `json:"unit_id"`
	HolderID  string    `json:"holder_id"`
	Timestamp time.Time `json:"timestamp"`
}
