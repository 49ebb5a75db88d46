package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// CreateTicket inserts a ticket, tolerating a concurrent insert for the same
// unit. ON CONFLICT DO NOTHING plus the unique unit_id column makes issuance
// race-safe: the loser inserts zero rows and reads back the winner's ticket.
func (d *DB) CreateTicket(ctx context.Context, ticket models.Ticket) (bool, error) {
	res, err := d.Bun.NewInsert().
		Model(&ticket).
		On("CONFLICT (unit_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, &apperrors.StoreUnavailableError{Op: "CreateTicket", Err: err}
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

func (d *DB) GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrTicketNotFound
	}
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "GetTicketByID", Err: err}
	}
	return &ticket, nil
}

func (d *DB) GetTicketByUnit(ctx context.Context, unitID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("unit_id = ?", unitID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrTicketNotFound
	}
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "GetTicketByUnit", Err: err}
	}
	return &ticket, nil
}

func (d *DB) GetTicketsByHolder(ctx context.Context, holderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("holder_id = ?", holderID).
		Order("issued_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "GetTicketsByHolder", Err: err}
	}
	return tickets, nil
}

// RedeemTicket is the scan-at-the-gate transition: VALID -> USED through one
// conditional UPDATE. Of two concurrent scans of the same ticket exactly one
// affects a row; the other reports false and the service maps it to
// ErrAlreadyUsed.
func (d *DB) RedeemTicket(ctx context.Context, ticketID string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketUsed).
		Set("redeemed_at = ?", now).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", models.TicketValid).
		Exec(ctx)
	if err != nil {
		return false, &apperrors.StoreUnavailableError{Op: "RedeemTicket", Err: err}
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// VoidTicket transitions VALID -> CANCELLED.
func (d *DB) VoidTicket(ctx context.Context, ticketID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketCancelled).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", models.TicketValid).
		Exec(ctx)
	if err != nil {
		return false, &apperrors.StoreUnavailableError{Op: "VoidTicket", Err: err}
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}
