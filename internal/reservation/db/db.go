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

func (d *DB) CreateReservation(ctx context.Context, reservation models.Reservation) error {
	_, err := d.Bun.NewInsert().Model(&reservation).Exec(ctx)
	if err != nil {
		return &apperrors.StoreUnavailableError{Op: "CreateReservation", Err: err}
	}
	return nil
}

func (d *DB) GetReservationByID(ctx context.Context, reservationID string) (*models.Reservation, error) {
	var reservation models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservation).
		Where("reservation_id = ?", reservationID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrReservationNotFound
	}
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "GetReservationByID", Err: err}
	}
	return &reservation, nil
}

// SetState moves a reservation out of PENDING. The state guard keeps two
// late-racing outcomes (confirm vs. sweep expiry) from overwriting each other:
// only one transition out of PENDING ever lands.
func (d *DB) SetState(ctx context.Context, reservationID string, state models.ReservationState, paymentRef string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("state = ?", state).
		Where("reservation_id = ?", reservationID).
		Where("state = ?", models.ReservationPending)
	if paymentRef != "" {
		q = q.Set("payment_ref = ?", paymentRef)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, &apperrors.StoreUnavailableError{Op: "SetState", Err: err}
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// ExpirePending bulk-flips PENDING reservations whose window has passed. Called
// from the expiry sweep; idempotent across instances.
func (d *DB) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("state = ?", models.ReservationExpired).
		Where("state = ?", models.ReservationPending).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, &apperrors.StoreUnavailableError{Op: "ExpirePending", Err: err}
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

func (d *DB) ListReservationsByHolder(ctx context.Context, holderID string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Where("holder_id = ?", holderID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "ListReservationsByHolder", Err: err}
	}
	return reservations, nil
}
