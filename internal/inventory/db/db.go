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

// DB is the bun-backed inventory store. Every state transition goes through a
// conditional UPDATE and is judged by rows affected, so the same code is
// correct on a single instance and across many instances sharing one database.
type DB struct {
	Bun *bun.DB
}

// ---------------- EVENTS ----------------

func (d *DB) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Order("starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "ListEvents", Err: err}
	}
	return events, nil
}

func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrEventNotFound
	}
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "GetEvent", Err: err}
	}
	return &event, nil
}

// ---------------- UNITS ----------------

func (d *DB) GetUnit(ctx context.Context, unitID string) (*models.InventoryUnit, error) {
	var unit models.InventoryUnit
	err := d.Bun.NewSelect().
		Model(&unit).
		Where("unit_id = ?", unitID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrUnitNotFound
	}
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "GetUnit", Err: err}
	}
	return &unit, nil
}

func (d *DB) ListUnitsByEvent(ctx context.Context, eventID string) ([]models.InventoryUnit, error) {
	var units []models.InventoryUnit
	err := d.Bun.NewSelect().
		Model(&units).
		Where("event_id = ?", eventID).
		Order("seat_label ASC").
		Scan(ctx)
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "ListUnitsByEvent", Err: err}
	}
	return units, nil
}

// AcquireUnit is the durable half of lock acquisition: a compare-and-set from
// AVAILABLE (or LOCKED with a lapsed expiry, so abandoned locks are reclaimed
// lazily without waiting for the sweep) to LOCKED. Returns false when the unit
// is held by a live lock or already sold.
func (d *DB) AcquireUnit(ctx context.Context, unitID, holderID string, expiresAt, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.InventoryUnit)(nil)).
		Set("status = ?", models.UnitLocked).
		Set("locked_by = ?", holderID).
		Set("lock_expires_at = ?", expiresAt).
		Where("unit_id = ?", unitID).
		Where("status = ? OR (status = ? AND lock_expires_at <= ?)",
			models.UnitAvailable, models.UnitLocked, now).
		Exec(ctx)
	if err != nil {
		return false, &apperrors.StoreUnavailableError{Op: "AcquireUnit", Err: err}
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// RenewUnitLock extends a live lock's expiry, only if the caller still holds it.
func (d *DB) RenewUnitLock(ctx context.Context, unitID, holderID string, expiresAt, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.InventoryUnit)(nil)).
		Set("lock_expires_at = ?", expiresAt).
		Where("unit_id = ?", unitID).
		Where("status = ?", models.UnitLocked).
		Where("locked_by = ?", holderID).
		Where("lock_expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return false, &apperrors.StoreUnavailableError{Op: "RenewUnitLock", Err: err}
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// ReleaseUnit transitions LOCKED back to AVAILABLE, guarded by the holder so an
// explicit release racing the expiry sweep cannot release somebody else's lock.
func (d *DB) ReleaseUnit(ctx context.Context, unitID, holderID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.InventoryUnit)(nil)).
		Set("status = ?", models.UnitAvailable).
		Set("locked_by = NULL").
		Set("lock_expires_at = NULL").
		Where("unit_id = ?", unitID).
		Where("status = ?", models.UnitLocked).
		Where("locked_by = ?", holderID).
		Exec(ctx)
	if err != nil {
		return false, &apperrors.StoreUnavailableError{Op: "ReleaseUnit", Err: err}
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// ReleaseExpiredUnit is the sweep's release: it only fires on a lock that is
// still past expiry at the moment of the UPDATE, so a unit re-acquired between
// scan and release is left alone. Re-releasing an already-released unit
// affects zero rows, which keeps the sweep idempotent across instances.
func (d *DB) ReleaseExpiredUnit(ctx context.Context, unitID string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.InventoryUnit)(nil)).
		Set("status = ?", models.UnitAvailable).
		Set("locked_by = NULL").
		Set("lock_expires_at = NULL").
		Where("unit_id = ?", unitID).
		Where("status = ?", models.UnitLocked).
		Where("lock_expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, &apperrors.StoreUnavailableError{Op: "ReleaseExpiredUnit", Err: err}
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// ListExpiredLocks returns the units whose locks lapsed before now.
func (d *DB) ListExpiredLocks(ctx context.Context, now time.Time) ([]models.InventoryUnit, error) {
	var units []models.InventoryUnit
	err := d.Bun.NewSelect().
		Model(&units).
		Where("status = ?", models.UnitLocked).
		Where("lock_expires_at <= ?", now).
		Scan(ctx)
	if err != nil {
		return nil, &apperrors.StoreUnavailableError{Op: "ListExpiredLocks", Err: err}
	}
	return units, nil
}

// MarkUnitsSold flips every unit of a confirmed reservation LOCKED -> SOLD in
// one transaction. Each UPDATE re-validates holder and liveness, so the race
// between sweep-triggered expiry and confirm is closed at the moment of
// transition: if any lock lapsed, the whole transaction rolls back and the
// caller sees ErrReservationExpired. No partial sale is observable.
// locked_by stays populated on the SOLD row as the purchaser record, which is
// how a duplicate confirm recognises its own sale after the fact.
func (d *DB) MarkUnitsSold(ctx context.Context, holderID string, unitIDs []string, now time.Time) error {
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, unitID := range unitIDs {
			res, err := tx.NewUpdate().
				Model((*models.InventoryUnit)(nil)).
				Set("status = ?", models.UnitSold).
				Set("lock_expires_at = NULL").
				Where("unit_id = ?", unitID).
				Where("status = ?", models.UnitLocked).
				Where("locked_by = ?", holderID).
				Where("lock_expires_at > ?", now).
				Exec(ctx)
			if err != nil {
				return &apperrors.StoreUnavailableError{Op: "MarkUnitsSold", Err: err}
			}
			if rows, _ := res.RowsAffected(); rows != 1 {
				return apperrors.ErrReservationExpired
			}
		}
		return nil
	})
	return err
}

// ---------------- SEEDING ----------------

func (d *DB) CreateEvent(ctx context.Context, event models.Event) error {
	_, err := d.Bun.NewInsert().Model(&event).Exec(ctx)
	if err != nil {
		return &apperrors.StoreUnavailableError{Op: "CreateEvent", Err: err}
	}
	return nil
}

func (d *DB) CreateUnit(ctx context.Context, unit models.InventoryUnit) error {
	_, err := d.Bun.NewInsert().Model(&unit).Exec(ctx)
	if err != nil {
		return &apperrors.StoreUnavailableError{Op: "CreateUnit", Err: err}
	}
	return nil
}
