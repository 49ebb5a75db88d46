package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/inventory/db"
	"ms-reservation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Event)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.InventoryUnit)(nil)))

	return &db.DB{Bun: bunDB}
}

func seedUnit(t *testing.T, store *db.DB, unitID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateEvent(ctx, models.Event{
		EventID:   "event-" + unitID,
		Title:     "Test Event",
		Venue:     "Test Venue",
		StartsAt:  time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}))
	require.NoError(t, store.CreateUnit(ctx, models.InventoryUnit{
		UnitID:     unitID,
		EventID:    "event-" + unitID,
		SeatID:     "seat-1",
		SeatLabel:  "A1",
		PriceCents: 25000,
		Status:     models.UnitAvailable,
	}))
}

func TestAcquireUnit(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, store, "unit-1")

	now := time.Now()
	expiresAt := now.Add(5 * time.Minute)

	acquired, err := store.AcquireUnit(ctx, "unit-1", "holder-a", expiresAt, now)
	require.NoError(t, err)
	assert.True(t, acquired)

	unit, err := store.GetUnit(ctx, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, models.UnitLocked, unit.Status)
	assert.Equal(t, "holder-a", unit.LockedBy)

	// A second holder must not displace a live lock.
	acquired, err = store.AcquireUnit(ctx, "unit-1", "holder-b", expiresAt, now)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestAcquireUnitReclaimsLapsedLock(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, store, "unit-1")

	now := time.Now()
	acquired, err := store.AcquireUnit(ctx, "unit-1", "holder-a", now.Add(-time.Second), now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, acquired)

	// holder-a's expiry has passed, so holder-b takes the unit without waiting
	// for the sweep.
	acquired, err = store.AcquireUnit(ctx, "unit-1", "holder-b", now.Add(5*time.Minute), now)
	require.NoError(t, err)
	assert.True(t, acquired)

	unit, err := store.GetUnit(ctx, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, "holder-b", unit.LockedBy)
}

func TestReleaseUnitOwnerGuard(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, store, "unit-1")

	now := time.Now()
	_, err := store.AcquireUnit(ctx, "unit-1", "holder-a", now.Add(5*time.Minute), now)
	require.NoError(t, err)

	released, err := store.ReleaseUnit(ctx, "unit-1", "holder-b")
	require.NoError(t, err)
	assert.False(t, released, "release by a non-owner must not touch the lock")

	released, err = store.ReleaseUnit(ctx, "unit-1", "holder-a")
	require.NoError(t, err)
	assert.True(t, released)

	unit, err := store.GetUnit(ctx, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, models.UnitAvailable, unit.Status)
	assert.Empty(t, unit.LockedBy)
}

func TestReleaseExpiredUnit(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, store, "unit-1")

	now := time.Now()
	_, err := store.AcquireUnit(ctx, "unit-1", "holder-a", now.Add(-time.Second), now.Add(-time.Minute))
	require.NoError(t, err)

	expired, err := store.ListExpiredLocks(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "unit-1", expired[0].UnitID)

	released, err := store.ReleaseExpiredUnit(ctx, "unit-1", now)
	require.NoError(t, err)
	assert.True(t, released)

	// A second pass affects zero rows.
	released, err = store.ReleaseExpiredUnit(ctx, "unit-1", now)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestReleaseExpiredUnitLeavesLiveLockAlone(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, store, "unit-1")

	now := time.Now()
	_, err := store.AcquireUnit(ctx, "unit-1", "holder-a", now.Add(5*time.Minute), now)
	require.NoError(t, err)

	released, err := store.ReleaseExpiredUnit(ctx, "unit-1", now)
	require.NoError(t, err)
	assert.False(t, released)

	unit, err := store.GetUnit(ctx, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, models.UnitLocked, unit.Status)
}

func TestRenewUnitLock(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, store, "unit-1")

	now := time.Now()
	_, err := store.AcquireUnit(ctx, "unit-1", "holder-a", now.Add(time.Minute), now)
	require.NoError(t, err)

	renewed, err := store.RenewUnitLock(ctx, "unit-1", "holder-a", now.Add(10*time.Minute), now)
	require.NoError(t, err)
	assert.True(t, renewed)

	renewed, err = store.RenewUnitLock(ctx, "unit-1", "holder-b", now.Add(10*time.Minute), now)
	require.NoError(t, err)
	assert.False(t, renewed, "renew by a non-owner must fail")
}

func TestMarkUnitsSoldAllOrNothing(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, store, "unit-1")
	seedUnit(t, store, "unit-2")

	now := time.Now()
	_, err := store.AcquireUnit(ctx, "unit-1", "holder-a", now.Add(5*time.Minute), now)
	require.NoError(t, err)
	// unit-2's lock already lapsed.
	_, err = store.AcquireUnit(ctx, "unit-2", "holder-a", now.Add(-time.Second), now.Add(-time.Minute))
	require.NoError(t, err)

	err = store.MarkUnitsSold(ctx, "holder-a", []string{"unit-1", "unit-2"}, now)
	assert.ErrorIs(t, err, apperrors.ErrReservationExpired)

	// The transaction rolled back: unit-1 was not sold.
	unit, err := store.GetUnit(ctx, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, models.UnitLocked, unit.Status)
}

func TestMarkUnitsSold(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedUnit(t, store, "unit-1")
	seedUnit(t, store, "unit-2")

	now := time.Now()
	for _, unitID := range []string{"unit-1", "unit-2"} {
		_, err := store.AcquireUnit(ctx, unitID, "holder-a", now.Add(5*time.Minute), now)
		require.NoError(t, err)
	}

	require.NoError(t, store.MarkUnitsSold(ctx, "holder-a", []string{"unit-1", "unit-2"}, now))

	for _, unitID := range []string{"unit-1", "unit-2"} {
		unit, err := store.GetUnit(ctx, unitID)
		require.NoError(t, err)
		assert.Equal(t, models.UnitSold, unit.Status)
		// The purchaser stays on the SOLD row.
		assert.Equal(t, "holder-a", unit.LockedBy)
		assert.True(t, unit.LockExpiresAt.IsZero())
	}

	// SOLD is terminal: no acquisition can take the unit back.
	acquired, err := store.AcquireUnit(ctx, "unit-1", "holder-b", now.Add(5*time.Minute), now)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestGetUnitNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetUnit(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrUnitNotFound)
}
