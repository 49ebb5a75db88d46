package lock_test

import (
	"context"
	"testing"
	"time"

	"ms-reservation/internal/lock"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []models.SeatReleasedEvent
}

func (p *recordingPublisher) PublishSeatReleased(event models.SeatReleasedEvent) error {
	p.events = append(p.events, event)
	return nil
}

type recordingExpirer struct {
	calls int
}

func (e *recordingExpirer) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	e.calls++
	return 0, nil
}

func TestSweepReclaimsExpiredLocks(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedAvailableUnit(t, store, "unit-1")
	seedAvailableUnit(t, store, "unit-2")

	now := time.Now()
	// unit-1's lock lapsed a minute ago; unit-2's is still live.
	_, err := store.AcquireUnit(ctx, "unit-1", "holder-a", now.Add(-time.Minute), now.Add(-2*time.Minute))
	require.NoError(t, err)
	_, err = store.AcquireUnit(ctx, "unit-2", "holder-b", now.Add(5*time.Minute), now)
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	expirer := &recordingExpirer{}
	sweeper := lock.NewSweeper(store, expirer, publisher, logger.NewLogger(), 10*time.Millisecond)

	released := sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, released)

	unit, err := store.GetUnit(ctx, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, models.UnitAvailable, unit.Status)

	unit, err = store.GetUnit(ctx, "unit-2")
	require.NoError(t, err)
	assert.Equal(t, models.UnitLocked, unit.Status)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "unit-1", publisher.events[0].UnitID)
	assert.Equal(t, "lock_expired", publisher.events[0].Reason)
	assert.Equal(t, 1, expirer.calls)
}

func TestSweepIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedAvailableUnit(t, store, "unit-1")

	now := time.Now()
	_, err := store.AcquireUnit(ctx, "unit-1", "holder-a", now.Add(-time.Minute), now.Add(-2*time.Minute))
	require.NoError(t, err)

	sweeper := lock.NewSweeper(store, nil, nil, logger.NewLogger(), 10*time.Millisecond)

	assert.Equal(t, 1, sweeper.SweepOnce(ctx))
	assert.Equal(t, 0, sweeper.SweepOnce(ctx))
}

func TestSweepLoopStopsOnCancel(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	seedAvailableUnit(t, store, "unit-1")

	now := time.Now()
	_, err := store.AcquireUnit(ctx, "unit-1", "holder-a", now.Add(-time.Minute), now.Add(-2*time.Minute))
	require.NoError(t, err)

	sweeper := lock.NewSweeper(store, nil, nil, logger.NewLogger(), 10*time.Millisecond)
	sweeper.Start(ctx)

	assert.Eventually(t, func() bool {
		unit, err := store.GetUnit(context.Background(), "unit-1")
		return err == nil && unit.Status == models.UnitAvailable
	}, time.Second, 10*time.Millisecond)

	cancel()
}
