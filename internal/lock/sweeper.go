package lock

import (
	"context"
	"fmt"
	"time"

	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

// SweepStore is the slice of the store the sweeper needs.
type SweepStore interface {
	ListExpiredLocks(ctx context.Context, now time.Time) ([]models.InventoryUnit, error)
	ReleaseExpiredUnit(ctx context.Context, unitID string, now time.Time) (bool, error)
}

// ReservationExpirer lets the sweep lazily flip PENDING reservations whose
// window has passed to EXPIRED, so stale claims do not linger until the next
// confirm or cancel touches them.
type ReservationExpirer interface {
	ExpirePending(ctx context.Context, now time.Time) (int, error)
}

// ReleasePublisher receives one notification per unit the sweep reclaims.
type ReleasePublisher interface {
	PublishSeatReleased(event models.SeatReleasedEvent) error
}

// Sweeper is the background reclaimer of abandoned locks. It runs on a fixed
// interval, independent of any request path, and every individual release is a
// conditional update, so concurrent sweeps (explicit release, a sibling
// instance's sweeper) are harmless: whichever completes first wins and the
// loser affects zero rows.
type Sweeper struct {
	Store        SweepStore
	Reservations ReservationExpirer
	Publisher    ReleasePublisher
	Logger       *logger.Logger
	Interval     time.Duration
}

func NewSweeper(store SweepStore, reservations ReservationExpirer, publisher ReleasePublisher, log *logger.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		Store:        store,
		Reservations: reservations,
		Publisher:    publisher,
		Logger:       log,
		Interval:     interval,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	s.Logger.LogSweep(fmt.Sprintf("Expiry sweep started (interval %s)", s.Interval))

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.Logger.LogSweep("Expiry sweep stopped")
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce performs a single pass and returns how many units it reclaimed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	now := time.Now()

	expired, err := s.Store.ListExpiredLocks(ctx, now)
	if err != nil {
		s.Logger.Error("SWEEP", fmt.Sprintf("Failed to list expired locks: %v", err))
		return 0
	}

	released := 0
	for _, unit := range expired {
		ok, err := s.Store.ReleaseExpiredUnit(ctx, unit.UnitID, now)
		if err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("Failed to release unit %s: %v", unit.UnitID, err))
			continue
		}
		if !ok {
			// Lost the race to an explicit release or a fresh acquisition.
			continue
		}
		released++
		s.Logger.LogLock("EXPIRE", unit.UnitID, fmt.Sprintf("lock held by %s lapsed at %s", unit.LockedBy, unit.LockExpiresAt.Format(time.RFC3339)))

		if s.Publisher != nil {
			event := models.SeatReleasedEvent{
				UnitID:    unit.UnitID,
				EventID:   unit.EventID,
				Reason:    "lock_expired",
				Timestamp: now,
			}
			if err := s.Publisher.PublishSeatReleased(event); err != nil {
				s.Logger.Error("SWEEP", fmt.Sprintf("Failed to publish seat release for %s: %v", unit.UnitID, err))
			}
		}
	}

	if s.Reservations != nil {
		expiredReservations, err := s.Reservations.ExpirePending(ctx, now)
		if err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("Failed to expire pending reservations: %v", err))
		} else if expiredReservations > 0 {
			s.Logger.LogSweep(fmt.Sprintf("Marked %d reservations expired", expiredReservations))
		}
	}

	if released > 0 {
		s.Logger.LogSweep(fmt.Sprintf("Released %d expired locks", released))
	}
	return released
}
