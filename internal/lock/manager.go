package lock

import (
	"context"
	"fmt"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/config"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"

	"github.com/go-redis/redis/v8"
)

// InventoryStore is the slice of the store the lock manager needs. The store is
// the single source of truth for unit status; the manager never keeps a
// "locked" decision in memory that the store does not reflect.
type InventoryStore interface {
	GetUnit(ctx context.Context, unitID string) (*models.InventoryUnit, error)
	AcquireUnit(ctx context.Context, unitID, holderID string, expiresAt, now time.Time) (bool, error)
	RenewUnitLock(ctx context.Context, unitID, holderID string, expiresAt, now time.Time) (bool, error)
	ReleaseUnit(ctx context.Context, unitID, holderID string) (bool, error)
}

// Handle is the caller's proof of a granted lock.
type Handle struct {
	UnitID    string
	HolderID  string
	ExpiresAt time.Time
}

// releaseScript deletes the unit key only while the caller still owns it, so a
// release racing lock expiry (or another holder's fresh acquisition) is a no-op
// on the Redis side.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// renewScript extends the key TTL only for the current owner.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// Manager grants and revokes time-bounded exclusive holds on inventory units.
// Redis SETNX is the per-unit serialization point (exactly one winner among
// concurrent acquirers); the store CAS mirrors the decision into the durable
// status column so restarts and sibling instances recover consistent state.
type Manager struct {
	Client *redis.Client
	Store  InventoryStore
	Logger *logger.Logger
	TTL    config.ReservationConfig
}

func NewManager(client *redis.Client, store InventoryStore, log *logger.Logger, ttl config.ReservationConfig) *Manager {
	return &Manager{Client: client, Store: store, Logger: log, TTL: ttl}
}

func unitLockKey(unitID string) string {
	return "unit_lock:" + unitID
}

// Acquire grants a lock on an AVAILABLE unit. Exactly one of any number of
// concurrent callers wins; the rest get ErrAlreadyLocked, or ErrAlreadySold if
// the unit has been sold.
func (m *Manager) Acquire(ctx context.Context, unitID, holderID string, ttl time.Duration) (*Handle, error) {
	ttl = m.TTL.ClampTTL(ttl)
	now := time.Now()
	expiresAt := now.Add(ttl)
	key := unitLockKey(unitID)

	ok, err := m.Client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock error: %w", err)
	}
	if !ok {
		return nil, m.classifyConflict(ctx, unitID)
	}

	acquired, err := m.Store.AcquireUnit(ctx, unitID, holderID, expiresAt, now)
	if err != nil {
		m.Client.Eval(ctx, releaseScript, []string{key}, holderID)
		return nil, err
	}
	if !acquired {
		// SETNX won but the durable CAS lost: the unit is SOLD, missing, or a
		// lapsed Redis key let us in while another holder's row-lock is live.
		m.Client.Eval(ctx, releaseScript, []string{key}, holderID)
		return nil, m.classifyConflict(ctx, unitID)
	}

	m.Logger.LogLock("ACQUIRE", unitID, fmt.Sprintf("holder=%s ttl=%s", holderID, ttl))
	return &Handle{UnitID: unitID, HolderID: holderID, ExpiresAt: expiresAt}, nil
}

// classifyConflict distinguishes AlreadySold from AlreadyLocked after a failed
// acquisition, so the caller can tell a transient conflict from a dead end.
func (m *Manager) classifyConflict(ctx context.Context, unitID string) error {
	unit, err := m.Store.GetUnit(ctx, unitID)
	if err != nil {
		return err
	}
	if unit.Status == models.UnitSold {
		return apperrors.ErrAlreadySold
	}
	return apperrors.ErrAlreadyLocked
}

// Renew extends a held lock. The store row is authoritative; on success the
// Redis key is refreshed (re-created if it already lapsed).
func (m *Manager) Renew(ctx context.Context, handle *Handle, ttl time.Duration) error {
	ttl = m.TTL.ClampTTL(ttl)
	now := time.Now()
	expiresAt := now.Add(ttl)

	renewed, err := m.Store.RenewUnitLock(ctx, handle.UnitID, handle.HolderID, expiresAt, now)
	if err != nil {
		return err
	}
	if !renewed {
		return apperrors.ErrLockNotHeld
	}

	key := unitLockKey(handle.UnitID)
	res, err := m.Client.Eval(ctx, renewScript, []string{key}, handle.HolderID, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("redis renew error: %w", err)
	}
	if extended, _ := res.(int64); extended == 0 {
		// Key already expired in Redis; re-establish it for the new window.
		if err := m.Client.Set(ctx, key, handle.HolderID, ttl).Err(); err != nil {
			return fmt.Errorf("redis renew error: %w", err)
		}
	}

	handle.ExpiresAt = expiresAt
	m.Logger.LogLock("RENEW", handle.UnitID, fmt.Sprintf("holder=%s ttl=%s", handle.HolderID, ttl))
	return nil
}

// Release returns the unit to AVAILABLE. Releasing a lock that is no longer
// held (already expired, already released) fails with ErrLockNotHeld rather
// than touching anyone else's state; the first release wins, the second is a
// safe failure.
func (m *Manager) Release(ctx context.Context, handle *Handle) error {
	key := unitLockKey(handle.UnitID)
	res, err := m.Client.Eval(ctx, releaseScript, []string{key}, handle.HolderID).Result()
	if err != nil {
		return fmt.Errorf("redis unlock error: %w", err)
	}
	deleted, _ := res.(int64)

	released, err := m.Store.ReleaseUnit(ctx, handle.UnitID, handle.HolderID)
	if err != nil {
		return err
	}
	if !released && deleted == 0 {
		return apperrors.ErrLockNotHeld
	}

	m.Logger.LogLock("RELEASE", handle.UnitID, fmt.Sprintf("holder=%s", handle.HolderID))
	return nil
}

// Forget drops the Redis key for a lock that was superseded by a SOLD
// transition. The durable row has already left the LOCKED state, so there is
// nothing to release there.
func (m *Manager) Forget(ctx context.Context, handle *Handle) {
	m.Client.Eval(ctx, releaseScript, []string{unitLockKey(handle.UnitID)}, handle.HolderID)
}
