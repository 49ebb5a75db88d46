package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Business-conflict errors. All of these are recoverable by the caller and are
// mapped to 4xx responses at the API layer; none of them is process-fatal.
var (
	ErrEventNotFound       = errors.New("event not found")
	ErrUnitNotFound        = errors.New("inventory unit not found")
	ErrAlreadyLocked       = errors.New("unit is already locked by another holder")
	ErrAlreadySold         = errors.New("unit is already sold")
	ErrLockNotHeld         = errors.New("lock is not held by this holder")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationExpired  = errors.New("reservation has expired")
	ErrAlreadyConfirmed    = errors.New("reservation is already confirmed")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrPaymentPending      = errors.New("payment is still pending")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrAlreadyUsed         = errors.New("ticket has already been used")
	ErrTicketCancelled     = errors.New("ticket has been cancelled")
)

// PartialConflictError reports which units of a multi-unit reservation could not
// be locked. The caller receives the full conflict set so the presentation layer
// can offer alternatives; any units that did lock have already been rolled back.
type PartialConflictError struct {
	UnitIDs []string
}

func (e *PartialConflictError) Error() string {
	return fmt.Sprintf("could not lock units: %s", strings.Join(e.UnitIDs, ", "))
}

// StoreUnavailableError wraps connectivity failures from the inventory store so
// they are distinguishable from business conflicts.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("inventory store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// IsStoreUnavailable reports whether err is (or wraps) a StoreUnavailableError.
func IsStoreUnavailable(err error) bool {
	var su *StoreUnavailableError
	return errors.As(err, &su)
}
