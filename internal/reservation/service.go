package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/config"
	"ms-reservation/internal/lock"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/payment"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateReservation(ctx context.Context, reservation models.Reservation) error
	GetReservationByID(ctx context.Context, reservationID string) (*models.Reservation, error)
	SetState(ctx context.Context, reservationID string, state models.ReservationState, paymentRef string) (bool, error)
	ListReservationsByHolder(ctx context.Context, holderID string) ([]models.Reservation, error)
}

type LockManager interface {
	Acquire(ctx context.Context, unitID, holderID string, ttl time.Duration) (*lock.Handle, error)
	Release(ctx context.Context, handle *lock.Handle) error
	Forget(ctx context.Context, handle *lock.Handle)
}

type InventoryStore interface {
	GetUnit(ctx context.Context, unitID string) (*models.InventoryUnit, error)
	MarkUnitsSold(ctx context.Context, holderID string, unitIDs []string, now time.Time) error
}

type TicketIssuer interface {
	Issue(ctx context.Context, unit *models.InventoryUnit, holderID string) (*models.Ticket, error)
	GetTicketByUnit(ctx context.Context, unitID string) (*models.Ticket, error)
}

type EventPublisher interface {
	PublishReservationCreated(event models.ReservationEvent) error
	PublishReservationConfirmed(event models.ReservationEvent) error
	PublishReservationCancelled(event models.ReservationEvent) error
	PublishTicketIssued(event models.TicketIssuedEvent) error
}

// Service orchestrates the reservation lifecycle: an all-or-nothing lock grab
// across the cart, payment-gated confirmation into SOLD plus tickets, and
// idempotent cancellation. Every reservation is an explicit record; nothing is
// held in process memory between calls.
type Service struct {
	DB        DBLayer
	Locks     LockManager
	Inventory InventoryStore
	Tickets   TicketIssuer
	Gate      payment.Gate
	Publisher EventPublisher
	Logger    *logger.Logger
	Config    config.ReservationConfig
}

func NewService(db DBLayer, locks LockManager, inventory InventoryStore, tickets TicketIssuer, gate payment.Gate, publisher EventPublisher, log *logger.Logger, cfg config.ReservationConfig) *Service {
	return &Service{
		DB:        db,
		Locks:     locks,
		Inventory: inventory,
		Tickets:   tickets,
		Gate:      gate,
		Publisher: publisher,
		Logger:    log,
		Config:    cfg,
	}
}

// Reserve attempts to lock every requested unit for the holder. Either all
// units lock, or none do: on any conflict the acquired subset is released
// before returning, and the error names exactly which units conflicted so the
// caller can offer alternatives. The caller never observes a half-held block.
func (s *Service) Reserve(ctx context.Context, holderID string, unitIDs []string, ttl time.Duration) (*models.Reservation, error) {
	unitIDs = dedupe(unitIDs)
	if len(unitIDs) == 0 {
		return nil, errors.New("reservation must contain at least one unit")
	}
	if len(unitIDs) > s.Config.MaxUnits {
		return nil, fmt.Errorf("reservation exceeds the %d unit limit", s.Config.MaxUnits)
	}
	ttl = s.Config.ClampTTL(ttl)

	var acquired []*lock.Handle
	var conflicts []string

	for _, unitID := range unitIDs {
		handle, err := s.Locks.Acquire(ctx, unitID, holderID, ttl)
		if err != nil {
			if errors.Is(err, apperrors.ErrAlreadyLocked) ||
				errors.Is(err, apperrors.ErrAlreadySold) ||
				errors.Is(err, apperrors.ErrUnitNotFound) {
				conflicts = append(conflicts, unitID)
				continue
			}
			// Store trouble: stop trying and put back what we hold.
			s.rollback(ctx, acquired)
			return nil, err
		}
		acquired = append(acquired, handle)
	}

	if len(conflicts) > 0 {
		s.rollback(ctx, acquired)
		s.Logger.LogReservation("CONFLICT", holderID, fmt.Sprintf("units unavailable: %v", conflicts))
		return nil, &apperrors.PartialConflictError{UnitIDs: conflicts}
	}

	// All locks were created together with one TTL; the reservation window is
	// the earliest constituent expiry.
	expiresAt := acquired[0].ExpiresAt
	for _, h := range acquired[1:] {
		if h.ExpiresAt.Before(expiresAt) {
			expiresAt = h.ExpiresAt
		}
	}

	reservation := models.Reservation{
		ReservationID: uuid.NewString(),
		HolderID:      holderID,
		UnitIDs:       unitIDs,
		State:         models.ReservationPending,
		CreatedAt:     time.Now(),
		ExpiresAt:     expiresAt,
	}

	if err := s.DB.CreateReservation(ctx, reservation); err != nil {
		s.rollback(ctx, acquired)
		return nil, err
	}

	s.Logger.LogReservation("CREATE", reservation.ReservationID, fmt.Sprintf("holder=%s units=%v ttl=%s", holderID, unitIDs, ttl))
	s.publishLifecycle(lifecycleCreated, reservation)

	return &reservation, nil
}

// Confirm settles a reservation against its payment outcome. On SUCCESS every
// unit moves LOCKED -> SOLD in one transaction that re-validates lock liveness
// at the moment of transition, then one ticket per unit is issued. On FAILED
// all locks are released and the reservation is cancelled; no partial sale.
// Confirming an already-confirmed reservation returns its tickets again.
func (s *Service) Confirm(ctx context.Context, reservationID, paymentRef string) ([]models.Ticket, error) {
	reservation, err := s.DB.GetReservationByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	switch reservation.State {
	case models.ReservationConfirmed:
		return s.ticketsFor(ctx, reservation)
	case models.ReservationExpired, models.ReservationCancelled:
		return nil, apperrors.ErrReservationExpired
	}

	now := time.Now()
	if now.After(reservation.ExpiresAt) {
		// A late retry of a confirm whose sale already went through is not an
		// expiry; fall through and let the settled units drive the outcome.
		sold, soldErr := s.saleAlreadyLanded(ctx, reservation)
		if soldErr != nil {
			return nil, soldErr
		}
		if !sold {
			s.expire(ctx, reservation)
			return nil, apperrors.ErrReservationExpired
		}
	}

	outcome, err := s.Gate.GetOutcome(ctx, paymentRef)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case models.PaymentPending:
		return nil, apperrors.ErrPaymentPending
	case models.PaymentFailed:
		s.releaseUnits(ctx, reservation)
		s.setState(ctx, reservationID, models.ReservationCancelled, paymentRef)
		s.Logger.LogReservation("CANCEL", reservationID, "payment failed, locks released")
		s.publishLifecycle(lifecycleCancelled, *reservation)
		return nil, apperrors.ErrPaymentFailed
	}

	if err := s.Inventory.MarkUnitsSold(ctx, reservation.HolderID, reservation.UnitIDs, now); err != nil {
		if !errors.Is(err, apperrors.ErrReservationExpired) {
			return nil, err
		}
		sold, soldErr := s.saleAlreadyLanded(ctx, reservation)
		if soldErr != nil {
			return nil, soldErr
		}
		if !sold {
			// The sweep (or a lapsed TTL) beat us to at least one unit; the
			// transaction rolled back, so nothing was sold.
			s.expire(ctx, reservation)
			return nil, apperrors.ErrReservationExpired
		}
		// This reservation's sale already went through: a duplicate confirm
		// raced us past MarkUnitsSold, or an earlier attempt crashed between
		// the sale and ticket issuance. Finish the confirmation instead of
		// stamping a paid reservation expired.
	}

	// The SOLD rows supersede the locks; drop the Redis keys.
	for _, unitID := range reservation.UnitIDs {
		s.Locks.Forget(ctx, &lock.Handle{UnitID: unitID, HolderID: reservation.HolderID})
	}

	tickets := make([]models.Ticket, 0, len(reservation.UnitIDs))
	for _, unitID := range reservation.UnitIDs {
		unit, err := s.Inventory.GetUnit(ctx, unitID)
		if err != nil {
			return nil, err
		}
		ticket, err := s.Tickets.Issue(ctx, unit, reservation.HolderID)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
		s.publishTicket(*ticket)
	}

	s.setState(ctx, reservationID, models.ReservationConfirmed, paymentRef)
	reservation.State = models.ReservationConfirmed
	s.Logger.LogReservation("CONFIRM", reservationID, fmt.Sprintf("%d units sold, %d tickets issued", len(reservation.UnitIDs), len(tickets)))
	s.publishLifecycle(lifecycleConfirmed, *reservation)

	return tickets, nil
}

// Cancel is the explicit release before confirmation. Cancelling twice, or
// cancelling an expired reservation, is a no-op; cancelling a confirmed one is
// rejected because its units are already sold.
func (s *Service) Cancel(ctx context.Context, reservationID string) error {
	reservation, err := s.DB.GetReservationByID(ctx, reservationID)
	if err != nil {
		return err
	}

	switch reservation.State {
	case models.ReservationConfirmed:
		return apperrors.ErrAlreadyConfirmed
	case models.ReservationCancelled, models.ReservationExpired:
		return nil
	}

	s.releaseUnits(ctx, reservation)
	s.setState(ctx, reservationID, models.ReservationCancelled, "")
	s.Logger.LogReservation("CANCEL", reservationID, "cancelled by holder")
	s.publishLifecycle(lifecycleCancelled, *reservation)
	return nil
}

func (s *Service) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	return s.DB.GetReservationByID(ctx, reservationID)
}

func (s *Service) ListByHolder(ctx context.Context, holderID string) ([]models.Reservation, error) {
	return s.DB.ListReservationsByHolder(ctx, holderID)
}

// expire marks the reservation EXPIRED and releases whatever locks are still
// held. Individual releases may lose to the sweep; that is fine, the sweep
// already returned those units to AVAILABLE.
func (s *Service) expire(ctx context.Context, reservation *models.Reservation) {
	s.releaseUnits(ctx, reservation)
	s.setState(ctx, reservation.ReservationID, models.ReservationExpired, "")
	s.Logger.LogReservation("EXPIRE", reservation.ReservationID, "reservation expired before confirmation")
}

// setState records a terminal transition. SetState only moves reservations out
// of PENDING, so a false return means some other path settled the reservation
// first; that is worth a log line but never an error to the caller.
func (s *Service) setState(ctx context.Context, reservationID string, state models.ReservationState, paymentRef string) {
	moved, err := s.DB.SetState(ctx, reservationID, state, paymentRef)
	if err != nil {
		s.Logger.Error("RESERVATION", fmt.Sprintf("Failed to move %s to %s: %v", reservationID, state, err))
		return
	}
	if !moved {
		s.Logger.Warn("RESERVATION", fmt.Sprintf("Transition of %s to %s lost, reservation already settled", reservationID, state))
	}
}

// saleAlreadyLanded reports whether every unit in the reservation is SOLD with
// this holder recorded as the purchaser, which means a previous confirm of this
// same reservation got its sale through before we did.
func (s *Service) saleAlreadyLanded(ctx context.Context, reservation *models.Reservation) (bool, error) {
	for _, unitID := range reservation.UnitIDs {
		unit, err := s.Inventory.GetUnit(ctx, unitID)
		if err != nil {
			if errors.Is(err, apperrors.ErrUnitNotFound) {
				return false, nil
			}
			return false, err
		}
		if unit.Status != models.UnitSold || unit.LockedBy != reservation.HolderID {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) releaseUnits(ctx context.Context, reservation *models.Reservation) {
	for _, unitID := range reservation.UnitIDs {
		handle := &lock.Handle{UnitID: unitID, HolderID: reservation.HolderID}
		if err := s.Locks.Release(ctx, handle); err != nil && !errors.Is(err, apperrors.ErrLockNotHeld) {
			s.Logger.Error("RESERVATION", fmt.Sprintf("Failed to release unit %s: %v", unitID, err))
		}
	}
}

func (s *Service) rollback(ctx context.Context, acquired []*lock.Handle) {
	for _, handle := range acquired {
		if err := s.Locks.Release(ctx, handle); err != nil && !errors.Is(err, apperrors.ErrLockNotHeld) {
			s.Logger.Error("RESERVATION", fmt.Sprintf("Rollback failed to release unit %s: %v", handle.UnitID, err))
		}
	}
}

func (s *Service) ticketsFor(ctx context.Context, reservation *models.Reservation) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0, len(reservation.UnitIDs))
	for _, unitID := range reservation.UnitIDs {
		ticket, err := s.Tickets.GetTicketByUnit(ctx, unitID)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, nil
}

type lifecycleKind int

const (
	lifecycleCreated lifecycleKind = iota
	lifecycleConfirmed
	lifecycleCancelled
)

func (s *Service) publishLifecycle(kind lifecycleKind, reservation models.Reservation) {
	if s.Publisher == nil {
		return
	}
	event := models.ReservationEvent{
		ReservationID: reservation.ReservationID,
		HolderID:      reservation.HolderID,
		UnitIDs:       reservation.UnitIDs,
		State:         string(reservation.State),
		Timestamp:     time.Now(),
	}
	var err error
	switch kind {
	case lifecycleCreated:
		err = s.Publisher.PublishReservationCreated(event)
	case lifecycleConfirmed:
		err = s.Publisher.PublishReservationConfirmed(event)
	case lifecycleCancelled:
		err = s.Publisher.PublishReservationCancelled(event)
	}
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish reservation event for %s: %v", reservation.ReservationID, err))
	}
}

func (s *Service) publishTicket(ticket models.Ticket) {
	if s.Publisher == nil {
		return
	}
	event := models.TicketIssuedEvent{
		TicketID:  ticket.TicketID,
		EventID:   ticket.EventID,
		UnitID:    ticket.UnitID,
		HolderID:  ticket.HolderID,
		Timestamp: time.Now(),
	}
	if err := s.Publisher.PublishTicketIssued(event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish ticket event for %s: %v", ticket.TicketID, err))
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
