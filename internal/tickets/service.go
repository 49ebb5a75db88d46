package tickets

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateTicket(ctx context.Context, ticket models.Ticket) (bool, error)
	GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
	GetTicketByUnit(ctx context.Context, unitID string) (*models.Ticket, error)
	GetTicketsByHolder(ctx context.Context, holderID string) ([]models.Ticket, error)
	RedeemTicket(ctx context.Context, ticketID string, now time.Time) (bool, error)
	VoidTicket(ctx context.Context, ticketID string) (bool, error)
}

// Service issues, voids, and redeems tickets. Ticket ids are random UUIDs
// (unguessable, never a counter) and the verification code is an HMAC over the
// ticket's identity fields, so a code cannot be forged from visible data alone.
type Service struct {
	DB     DBLayer
	Logger *logger.Logger
	secret []byte
}

func NewService(db DBLayer, log *logger.Logger, signingKey string) *Service {
	hashed := sha256.Sum256([]byte(signingKey)) // normalize to 32 bytes
	return &Service{DB: db, Logger: log, secret: hashed[:]}
}

// Issue creates the VALID ticket for a sold unit. Idempotent per unit: issuing
// twice returns the same ticket both times, whether the duplicate arrives
// sequentially or as a concurrent insert race.
func (s *Service) Issue(ctx context.Context, unit *models.InventoryUnit, holderID string) (*models.Ticket, error) {
	existing, err := s.DB.GetTicketByUnit(ctx, unit.UnitID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrTicketNotFound) {
		return nil, err
	}

	ticket := models.Ticket{
		TicketID: uuid.NewString(),
		EventID:  unit.EventID,
		UnitID:   unit.UnitID,
		HolderID: holderID,
		Status:   models.TicketValid,
		IssuedAt: time.Now(),
	}
	ticket.VerificationCode = s.computeCode(ticket)

	inserted, err := s.DB.CreateTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost a concurrent issuance race; the winner's ticket is the ticket.
		return s.DB.GetTicketByUnit(ctx, unit.UnitID)
	}

	s.Logger.LogTicket("ISSUE", ticket.TicketID, fmt.Sprintf("unit=%s holder=%s", unit.UnitID, holderID))
	return &ticket, nil
}

// Redeem transitions VALID -> USED exactly once. A second redemption of the
// same ticket fails with ErrAlreadyUsed; this is deliberate, it is the
// double-scan defence at the gate.
func (s *Service) Redeem(ctx context.Context, ticketID string) error {
	redeemed, err := s.DB.RedeemTicket(ctx, ticketID, time.Now())
	if err != nil {
		return err
	}
	if redeemed {
		s.Logger.LogTicket("REDEEM", ticketID, "ticket redeemed")
		return nil
	}

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return err
	}
	switch ticket.Status {
	case models.TicketUsed:
		return apperrors.ErrAlreadyUsed
	case models.TicketCancelled:
		return apperrors.ErrTicketCancelled
	default:
		return apperrors.ErrAlreadyUsed
	}
}

// Void transitions VALID -> CANCELLED. Voiding an already-voided ticket is a
// no-op; voiding a used ticket is rejected.
func (s *Service) Void(ctx context.Context, ticketID string) error {
	voided, err := s.DB.VoidTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if voided {
		s.Logger.LogTicket("VOID", ticketID, "ticket voided")
		return nil
	}

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status == models.TicketUsed {
		return apperrors.ErrAlreadyUsed
	}
	return nil
}

func (s *Service) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.DB.GetTicketByID(ctx, ticketID)
}

func (s *Service) GetTicketByUnit(ctx context.Context, unitID string) (*models.Ticket, error) {
	return s.DB.GetTicketByUnit(ctx, unitID)
}

func (s *Service) GetTicketsByHolder(ctx context.Context, holderID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByHolder(ctx, holderID)
}

// computeCode signs the ticket's identity fields. A plain concatenation would
// let anyone mint codes from public data; the HMAC keeps issuance server-side.
func (s *Service) computeCode(ticket models.Ticket) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s|%s", ticket.TicketID, ticket.EventID, ticket.UnitID, ticket.HolderID)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCode recomputes the signature in constant time.
func (s *Service) VerifyCode(ticket *models.Ticket) bool {
	expected := s.computeCode(*ticket)
	return hmac.Equal([]byte(expected), []byte(ticket.VerificationCode))
}
