package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/reservation"
	"ms-reservation/internal/tickets"

	"github.com/go-chi/chi/v5"
)

// InventoryDB is the read-side slice of the inventory store the API exposes.
type InventoryDB interface {
	ListEvents(ctx context.Context) ([]models.Event, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	ListUnitsByEvent(ctx context.Context, eventID string) ([]models.InventoryUnit, error)
}

type Handler struct {
	Reservations *reservation.Service
	Tickets      *tickets.Service
	Inventory    InventoryDB
	Logger       *logger.Logger
}

func NewHandler(reservations *reservation.Service, ticketService *tickets.Service, inventory InventoryDB, log *logger.Logger) *Handler {
	return &Handler{
		Reservations: reservations,
		Tickets:      ticketService,
		Inventory:    inventory,
		Logger:       log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Inventory.ListEvents(r.Context())
	if err != nil {
		h.writeDomainError(w, "ListEvents", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) ListEventSeats(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	if _, err := h.Inventory.GetEvent(r.Context(), eventID); err != nil {
		h.writeDomainError(w, "ListEventSeats", err)
		return
	}

	units, err := h.Inventory.ListUnitsByEvent(r.Context(), eventID)
	if err != nil {
		h.writeDomainError(w, "ListEventSeats", err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req models.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateReservation: failed to decode request body: %v", err))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.HolderID == "" {
		writeError(w, http.StatusBadRequest, "holder_id is required")
		return
	}
	if len(req.UnitIDs) == 0 {
		writeError(w, http.StatusBadRequest, "unit_ids must not be empty")
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	res, err := h.Reservations.Reserve(r.Context(), req.HolderID, req.UnitIDs, ttl)
	if err != nil {
		h.writeDomainError(w, "CreateReservation", err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationID")

	res, err := h.Reservations.GetReservation(r.Context(), reservationID)
	if err != nil {
		h.writeDomainError(w, "GetReservation", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationID")

	var req models.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ConfirmReservation: failed to decode request body: %v", err))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentReference == "" {
		writeError(w, http.StatusBadRequest, "payment_reference is required")
		return
	}

	issued, err := h.Reservations.Confirm(r.Context(), reservationID, req.PaymentReference)
	if err != nil {
		h.writeDomainError(w, "ConfirmReservation", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reservation_id": reservationID,
		"tickets":        issued,
	})
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationID")

	if err := h.Reservations.Cancel(r.Context(), reservationID); err != nil {
		h.writeDomainError(w, "CancelReservation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListReservationsByHolder(w http.ResponseWriter, r *http.Request) {
	holderID := chi.URLParam(r, "holderID")

	reservations, err := h.Reservations.ListByHolder(r.Context(), holderID)
	if err != nil {
		h.writeDomainError(w, "ListReservationsByHolder", err)
		return
	}

	writeJSON(w, http.StatusOK, reservations)
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ticket, err := h.Tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.writeDomainError(w, "ViewTicket", err)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ticket, err := h.Tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.writeDomainError(w, "TicketQR", err)
		return
	}

	png, err := h.Tickets.QRCode(ticket)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQR: failed to render QR for %s: %v", ticketID, err))
		writeError(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) RedeemTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	if err := h.Tickets.Redeem(r.Context(), ticketID); err != nil {
		h.writeDomainError(w, "RedeemTicket", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ticket_id": ticketID,
		"status":    string(models.TicketUsed),
	})
}

func (h *Handler) VoidTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	if err := h.Tickets.Void(r.Context(), ticketID); err != nil {
		h.writeDomainError(w, "VoidTicket", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTicketsByHolder(w http.ResponseWriter, r *http.Request) {
	holderID := chi.URLParam(r, "holderID")

	held, err := h.Tickets.GetTicketsByHolder(r.Context(), holderID)
	if err != nil {
		h.writeDomainError(w, "ListTicketsByHolder", err)
		return
	}

	writeJSON(w, http.StatusOK, held)
}

// writeDomainError maps the service error taxonomy onto HTTP statuses. A
// partial conflict carries the losing unit ids so the client can retry with a
// different selection.
func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	var partial *apperrors.PartialConflictError
	if errors.As(err, &partial) {
		h.Logger.Warn("API", fmt.Sprintf("%s: partial conflict on units %v", op, partial.UnitIDs))
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":                "one or more units are unavailable",
			"conflicting_unit_ids": partial.UnitIDs,
		})
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrUnitNotFound),
		errors.Is(err, apperrors.ErrEventNotFound),
		errors.Is(err, apperrors.ErrReservationNotFound),
		errors.Is(err, apperrors.ErrTicketNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyLocked),
		errors.Is(err, apperrors.ErrAlreadySold),
		errors.Is(err, apperrors.ErrLockNotHeld),
		errors.Is(err, apperrors.ErrAlreadyConfirmed),
		errors.Is(err, apperrors.ErrAlreadyUsed),
		errors.Is(err, apperrors.ErrTicketCancelled),
		errors.Is(err, apperrors.ErrPaymentPending):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrReservationExpired):
		return http.StatusGone
	case errors.Is(err, apperrors.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case apperrors.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
