package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-reservation/internal/api"
	"ms-reservation/internal/config"
	inventory_db "ms-reservation/internal/inventory/db"
	"ms-reservation/internal/lock"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/payment"
	"ms-reservation/internal/reservation"
	reservation_db "ms-reservation/internal/reservation/db"
	"ms-reservation/internal/tickets"
	ticket_db "ms-reservation/internal/tickets/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type testServer struct {
	router    http.Handler
	inventory *inventory_db.DB
	manager   *lock.Manager
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Event)(nil),
		(*models.InventoryUnit)(nil),
		(*models.Reservation)(nil),
		(*models.Ticket)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := config.ReservationConfig{
		DefaultTTL:    5 * time.Minute,
		MinTTL:        50 * time.Millisecond,
		MaxTTL:        10 * time.Minute,
		SweepInterval: 10 * time.Millisecond,
		MaxUnits:      10,
	}

	log := logger.NewLogger()
	inventoryDB := &inventory_db.DB{Bun: bunDB}
	manager := lock.NewManager(client, inventoryDB, log, cfg)
	ticketService := tickets.NewService(&ticket_db.DB{Bun: bunDB}, log, "test-signing-key")

	reservationService := reservation.NewService(
		&reservation_db.DB{Bun: bunDB},
		manager,
		inventoryDB,
		ticketService,
		payment.NewMockGate(),
		nil,
		log,
		cfg,
	)

	handler := api.NewHandler(reservationService, ticketService, inventoryDB, log)
	return &testServer{
		router:    api.NewRouter(handler),
		inventory: inventoryDB,
		manager:   manager,
	}
}

func (s *testServer) seedUnits(t *testing.T, count int) []string {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.inventory.CreateEvent(ctx, models.Event{
		EventID:   "event-1",
		Title:     "Test Event",
		Venue:     "Test Venue",
		StartsAt:  time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}))

	unitIDs := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		unitID := fmt.Sprintf("unit-%d", i)
		require.NoError(t, s.inventory.CreateUnit(ctx, models.InventoryUnit{
			UnitID:     unitID,
			EventID:    "event-1",
			SeatID:     fmt.Sprintf("seat-%d", i),
			SeatLabel:  fmt.Sprintf("A%d", i),
			PriceCents: 25000,
			Status:     models.UnitAvailable,
		}))
		unitIDs = append(unitIDs, unitID)
	}
	return unitIDs
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) reserve(t *testing.T, holderID string, unitIDs []string) models.Reservation {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/reservations", models.ReservationRequest{
		HolderID: holderID,
		UnitIDs:  unitIDs,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res models.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func (s *testServer) confirm(t *testing.T, reservationID, paymentRef string) []models.Ticket {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/reservations/"+reservationID+"/confirm", models.ConfirmRequest{
		PaymentReference: paymentRef,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Tickets []models.Ticket `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Tickets
}

func TestHealth(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListEventsAndSeats(t *testing.T) {
	s := setupServer(t)
	s.seedUnits(t, 3)

	rec := s.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 1)

	rec = s.do(t, http.MethodGet, "/api/events/event-1/seats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var units []models.InventoryUnit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &units))
	assert.Len(t, units, 3)

	rec = s.do(t, http.MethodGet, "/api/events/ghost/seats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateReservationValidation(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/reservations", models.ReservationRequest{UnitIDs: []string{"unit-1"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reservations", models.ReservationRequest{HolderID: "holder-a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateReservationConflict(t *testing.T) {
	s := setupServer(t)
	s.seedUnits(t, 2)

	_, err := s.manager.Acquire(context.Background(), "unit-2", "holder-b", 5*time.Minute)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/reservations", models.ReservationRequest{
		HolderID: "holder-a",
		UnitIDs:  []string{"unit-1", "unit-2"},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		ConflictingUnitIDs []string `json:"conflicting_unit_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"unit-2"}, body.ConflictingUnitIDs)
}

func TestReservationLifecycle(t *testing.T) {
	s := setupServer(t)
	unitIDs := s.seedUnits(t, 2)

	res := s.reserve(t, "holder-a", unitIDs)
	assert.Equal(t, models.ReservationPending, res.State)

	rec := s.do(t, http.MethodGet, "/api/reservations/"+res.ReservationID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	issued := s.confirm(t, res.ReservationID, "pi_test_123")
	require.Len(t, issued, 2)

	rec = s.do(t, http.MethodGet, "/api/holders/holder-a/tickets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var held []models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &held))
	assert.Len(t, held, 2)
}

func TestConfirmStatuses(t *testing.T) {
	s := setupServer(t)
	s.seedUnits(t, 3)

	rec := s.do(t, http.MethodPost, "/api/reservations/missing/confirm", models.ConfirmRequest{PaymentReference: "pi_x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	res := s.reserve(t, "holder-a", []string{"unit-1"})
	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ReservationID+"/confirm", models.ConfirmRequest{PaymentReference: "fail_card"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	// Payment failure cancelled it; a retry lands on a dead reservation.
	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ReservationID+"/confirm", models.ConfirmRequest{PaymentReference: "pi_x"})
	assert.Equal(t, http.StatusGone, rec.Code)

	res = s.reserve(t, "holder-a", []string{"unit-2"})
	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ReservationID+"/confirm", models.ConfirmRequest{PaymentReference: "pending_transfer"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ReservationID+"/confirm", models.ConfirmRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelStatuses(t *testing.T) {
	s := setupServer(t)
	s.seedUnits(t, 2)

	rec := s.do(t, http.MethodPost, "/api/reservations/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	res := s.reserve(t, "holder-a", []string{"unit-1"})
	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ReservationID+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Idempotent.
	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ReservationID+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	res = s.reserve(t, "holder-a", []string{"unit-2"})
	s.confirm(t, res.ReservationID, "pi_test_123")
	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ReservationID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTicketEndpoints(t *testing.T) {
	s := setupServer(t)
	s.seedUnits(t, 1)

	res := s.reserve(t, "holder-a", []string{"unit-1"})
	issued := s.confirm(t, res.ReservationID, "pi_test_123")
	require.Len(t, issued, 1)
	ticketID := issued[0].TicketID

	rec := s.do(t, http.MethodGet, "/api/tickets/"+ticketID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/tickets/"+ticketID+"/qr", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = s.do(t, http.MethodPost, "/api/tickets/"+ticketID+"/redeem", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A second scan is rejected.
	rec = s.do(t, http.MethodPost, "/api/tickets/"+ticketID+"/redeem", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/tickets/missing/redeem", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/tickets/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoidTicketEndpoint(t *testing.T) {
	s := setupServer(t)
	s.seedUnits(t, 1)

	res := s.reserve(t, "holder-a", []string{"unit-1"})
	issued := s.confirm(t, res.ReservationID, "pi_test_123")
	ticketID := issued[0].TicketID

	rec := s.do(t, http.MethodPost, "/api/tickets/"+ticketID+"/void", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// A voided ticket cannot be redeemed.
	rec = s.do(t, http.MethodPost, "/api/tickets/"+ticketID+"/redeem", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListReservationsByHolder(t *testing.T) {
	s := setupServer(t)
	s.seedUnits(t, 2)

	s.reserve(t, "holder-a", []string{"unit-1"})
	s.reserve(t, "holder-b", []string{"unit-2"})

	rec := s.do(t, http.MethodGet, "/api/holders/holder-a/reservations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var mine []models.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)
}
