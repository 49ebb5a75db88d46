package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// NewRouter wires the full HTTP surface. Reads are public; every mutation goes
// through the reservation or ticket service, never straight to the store.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(h.requestLogger)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Get("/{eventID}/seats", h.ListEventSeats)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Get("/{reservationID}", h.GetReservation)
			r.Post("/{reservationID}/confirm", h.ConfirmReservation)
			r.Post("/{reservationID}/cancel", h.CancelReservation)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/{ticketID}", h.ViewTicket)
			r.Get("/{ticketID}/qr", h.TicketQR)
			r.Post("/{ticketID}/redeem", h.RedeemTicket)
			r.Post("/{ticketID}/void", h.VoidTicket)
		})

		r.Route("/holders/{holderID}", func(r chi.Router) {
			r.Get("/reservations", h.ListReservationsByHolder)
			r.Get("/tickets", h.ListTicketsByHolder)
		})
	})

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", rec.status), time.Since(start).String())
	})
}
