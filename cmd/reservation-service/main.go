package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-reservation/internal/api"
	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database/migrations"
	inventory_db "ms-reservation/internal/inventory/db"
	"ms-reservation/internal/kafka"
	"ms-reservation/internal/lock"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
	"ms-reservation/internal/payment"
	"ms-reservation/internal/reservation"
	reservation_db "ms-reservation/internal/reservation/db"
	"ms-reservation/internal/tickets"
	ticket_db "ms-reservation/internal/tickets/db"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))

	return bunDB, redisClient
}

func paymentGate(cfg *config.Config, log *logger.Logger) payment.Gate {
	if cfg.Payment.MockMode {
		log.Info("PAYMENT", "Payment gate running in mock mode")
		return payment.NewMockGate()
	}
	gate, err := payment.NewStripeGate(cfg.Payment.StripeSecretKey, log)
	if err != nil {
		log.Fatal("PAYMENT", fmt.Sprintf("Failed to initialize Stripe gate: %v", err))
	}
	return gate
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Reservation Engine initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, log, migrations.Options{
		MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		SeedData:      getEnv("SEED_DATA", "false") == "true",
	})
	if err := runner.Run(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}
	defer runner.Close()

	producer := kafka.NewProducer(cfg.Kafka, log)
	defer producer.Close()

	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		requiredTopics := []string{
			cfg.Kafka.Topics.ReservationCreated,
			cfg.Kafka.Topics.ReservationConfirmed,
			cfg.Kafka.Topics.ReservationCancelled,
			cfg.Kafka.Topics.SeatReleased,
			cfg.Kafka.Topics.TicketIssued,
			cfg.Kafka.Topics.PaymentOutcomes,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	}

	inventoryDB := &inventory_db.DB{Bun: bunDB}
	reservationDB := &reservation_db.DB{Bun: bunDB}
	ticketDB := &ticket_db.DB{Bun: bunDB}

	lockManager := lock.NewManager(redisClient, inventoryDB, log, cfg.Reservation)
	ticketService := tickets.NewService(ticketDB, log, cfg.Tickets.SigningKey)
	gate := paymentGate(cfg, log)

	reservationService := reservation.NewService(
		reservationDB,
		lockManager,
		inventoryDB,
		ticketService,
		gate,
		producer,
		log,
		cfg.Reservation,
	)

	sweeper := lock.NewSweeper(inventoryDB, reservationDB, producer, log, cfg.Reservation.SweepInterval)
	sweeper.Start(ctx)

	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		consumer := kafka.NewPaymentOutcomeConsumer(cfg.Kafka, log)
		defer consumer.Close()
		go consumer.Start(ctx, func(ctx context.Context, event models.PaymentOutcomeEvent) {
			switch event.Outcome {
			case models.PaymentSuccess:
				if _, err := reservationService.Confirm(ctx, event.ReservationID, event.PaymentReference); err != nil && !errors.Is(err, apperrors.ErrAlreadyConfirmed) {
					log.Error("KAFKA", fmt.Sprintf("Confirm from payment outcome failed for %s: %v", event.ReservationID, err))
				}
			case models.PaymentFailed:
				if err := reservationService.Cancel(ctx, event.ReservationID); err != nil {
					log.Error("KAFKA", fmt.Sprintf("Cancel from payment outcome failed for %s: %v", event.ReservationID, err))
				}
			default:
				log.Info("KAFKA", fmt.Sprintf("Ignoring pending payment outcome for %s", event.ReservationID))
			}
		})
	}

	handler := api.NewHandler(reservationService, ticketService, inventoryDB, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Reservation Engine running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Reservation Engine shutdown complete")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
