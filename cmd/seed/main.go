package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	"ms-reservation/internal/config"
	"ms-reservation/internal/models"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// Local bootstrap tool: drops, recreates, and seeds the schema straight from
// the bun models. Deployments use the SQL migrations instead; this exists so a
// dev database can be rebuilt without the migrate history.
func main() {
	reset := flag.Bool("reset", false, "drop tables before creating them")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open PostgreSQL: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	if *reset {
		log.Println("Dropping tables...")
		dropTables(ctx, db)
	}

	log.Println("Creating tables...")
	createTables(ctx, db)

	log.Println("Seeding sample data...")
	seedData(ctx, db)

	log.Println("Done.")
}

func dropTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{(*models.Ticket)(nil), (*models.Reservation)(nil), (*models.InventoryUnit)(nil), (*models.Event)(nil)}
	for _, m := range tables {
		_, _ = db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx)
	}
}

func createTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{(*models.Event)(nil), (*models.InventoryUnit)(nil), (*models.Reservation)(nil), (*models.Ticket)(nil)}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("Failed to create table for %T: %v", m, err)
		}
	}
}

func seedData(ctx context.Context, db *bun.DB) {
	events := []models.Event{
		{
			EventID:     "event-001",
			Title:       "Harbour Lights Festival",
			Description: "Open-air summer concert series.",
			Venue:       "Harbourfront Arena",
			City:        "Cape Town",
			StartsAt:    time.Now().AddDate(0, 1, 0),
			CreatedAt:   time.Now(),
		},
		{
			EventID:     "event-002",
			Title:       "Jazz at the Baxter",
			Description: "An evening of South African jazz.",
			Venue:       "Baxter Theatre",
			City:        "Cape Town",
			StartsAt:    time.Now().AddDate(0, 1, 15),
			CreatedAt:   time.Now(),
		},
	}
	if _, err := db.NewInsert().Model(&events).On("CONFLICT (event_id) DO NOTHING").Exec(ctx); err != nil {
		log.Fatalf("Failed to seed events: %v", err)
	}

	units := []models.InventoryUnit{
		{UnitID: "unit-001", EventID: "event-001", SeatID: "seat-A1", SeatLabel: "A1", PriceCents: 25000, Status: models.UnitAvailable},
		{UnitID: "unit-002", EventID: "event-001", SeatID: "seat-A2", SeatLabel: "A2", PriceCents: 25000, Status: models.UnitAvailable},
		{UnitID: "unit-003", EventID: "event-001", SeatID: "seat-A3", SeatLabel: "A3", PriceCents: 25000, Status: models.UnitAvailable},
		{UnitID: "unit-004", EventID: "event-001", SeatID: "seat-B1", SeatLabel: "B1", PriceCents: 18000, Status: models.UnitAvailable},
		{UnitID: "unit-005", EventID: "event-001", SeatID: "seat-B2", SeatLabel: "B2", PriceCents: 18000, Status: models.UnitAvailable},
		{UnitID: "unit-006", EventID: "event-002", SeatID: "seat-A1", SeatLabel: "A1", PriceCents: 32050, Status: models.UnitAvailable},
		{UnitID: "unit-007", EventID: "event-002", SeatID: "seat-A2", SeatLabel: "A2", PriceCents: 32050, Status: models.UnitAvailable},
		{UnitID: "unit-008", EventID: "event-002", SeatID: "seat-B1", SeatLabel: "B1", PriceCents: 21500, Status: models.UnitAvailable},
	}
	if _, err := db.NewInsert().Model(&units).On("CONFLICT (unit_id) DO NOTHING").Exec(ctx); err != nil {
		log.Fatalf("Failed to seed inventory units: %v", err)
	}
}
