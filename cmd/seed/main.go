package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetdesk/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedResources(context.Background(), pool); err != nil {
		log.Fatalf("seed resources: %v", err)
	}
	if err := seedClientsAndPatients(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed clients and patients: %v", err)
	}

	log.Println("seed complete")
}

func seedResources(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	insert := func(kind, name string) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO resources (id, kind, name, retired, created_at, updated_at)
			VALUES ($1, $2, $3, false, now(), now())
		`, uuid.New(), kind, name)
		return err
	}

	practitioners := 12
	log.Printf("seeding %d practitioners", practitioners)
	for i := 0; i < practitioners; i++ {
		if err := insert("practitioner", "Dr. "+gofakeit.LastName()); err != nil {
			return err
		}
	}

	rooms := []string{"Exam Room 1", "Exam Room 2", "Exam Room 3", "Surgery Suite", "Dental Suite", "Grooming Station"}
	for _, name := range rooms {
		if err := insert("room", name); err != nil {
			return err
		}
	}

	equipment := []string{"X-Ray", "Ultrasound", "Anesthesia Machine"}
	for _, name := range equipment {
		if err := insert("equipment", name); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("resources seeded")
	return nil
}

func seedClientsAndPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d clients with patients", count)

	species := []string{"dog", "cat", "rabbit", "ferret", "parrot", "guinea pig", "turtle"}

	const batchSize = 100

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			clientID := uuid.New()
			email := gofakeit.Email()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO clients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, clientID, gofakeit.Name(), email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			// One or two pets per client.
			pets := 1 + gofakeit.Number(0, 1)
			for p := 0; p < pets; p++ {
				_, err := tx.Exec(ctx, `
					INSERT INTO patients (id, client_id, name, species, deceased, created_at, updated_at)
					VALUES ($1, $2, $3, $4, false, now(), now())
				`, uuid.New(), clientID, gofakeit.PetName(), species[gofakeit.Number(0, len(species)-1)])
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("clients seeded: %d/%d", end, count)
	}

	log.Println("clients and patients seeded")
	return nil
}
