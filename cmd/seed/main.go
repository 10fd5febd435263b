package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openhaus/realty-api/internal/db"
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

	if err := seedUsers(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if err := seedListings(context.Background(), pool, 200); err != nil {
		log.Fatalf("seed listings: %v", err)
	}

	log.Println("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d users", count)

	roles := []string{"user", "user", "user", "user", "agent", "admin"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		first := gofakeit.FirstName()
		last := gofakeit.LastName()
		email := gofakeit.Email()
		phone := gofakeit.Phone()
		role := roles[gofakeit.Number(0, len(roles)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO users (first_name, last_name, email, phone, role, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
		`, first, last, email, phone, role)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedListings(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d listings", count)

	kinds := []string{"Apartment", "House", "Townhouse", "Condo", "Loft", "Studio"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		kind := kinds[gofakeit.Number(0, len(kinds)-1)]
		title := fmt.Sprintf("%s %s on %s", gofakeit.AdjectiveDescriptive(), kind, gofakeit.Street())
		address := fmt.Sprintf("%s, %s, %s %s",
			gofakeit.Street(), gofakeit.City(), gofakeit.StateAbr(), gofakeit.Zip())
		price := int64(gofakeit.Number(95_000, 2_500_000))

		_, err := tx.Exec(ctx, `
			INSERT INTO listings (title, address, price, created_at)
			VALUES ($1, $2, $3, now())
		`, title, address, price)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
