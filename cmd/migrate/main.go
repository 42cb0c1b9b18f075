package main

import (
	"context"
	"log"
	"time"

	"github.com/clinicdesk/scheduler/internal/config"
	"github.com/clinicdesk/scheduler/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("migrate starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.StoreDriver != "postgres" {
		log.Fatal("migrate requires STORE_DRIVER=postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.PostgresDSN, db.PoolSettings{})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	version, err := db.MigrationVersion(ctx, pool)
	if err != nil {
		log.Fatalf("read migration version: %v", err)
	}

	log.Printf("migrations applied, schema at version %d", version)
}
