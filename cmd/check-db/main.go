// Package main is a diagnostic tool for database connectivity. It connects with the
// server's configuration and prints the schema version and a summary of profiles and
// API keys. It exits non-zero on any failure, so it can gate a deployment step.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/db"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/db/repositories"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 0)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("=== SCHEMA ===\nversion: %d (dirty: %v)\n", version, dirty)

	profiles := repositories.NewProfileRepository(database)
	fmt.Println("\n=== PROFILES ===")
	for _, status := range []models.Status{models.StatusActive, models.StatusInactive, models.StatusBanned} {
		n, err := profiles.CountByStatus(ctx, status)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		fmt.Printf("%-8s %d\n", status, n)
	}

	keys, err := repositories.NewAPIKeyRepository(database).List(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Println("\n=== API KEYS ===")
	if len(keys) == 0 {
		fmt.Println("No API keys found")
	}
	now := time.Now()
	for _, k := range keys {
		state := string(k.Status)
		if k.Status == models.KeyStatusActive && k.IsExpired(now) {
			state = "expired"
		}
		fmt.Printf("%s... %-11s %-8s %d/%d  created by %s\n",
			k.KeyPrefix, k.Scope, state, k.CurrentUsage, k.UsageLimit, k.CreatedBy)
	}
}
