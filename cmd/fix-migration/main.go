// Package main repairs a dirty migration state. golang-migrate marks a version dirty
// when a migration is interrupted; the server then refuses to start until the flag is
// cleared. This tool reports the current state and, when dirty, forces the recorded
// version so the next start can retry.
//
// Usage:
//
//	fix-migration            # clear the dirty flag, keeping the recorded version
//	fix-migration -version 2 # record version 2 instead
package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/db"
)

func main() {
	target := flag.Int("version", -2, "schema version to record (default: keep the current one)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 0)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	if !dirty && *target == -2 {
		log.Println("Migration state is already clean")
		return
	}

	force := int(version)
	if *target != -2 {
		force = *target
	}
	if err := db.ForceMigrationVersion(database, force); err != nil {
		log.Fatalf("Failed to fix migration state: %v", err)
	}
	log.Printf("Migration state set to version=%d, dirty=false", force)
}
