// Package main issues a gateway API key from the command line. With -insert it stores
// the key through the same issuer the admin console uses; without it, it only prints
// the key, its hash and an INSERT statement for seeding a local database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/xplorixa/portal/internal/auth"
	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/db"
	"github.com/xplorixa/portal/internal/db/repositories"
	"github.com/xplorixa/portal/internal/services"
)

func main() {
	scope := flag.String("scope", "READ_ONLY", "READ_ONLY or FULL_ACCESS")
	createdBy := flag.String("created-by", "", "issuing admin email (default: first configured admin)")
	insert := flag.Bool("insert", false, "store the key in the configured database")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sc, err := auth.ParseScope(*scope)
	if err != nil {
		log.Fatal(err)
	}
	creator := *createdBy
	if creator == "" && len(cfg.Auth.AdminEmails) > 0 {
		creator = cfg.Auth.AdminEmails[0]
	}

	sep := "=========================================================="

	if *insert {
		database, err := db.Connect(cfg.Database.GetDSN(), 1, 0)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		issuer := services.NewAPIKeyIssuer(repositories.NewAPIKeyRepository(database),
			cfg.Auth.APIKeyPrefix, cfg.APIKeys.UsageLimit, cfg.APIKeys.TTL)
		key, raw, err := issuer.Issue(context.Background(), sc, creator)
		if err != nil {
			log.Fatalf("Failed to issue key: %v", err)
		}
		fmt.Println(sep)
		fmt.Printf("Issued %s key %s (expires %s, limit %d)\n",
			key.Scope, key.ID, key.ExpiresAt.Format(time.RFC3339), key.UsageLimit)
		fmt.Printf("%s: %s\n", auth.APIKeyHeader, raw)
		fmt.Println(sep)
		return
	}

	raw, hash, displayPrefix, err := auth.GenerateAPIKey(cfg.Auth.APIKeyPrefix)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(sep)
	fmt.Println("API Key Generated")
	fmt.Println(sep)
	fmt.Printf("\nFull Key:       %s\n", raw)
	fmt.Printf("Display Prefix: %s\n", displayPrefix)
	fmt.Printf("Hash:           %s\n\n", hash)
	fmt.Println(sep)
	fmt.Println("SQL Insert:")
	fmt.Println(sep)
	fmt.Printf(`
INSERT INTO api_keys (id, key_hash, key_prefix, created_by, scope, usage_limit, expires_at)
VALUES ('%s', '%s', '%s', '%s', '%s', %d, '%s');
`, uuid.NewString(), hash, displayPrefix, creator, sc, cfg.APIKeys.UsageLimit,
		time.Now().Add(cfg.APIKeys.TTL).UTC().Format(time.RFC3339))
	fmt.Println()
	fmt.Println(sep)
}
