package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"rankscan/internal/market"
	"rankscan/internal/repository"
)

func main() {
	var limit int
	flag.IntVar(&limit, "limit", 500, "number of catalog entries to import, ordered by provider rank")
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = os.Getenv("DB_URL")
	}
	if databaseURL == "" {
		log.Fatal("DATABASE_URL or DB_URL is required")
	}

	baseURL := os.Getenv("QUOTE_API_BASE_URL")
	if baseURL == "" {
		baseURL = "https://pro-api.coinmarketcap.com"
	}
	apiKey := os.Getenv("QUOTE_API_KEY")
	if apiKey == "" {
		log.Fatal("QUOTE_API_KEY is required")
	}

	repo, err := repository.NewRepository(databaseURL)
	if err != nil {
		log.Fatalf("failed to connect repository: %v", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	started := time.Now()
	client := market.NewClient(baseURL, apiKey)

	entries, err := client.ListTokenMap(ctx, limit)
	if err != nil {
		log.Fatalf("[import_tokens] fetch token map failed: %v", err)
	}

	imported := 0
	for _, e := range entries {
		if err := repo.UpsertToken(ctx, e.CmcID, e.Symbol, e.Name); err != nil {
			log.Printf("[import_tokens] upsert cmc_id=%d failed: %v", e.CmcID, err)
			continue
		}
		imported++
	}

	log.Printf("[import_tokens] done: %d of %d entries imported in %s",
		imported, len(entries), time.Since(started).Truncate(time.Millisecond))
}
