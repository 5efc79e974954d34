package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"rankscan/internal/backfill"
	"rankscan/internal/market"
	"rankscan/internal/repository"
)

// Runs one backfill window synchronously, without the API server.
// The window is idempotent: re-running resumes from the job's cursor.
func main() {
	var (
		start   string
		end     string
		scope   int
		delayMs int
	)

	flag.StringVar(&start, "start", "", "window start date (YYYY-MM-DD, inclusive)")
	flag.StringVar(&end, "end", "", "window end date (YYYY-MM-DD, inclusive)")
	flag.IntVar(&scope, "scope", 200, "number of tokens to include, ordered by cmc_id")
	flag.IntVar(&delayMs, "delay-ms", 2100, "delay between quote source calls")
	flag.Parse()

	rangeStart, err := time.Parse("2006-01-02", start)
	if err != nil {
		log.Fatalf("invalid -start %q: %v", start, err)
	}
	rangeEnd, err := time.Parse("2006-01-02", end)
	if err != nil {
		log.Fatalf("invalid -end %q: %v", end, err)
	}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quotes := market.NewClient(baseURL, apiKey)
	engine := backfill.NewEngine(repo, repo, repo, quotes, nil, backfill.EngineConfig{
		CallDelay: time.Duration(delayMs) * time.Millisecond,
	})
	controller := backfill.NewController(ctx, repo, engine)

	result, err := controller.Start(ctx, rangeStart, rangeEnd, scope)
	if err != nil {
		log.Fatalf("[backfill_snapshots] start failed: %v", err)
	}
	log.Printf("[backfill_snapshots] job %s: %s", result.Job.ID, result.Outcome)

	if result.Outcome == backfill.OutcomeNoop {
		log.Printf("[backfill_snapshots] nothing to do: %s", result.Message)
		return
	}

	// Block until the launched run returns; this tool is synchronous.
	controller.Wait()

	job, err := controller.Status(ctx, result.Job.ID)
	if err != nil {
		log.Fatalf("[backfill_snapshots] read final status: %v", err)
	}
	log.Printf("[backfill_snapshots] job %s finished: status=%s tokens_processed=%d errors=%d",
		job.ID, job.Status, job.TokensProcessed, len(job.Errors))
}
