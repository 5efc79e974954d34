package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"rankscan/internal/backfill"
	"rankscan/internal/repository"
)

// Re-runs the rank computation pass over a date window, e.g. after a
// manual snapshot repair.
func main() {
	var (
		start string
		end   string
	)

	flag.StringVar(&start, "start", "", "window start date (YYYY-MM-DD, inclusive)")
	flag.StringVar(&end, "end", "", "window end date (YYYY-MM-DD, inclusive)")
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

	repo, err := repository.NewRepository(databaseURL)
	if err != nil {
		log.Fatalf("failed to connect repository: %v", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := time.Now()
	ranker := backfill.NewRanker(repo)

	ranked, err := ranker.ComputeRanks(ctx, rangeStart, rangeEnd)
	if err != nil {
		log.Fatalf("[recompute_ranks] failed after %d date(s): %v", ranked, err)
	}

	log.Printf("[recompute_ranks] done: %d date(s) ranked in %s", ranked, time.Since(started).Truncate(time.Millisecond))
}
