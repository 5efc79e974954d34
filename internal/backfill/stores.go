package backfill

import (
	"context"
	"time"

	"rankscan/internal/market"
	"rankscan/internal/models"
)

// JobStore persists backfill job records. The job row doubles as the
// cancellation channel: the engine re-reads its status at every token
// boundary, so a pause written here survives process restarts.
type JobStore interface {
	CreateJob(ctx context.Context, rangeStart, rangeEnd time.Time, tokenScope int) (*models.BackfillJob, error)
	FindJobByID(ctx context.Context, id string) (*models.BackfillJob, error)
	// FindJobByWindow returns (nil, nil) when no job exists for the window.
	FindJobByWindow(ctx context.Context, rangeStart, rangeEnd time.Time, tokenScope int) (*models.BackfillJob, error)
	ListJobs(ctx context.Context, limit int) ([]models.BackfillJob, error)
	SetJobStatus(ctx context.Context, id string, to models.JobStatus, from ...models.JobStatus) error
	MarkJobRunning(ctx context.Context, id string) error
	UpdateJobProgress(ctx context.Context, id string, tokensProcessed int, lastCmcID int64, errs []string) error
	FinalizeJob(ctx context.Context, id string, status models.JobStatus, tokensProcessed int, errs []string) error
}

// SnapshotStore persists daily market snapshots and rank assignments.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, s models.DailySnapshot) (created bool, err error)
	FindSnapshotsForDate(ctx context.Context, date time.Time) ([]models.DailySnapshot, error)
	FindDistinctDatesInRange(ctx context.Context, start, end time.Time) ([]time.Time, error)
	BatchUpdateRanks(ctx context.Context, date time.Time, ranks map[int64]int) error
}

// TokenStore reads the token catalog. Scope ordering is cmc_id ASC.
type TokenStore interface {
	ListTokensByScope(ctx context.Context, scope int) ([]models.Token, error)
}

// QuoteSource fetches historical daily quotes for one token.
// Implemented by market.Client; calls are rate-limited and fallible.
type QuoteSource interface {
	GetHistoricalQuotes(ctx context.Context, cmcID int64, start, end time.Time) ([]market.Quote, error)
}
