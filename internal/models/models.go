package models

import (
	"time"
)

// JobStatus is the lifecycle state of a backfill job.
// QUEUED -> RUNNING -> {PAUSED, COMPLETE, FAILED}
// PAUSED/FAILED -> QUEUED (resume-start only). COMPLETE is terminal.
type JobStatus string

const (
	JobQueued   JobStatus = "QUEUED"
	JobRunning  JobStatus = "RUNNING"
	JobPaused   JobStatus = "PAUSED"
	JobComplete JobStatus = "COMPLETE"
	JobFailed   JobStatus = "FAILED"
)

// Token represents the 'tokens' table. Tokens are ordered by CmcID
// ascending everywhere; that ordering is the backfill resume contract.
type Token struct {
	ID        int64     `json:"id"`
	CmcID     int64     `json:"cmc_id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// DailySnapshot represents the 'daily_snapshots' table, one row per
// (token, calendar day). Rank 0 is a placeholder until the rank pass
// has processed that day.
type DailySnapshot struct {
	ID                int64     `json:"id"`
	TokenID           int64     `json:"token_id"`
	CmcID             int64     `json:"cmc_id,omitempty"`
	Symbol            string    `json:"symbol,omitempty"`
	Date              time.Time `json:"date"`
	Rank              int       `json:"rank"`
	MarketCap         float64   `json:"market_cap"`
	PriceUSD          float64   `json:"price_usd"`
	Volume24h         float64   `json:"volume_24h"`
	CirculatingSupply float64   `json:"circulating_supply"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// BackfillJob represents the 'backfill_jobs' table. The window triple
// (RangeStart, RangeEnd, TokenScope) is unique; re-requesting the same
// window returns the existing job.
type BackfillJob struct {
	ID                 string     `json:"id"`
	RangeStart         time.Time  `json:"range_start"`
	RangeEnd           time.Time  `json:"range_end"`
	TokenScope         int        `json:"token_scope"`
	Status             JobStatus  `json:"status"`
	TokensProcessed    int        `json:"tokens_processed"`
	LastProcessedCmcID *int64     `json:"last_processed_cmc_id,omitempty"`
	Errors             []string   `json:"errors,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at,omitempty"`
}

// Day truncates t to its UTC calendar day. Snapshot dates and job
// window bounds are always stored at day granularity.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
