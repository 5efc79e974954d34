package backfill

import (
	"context"
	"fmt"
	"log"
	"time"

	"rankscan/internal/eventbus"
	"rankscan/internal/models"

	"golang.org/x/time/rate"
)

// failureRateThreshold marks a run FAILED when more than this share of
// scoped tokens errored after a full pass.
const failureRateThreshold = 0.5

// RunResult summarizes one engine pass over a job's token scope.
type RunResult struct {
	Status           models.JobStatus
	TokensProcessed  int
	SnapshotsCreated int
	Errors           []string
	Duration         time.Duration
	// Err is set only when the run aborted on a store failure; per-token
	// quote errors land in Errors and never abort the run.
	Err error
}

// EngineConfig carries tunables threaded in from main; tests set
// CallDelay to zero.
type EngineConfig struct {
	// CallDelay is the unconditional pause between quote source calls,
	// the only rate-limiting mechanism against the provider.
	CallDelay time.Duration
}

// Engine replays historical quotes token by token for one job,
// persisting progress after every token so a run survives restarts.
// One Run is a single sequential task; the quote source is rate-limited
// per caller, so there is deliberately no intra-job parallelism.
type Engine struct {
	jobs      JobStore
	snapshots SnapshotStore
	tokens    TokenStore
	quotes    QuoteSource
	ranker    *Ranker
	limiter   *rate.Limiter
	bus       *eventbus.Bus
}

func NewEngine(jobs JobStore, snapshots SnapshotStore, tokens TokenStore, quotes QuoteSource, bus *eventbus.Bus, cfg EngineConfig) *Engine {
	limit := rate.Inf
	if cfg.CallDelay > 0 {
		limit = rate.Every(cfg.CallDelay)
	}
	return &Engine{
		jobs:      jobs,
		snapshots: snapshots,
		tokens:    tokens,
		quotes:    quotes,
		ranker:    NewRanker(snapshots),
		limiter:   rate.NewLimiter(limit, 1),
		bus:       bus,
	}
}

// Run executes one pass over the job's remaining token scope. It never
// panics or returns through the fire-and-forget path; all failures are
// captured in the result and in job state.
func (e *Engine) Run(ctx context.Context, jobID string) RunResult {
	started := time.Now()

	job, err := e.jobs.FindJobByID(ctx, jobID)
	if err != nil {
		return e.abort(jobID, RunResult{}, started, fmt.Errorf("load job: %w", err))
	}

	if err := e.jobs.MarkJobRunning(ctx, jobID); err != nil {
		return e.abort(jobID, RunResult{Status: job.Status}, started, fmt.Errorf("mark running: %w", err))
	}

	tokens, err := e.tokens.ListTokensByScope(ctx, job.TokenScope)
	if err != nil {
		return e.abort(jobID, RunResult{Status: models.JobRunning}, started, fmt.Errorf("load token scope: %w", err))
	}

	remaining := e.skipProcessed(job, tokens)

	processed := job.TokensProcessed
	errs := append([]string(nil), job.Errors...)
	created := 0

	log.Printf("[backfill] Job %s: %d token(s) remaining of %d in scope, window [%s, %s]",
		jobID, len(remaining), len(tokens),
		job.RangeStart.Format("2006-01-02"), job.RangeEnd.Format("2006-01-02"))

	for _, tok := range remaining {
		// Cooperative cancellation checkpoint: pause is observed here,
		// at token boundaries only, never mid-token.
		current, err := e.jobs.FindJobByID(ctx, jobID)
		if err != nil {
			return e.abort(jobID, RunResult{Status: models.JobRunning, TokensProcessed: processed, SnapshotsCreated: created, Errors: errs}, started, fmt.Errorf("re-read job status: %w", err))
		}
		if current.Status == models.JobPaused || ctx.Err() != nil {
			return e.pause(ctx, jobID, RunResult{TokensProcessed: processed, SnapshotsCreated: created, Errors: errs}, started)
		}

		quotes, err := e.quotes.GetHistoricalQuotes(ctx, tok.CmcID, job.RangeStart, job.RangeEnd)
		if err != nil {
			// A permanently failing token must not block resume: record
			// the error, advance the cursor anyway.
			errs = append(errs, fmt.Sprintf("token %s (cmc_id=%d): %v", tok.Symbol, tok.CmcID, err))
			log.Printf("[backfill] Job %s: token %s (cmc_id=%d) failed: %v", jobID, tok.Symbol, tok.CmcID, err)
		} else {
			for _, q := range quotes {
				wasCreated, err := e.snapshots.UpsertSnapshot(ctx, models.DailySnapshot{
					TokenID:           tok.ID,
					Date:              q.Timestamp,
					MarketCap:         q.MarketCap,
					PriceUSD:          q.PriceUSD,
					Volume24h:         q.Volume24h,
					CirculatingSupply: q.CirculatingSupply,
				})
				if err != nil {
					return e.abort(jobID, RunResult{Status: models.JobRunning, TokensProcessed: processed, SnapshotsCreated: created, Errors: errs}, started, fmt.Errorf("upsert snapshot: %w", err))
				}
				if wasCreated {
					created++
				}
			}
		}

		processed++
		if err := e.jobs.UpdateJobProgress(ctx, jobID, processed, tok.CmcID, errs); err != nil {
			return e.abort(jobID, RunResult{Status: models.JobRunning, TokensProcessed: processed, SnapshotsCreated: created, Errors: errs}, started, fmt.Errorf("persist progress: %w", err))
		}
		e.publishProgress(jobID, processed, len(tokens), tok.CmcID)

		// Throttle unconditionally, failure path included: a failed call
		// still consumed a rate-limited request.
		if err := e.limiter.Wait(ctx); err != nil {
			return e.pause(ctx, jobID, RunResult{TokensProcessed: processed, SnapshotsCreated: created, Errors: errs}, started)
		}
	}

	if _, err := e.ranker.ComputeRanks(ctx, job.RangeStart, job.RangeEnd); err != nil {
		return e.abort(jobID, RunResult{Status: models.JobRunning, TokensProcessed: processed, SnapshotsCreated: created, Errors: errs}, started, fmt.Errorf("rank pass: %w", err))
	}

	status := models.JobComplete
	if len(tokens) > 0 && float64(len(errs))/float64(len(tokens)) > failureRateThreshold {
		status = models.JobFailed
	}

	if err := e.jobs.FinalizeJob(ctx, jobID, status, processed, errs); err != nil {
		return e.abort(jobID, RunResult{Status: models.JobRunning, TokensProcessed: processed, SnapshotsCreated: created, Errors: errs}, started, fmt.Errorf("finalize job: %w", err))
	}

	result := RunResult{
		Status:           status,
		TokensProcessed:  processed,
		SnapshotsCreated: created,
		Errors:           errs,
		Duration:         time.Since(started),
	}
	e.publishFinished(jobID, result)
	log.Printf("[backfill] Job %s: %s — %d token(s) processed, %d snapshot(s) created, %d error(s) in %s",
		jobID, status, processed, created, len(errs), result.Duration.Truncate(time.Millisecond))
	return result
}

// skipProcessed drops every token up to and including the resume
// cursor. A cursor missing from the current scope (the token list or
// scope changed between runs) falls back to the start of the scope;
// upserts keep the replay idempotent.
func (e *Engine) skipProcessed(job *models.BackfillJob, tokens []models.Token) []models.Token {
	if job.LastProcessedCmcID == nil {
		return tokens
	}
	for i, tok := range tokens {
		if tok.CmcID == *job.LastProcessedCmcID {
			return tokens[i+1:]
		}
	}
	log.Printf("[backfill] Job %s: cursor cmc_id=%d not in current scope, restarting from scope start",
		job.ID, *job.LastProcessedCmcID)
	return tokens
}

// pause finishes a run at a token boundary after an external pause (or
// process shutdown) was observed, leaving the job resumable.
func (e *Engine) pause(ctx context.Context, jobID string, res RunResult, started time.Time) RunResult {
	// Persist PAUSED even when the loop stopped because ctx was
	// cancelled (shutdown), so a later resume-start can pick it up.
	if err := e.jobs.SetJobStatus(context.WithoutCancel(ctx), jobID, models.JobPaused, models.JobRunning, models.JobPaused); err != nil {
		log.Printf("[backfill] Job %s: failed to persist PAUSED: %v", jobID, err)
	}
	res.Status = models.JobPaused
	res.Duration = time.Since(started)
	log.Printf("[backfill] Job %s: paused after %d token(s)", jobID, res.TokensProcessed)
	return res
}

// abort handles fatal store failures: the run stops, the job keeps its
// last-persisted progress, and FAILED stays reserved for the failure
// threshold. The job is parked PAUSED so a resume-start can retry.
func (e *Engine) abort(jobID string, res RunResult, started time.Time, err error) RunResult {
	log.Printf("[backfill] Job %s: run aborted: %v", jobID, err)
	if err2 := e.jobs.SetJobStatus(context.Background(), jobID, models.JobPaused, models.JobRunning, models.JobQueued); err2 != nil {
		log.Printf("[backfill] Job %s: failed to park job after abort: %v", jobID, err2)
	}
	res.Err = err
	res.Duration = time.Since(started)
	return res
}

func (e *Engine) publishProgress(jobID string, processed, scope int, cmcID int64) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type:      eventbus.TypeJobProgress,
		JobID:     jobID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"tokens_processed":      processed,
			"tokens_in_scope":       scope,
			"last_processed_cmc_id": cmcID,
		},
	})
}

func (e *Engine) publishFinished(jobID string, res RunResult) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type:      eventbus.TypeJobFinished,
		JobID:     jobID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"status":            string(res.Status),
			"tokens_processed":  res.TokensProcessed,
			"snapshots_created": res.SnapshotsCreated,
			"error_count":       len(res.Errors),
			"duration_ms":       res.Duration.Milliseconds(),
		},
	})
}
