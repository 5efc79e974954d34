package backfill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rankscan/internal/market"
	"rankscan/internal/models"
	"rankscan/internal/repository"
)

// In-memory store implementations mirroring the repository semantics,
// so engine and controller behavior is testable without Postgres.

type stubJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.BackfillJob
	seq  int
}

func newStubJobStore() *stubJobStore {
	return &stubJobStore{jobs: make(map[string]*models.BackfillJob)}
}

func copyJob(j *models.BackfillJob) *models.BackfillJob {
	cp := *j
	cp.Errors = append([]string(nil), j.Errors...)
	if j.LastProcessedCmcID != nil {
		v := *j.LastProcessedCmcID
		cp.LastProcessedCmcID = &v
	}
	return &cp
}

func (s *stubJobStore) CreateJob(ctx context.Context, rangeStart, rangeEnd time.Time, tokenScope int) (*models.BackfillJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.RangeStart.Equal(rangeStart) && j.RangeEnd.Equal(rangeEnd) && j.TokenScope == tokenScope {
			return nil, fmt.Errorf("duplicate window")
		}
	}
	s.seq++
	j := &models.BackfillJob{
		ID:         fmt.Sprintf("job-%d", s.seq),
		RangeStart: models.Day(rangeStart),
		RangeEnd:   models.Day(rangeEnd),
		TokenScope: tokenScope,
		Status:     models.JobQueued,
		CreatedAt:  time.Now(),
	}
	s.jobs[j.ID] = j
	return copyJob(j), nil
}

func (s *stubJobStore) FindJobByID(ctx context.Context, id string) (*models.BackfillJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return copyJob(j), nil
}

func (s *stubJobStore) FindJobByWindow(ctx context.Context, rangeStart, rangeEnd time.Time, tokenScope int) (*models.BackfillJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.RangeStart.Equal(models.Day(rangeStart)) && j.RangeEnd.Equal(models.Day(rangeEnd)) && j.TokenScope == tokenScope {
			return copyJob(j), nil
		}
	}
	return nil, nil
}

func (s *stubJobStore) ListJobs(ctx context.Context, limit int) ([]models.BackfillJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BackfillJob
	for _, j := range s.jobs {
		out = append(out, *copyJob(j))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubJobStore) SetJobStatus(ctx context.Context, id string, to models.JobStatus, from ...models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	for _, f := range from {
		if j.Status == f {
			j.Status = to
			return nil
		}
	}
	return repository.ErrJobNotFound
}

func (s *stubJobStore) MarkJobRunning(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != models.JobQueued {
		return repository.ErrJobNotFound
	}
	j.Status = models.JobRunning
	if j.StartedAt == nil {
		now := time.Now()
		j.StartedAt = &now
	}
	return nil
}

func (s *stubJobStore) UpdateJobProgress(ctx context.Context, id string, tokensProcessed int, lastCmcID int64, errs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	j.TokensProcessed = tokensProcessed
	j.LastProcessedCmcID = &lastCmcID
	j.Errors = append([]string(nil), errs...)
	return nil
}

func (s *stubJobStore) FinalizeJob(ctx context.Context, id string, status models.JobStatus, tokensProcessed int, errs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	j.Status = status
	j.TokensProcessed = tokensProcessed
	j.Errors = append([]string(nil), errs...)
	now := time.Now()
	j.CompletedAt = &now
	return nil
}

func (s *stubJobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// seed inserts a job directly, bypassing CreateJob.
func (s *stubJobStore) seed(j *models.BackfillJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = copyJob(j)
}

type snapKey struct {
	tokenID int64
	date    string
}

type stubSnapshotStore struct {
	mu         sync.Mutex
	snaps      map[snapKey]*models.DailySnapshot
	failUpsert error
}

func newStubSnapshotStore() *stubSnapshotStore {
	return &stubSnapshotStore{snaps: make(map[snapKey]*models.DailySnapshot)}
}

func (s *stubSnapshotStore) UpsertSnapshot(ctx context.Context, snap models.DailySnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return false, s.failUpsert
	}
	day := models.Day(snap.Date)
	key := snapKey{snap.TokenID, day.Format("2006-01-02")}
	if existing, ok := s.snaps[key]; ok {
		// Only market fields; rank is owned by the rank pass.
		existing.MarketCap = snap.MarketCap
		existing.PriceUSD = snap.PriceUSD
		existing.Volume24h = snap.Volume24h
		existing.CirculatingSupply = snap.CirculatingSupply
		return false, nil
	}
	cp := snap
	cp.Date = day
	cp.Rank = 0
	s.snaps[key] = &cp
	return true, nil
}

func (s *stubSnapshotStore) FindSnapshotsForDate(ctx context.Context, date time.Time) ([]models.DailySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := models.Day(date).Format("2006-01-02")
	var out []models.DailySnapshot
	for k, snap := range s.snaps {
		if k.date == day {
			out = append(out, *snap)
		}
	}
	return out, nil
}

func (s *stubSnapshotStore) FindDistinctDatesInRange(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []time.Time
	for k := range s.snaps {
		d, _ := time.Parse("2006-01-02", k.date)
		if d.Before(models.Day(start)) || d.After(models.Day(end)) || seen[k.date] {
			continue
		}
		seen[k.date] = true
		out = append(out, d)
	}
	return out, nil
}

func (s *stubSnapshotStore) BatchUpdateRanks(ctx context.Context, date time.Time, ranks map[int64]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := models.Day(date).Format("2006-01-02")
	for tokenID, rank := range ranks {
		if snap, ok := s.snaps[snapKey{tokenID, day}]; ok {
			snap.Rank = rank
		}
	}
	return nil
}

func (s *stubSnapshotStore) get(tokenID int64, date time.Time) *models.DailySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[snapKey{tokenID, models.Day(date).Format("2006-01-02")}]
	if !ok {
		return nil
	}
	cp := *snap
	return &cp
}

type stubTokenStore struct {
	tokens []models.Token
}

func (s *stubTokenStore) ListTokensByScope(ctx context.Context, scope int) ([]models.Token, error) {
	if scope > len(s.tokens) {
		scope = len(s.tokens)
	}
	return append([]models.Token(nil), s.tokens[:scope]...), nil
}

type stubQuoteSource struct {
	mu    sync.Mutex
	calls []int64
	fetch func(cmcID int64, start, end time.Time) ([]market.Quote, error)
}

func (s *stubQuoteSource) GetHistoricalQuotes(ctx context.Context, cmcID int64, start, end time.Time) ([]market.Quote, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cmcID)
	s.mu.Unlock()
	if s.fetch != nil {
		return s.fetch(cmcID, start, end)
	}
	return nil, nil
}

func (s *stubQuoteSource) calledIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.calls...)
}

// dailyQuotes builds one quote per day of [start, end].
func dailyQuotes(start, end time.Time, marketCap float64) []market.Quote {
	var out []market.Quote
	for d := models.Day(start); !d.After(models.Day(end)); d = d.AddDate(0, 0, 1) {
		out = append(out, market.Quote{
			Timestamp:         d,
			PriceUSD:          marketCap / 1e9,
			Volume24h:         marketCap / 100,
			MarketCap:         marketCap,
			CirculatingSupply: 1e9,
		})
	}
	return out
}

func scopeTokens(n int) []models.Token {
	tokens := make([]models.Token, n)
	for i := range tokens {
		tokens[i] = models.Token{
			ID:     int64(i + 1),
			CmcID:  int64(i + 1),
			Symbol: fmt.Sprintf("TOK%d", i+1),
		}
	}
	return tokens
}
