package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rankscan/internal/backfill"
	"rankscan/internal/models"
	"rankscan/internal/repository"

	"github.com/gorilla/mux"
)

type apiEnvelope struct {
	Links map[string]string      `json:"links,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
	Data  interface{}            `json:"data,omitempty"`
	Error map[string]string      `json:"error,omitempty"`
}

func writeAPIResponse(w http.ResponseWriter, data interface{}, meta map[string]interface{}) {
	json.NewEncoder(w).Encode(apiEnvelope{Meta: meta, Data: data})
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiEnvelope{
		Error: map[string]string{"message": message},
	})
}

func parseLimitOffset(r *http.Request) (int, int) {
	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func parseDateParam(v string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(v))
}

// --- Backfill job endpoints ---

type startBackfillRequest struct {
	RangeStart string `json:"range_start"`
	RangeEnd   string `json:"range_end"`
	TokenScope int    `json:"token_scope"`
}

// handleStartBackfill handles POST /v1/admin/backfill — idempotent,
// resume-aware job creation. The engine run is fire-and-forget.
func (s *Server) handleStartBackfill(w http.ResponseWriter, r *http.Request) {
	var req startBackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rangeStart, err := parseDateParam(req.RangeStart)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid range_start (use YYYY-MM-DD)")
		return
	}
	rangeEnd, err := parseDateParam(req.RangeEnd)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid range_end (use YYYY-MM-DD)")
		return
	}

	result, err := s.controller.Start(r.Context(), rangeStart, rangeEnd, req.TokenScope)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if result.Outcome == backfill.OutcomeNoop {
		writeAPIResponse(w, result, nil)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	writeAPIResponse(w, result, nil)
}

// handlePauseBackfill handles POST /v1/admin/backfill/{id}/pause.
// Pausing is cooperative: the run stops after the current token.
func (s *Server) handlePauseBackfill(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := s.controller.Pause(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			writeAPIError(w, http.StatusNotFound, "job not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !result.Paused {
		w.WriteHeader(http.StatusConflict)
	}
	writeAPIResponse(w, result, nil)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := s.controller.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			writeAPIError(w, http.StatusNotFound, "job not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, job, nil)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r)
	jobs, err := s.controller.List(r.Context(), limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, jobs, map[string]interface{}{"limit": limit, "count": len(jobs)})
}

// --- Token / rank endpoints ---

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	tokens, err := s.repo.ListTokens(r.Context(), limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, tokens, map[string]interface{}{"limit": limit, "offset": offset, "count": len(tokens)})
}

// handleTokenSnapshots handles GET /v1/tokens/{cmcID}/snapshots — a
// token's daily history, oldest first. Defaults to the last 90 days.
func (s *Server) handleTokenSnapshots(w http.ResponseWriter, r *http.Request) {
	cmcID, err := strconv.ParseInt(mux.Vars(r)["cmcID"], 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid cmc id")
		return
	}

	end := models.Day(time.Now())
	start := end.AddDate(0, 0, -90)
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = parseDateParam(v); err != nil {
			writeAPIError(w, http.StatusBadRequest, "invalid start (use YYYY-MM-DD)")
			return
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = parseDateParam(v); err != nil {
			writeAPIError(w, http.StatusBadRequest, "invalid end (use YYYY-MM-DD)")
			return
		}
	}

	limit, _ := parseLimitOffset(r)
	snaps, err := s.repo.FindSnapshotsByCmcID(r.Context(), cmcID, start, end, limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, snaps, map[string]interface{}{
		"cmc_id": cmcID,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
		"count":  len(snaps),
	})
}

// handleRanksForDate handles GET /v1/ranks?date=YYYY-MM-DD — the
// leaderboard for one day, rank ascending.
func (s *Server) handleRanksForDate(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r.URL.Query().Get("date"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid or missing date (use ?date=YYYY-MM-DD)")
		return
	}

	limit, _ := parseLimitOffset(r)
	snaps, err := s.repo.FindRanksForDate(r.Context(), date, limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, snaps, map[string]interface{}{
		"date":  date.Format("2006-01-02"),
		"count": len(snaps),
	})
}
