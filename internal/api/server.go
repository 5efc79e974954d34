package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"rankscan/internal/backfill"
	"rankscan/internal/eventbus"
	"rankscan/internal/repository"

	"github.com/gorilla/mux"
)

// BuildCommit is set by main to the git commit hash baked in at build time.
var BuildCommit = "dev"

type Server struct {
	repo       *repository.Repository
	controller *backfill.Controller
	hub        *jobsHub
	httpServer *http.Server
}

func NewServer(repo *repository.Repository, controller *backfill.Controller, bus *eventbus.Bus, port string) *Server {
	r := mux.NewRouter()

	s := &Server{
		repo:       repo,
		controller: controller,
		hub:        newJobsHub(bus),
	}

	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	registerBaseRoutes(r, s)
	registerAdminRoutes(r, s)
	registerAPIRoutes(r, s)

	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	return s
}

func registerBaseRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/ws/jobs", s.handleJobsWebSocket).Methods("GET", "OPTIONS")
}

func registerAdminRoutes(r *mux.Router, s *Server) {
	admin := r.PathPrefix("/v1/admin").Subrouter()
	admin.Use(adminAuthMiddleware)
	admin.HandleFunc("/backfill", s.handleStartBackfill).Methods("POST", "OPTIONS")
	admin.HandleFunc("/backfill/{id}/pause", s.handlePauseBackfill).Methods("POST", "OPTIONS")
}

func registerAPIRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/v1/backfill", s.handleListJobs).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/backfill/{id}", s.handleGetJob).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/tokens", s.handleListTokens).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/tokens/{cmcID}/snapshots", s.handleTokenSnapshots).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/ranks", s.handleRanksForDate).Methods("GET", "OPTIONS")
}

func (s *Server) Start() error {
	s.hub.start()
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "commit": BuildCommit})
}

// handleStatus is a lightweight overview: token catalog size plus the
// most recent backfill jobs.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenCount, err := s.repo.CountTokens(ctx)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobs, err := s.controller.List(ctx, 5)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"commit":      BuildCommit,
		"tokens":      tokenCount,
		"recent_jobs": jobs,
		"time":        time.Now().UTC(),
	})
}
