// Package admin serves read-only HTTP diagnostics for a running game.
package admin

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dreamware/monsters/internal/game"
	"github.com/dreamware/monsters/internal/ledger"
	"github.com/dreamware/monsters/internal/results"
)

// Server handles diagnostics requests.
type Server struct {
	game   *game.Game
	logger *log.Logger
}

// NewServer creates a diagnostics server for g.
func NewServer(g *game.Game, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{game: g, logger: logger}
}

// Routes sets up the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(middleware.Heartbeat("/health"))

	r.Get("/scores", s.handleScores)
	r.Get("/round", s.handleRound)
	r.Get("/results", s.handleResults)

	return r
}

type scoresResponse struct {
	Scores []ledger.Entry `json:"scores"`
	Round  int64          `json:"round"`
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	scores := s.game.Ledger().Snapshot()
	if scores == nil {
		scores = []ledger.Entry{}
	}
	s.writeJSON(w, http.StatusOK, scoresResponse{
		Round:  s.game.Round().Seq(),
		Scores: scores,
	})
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.game.Status())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	store := s.game.Results()
	if s.game.Metrics() == nil || store == nil {
		s.writeError(w, http.StatusNotFound, "metrics are disabled")
		return
	}
	rows, err := store.List(r.Context())
	if err != nil {
		s.logger.Printf("list results: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read results")
		return
	}
	if rows == nil {
		rows = []results.Row{}
	}
	s.writeJSON(w, http.StatusOK, struct {
		Results []results.Row `json:"results"`
	}{Results: rows})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("%s %s status=%d duration=%v request_id=%s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
