// Package server exposes the read API over the persisted pipeline output.
// Handlers never fail on missing data; an empty day serves empty payloads.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"marketintel/internal/core"
	"marketintel/internal/feedfile"
	"marketintel/internal/logger"
	"marketintel/internal/pipeline"
	"marketintel/internal/store"
)

const (
	maxTerminalDays  = 30
	maxSentimentDays = 90
	maxHistoryDays   = 30
)

// Runner triggers one synchronous pipeline run.
type Runner interface {
	Run(ctx context.Context, date string) (*pipeline.RunResult, error)
}

// Server serves the read API.
type Server struct {
	store   *store.Store
	runner  Runner
	dataDir string
	port    int
}

// New creates a server.
func New(st *store.Store, runner Runner, dataDir string, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{store: st, runner: runner, dataDir: dataDir, port: port}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/news", s.handleNews)
	r.Get("/news/{date}", s.handleNewsByDate)
	r.Post("/news/refresh", s.handleRefresh)

	r.Route("/market-terminal", func(r chi.Router) {
		r.Get("/", s.handleTerminal)
		r.Get("/latest", s.handleTerminalLatest)
		r.Get("/sentiment", s.handleSentiment)
		r.Get("/history", s.handleHistory)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	return r
}

// ListenAndServe runs the server until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server listening", "port", s.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	feed, err := feedfile.Load(s.dataDir)
	if err != nil {
		logger.Error("failed to load feed file", "error", err.Error())
		feed = &feedfile.Feed{}
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleNewsByDate(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	feed, err := feedfile.Load(s.dataDir)
	if err != nil {
		logger.Error("failed to load feed file", "error", err.Error())
		feed = &feedfile.Feed{}
	}
	for _, entry := range feed.News {
		if entry.Date == date {
			writeJSON(w, http.StatusOK, entry)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "no entry for " + date})
}

type refreshResponse struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	FetchedDates []string `json:"fetchedDates"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.Run(r.Context(), "")
	if err != nil {
		writeJSON(w, http.StatusOK, refreshResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Success:      true,
		Message:      fmt.Sprintf("processed %d articles into %d clusters", result.Articles, result.Clusters),
		FetchedDates: []string{result.Date},
	})
}

// DayAnalysis is one day's analytic snapshot for the terminal view.
type DayAnalysis struct {
	Date     string         `json:"date"`
	Briefing *core.Briefing `json:"briefing,omitempty"`
	Clusters []core.Cluster `json:"clusters"`
	GPR      *core.GPRPoint `json:"gpr,omitempty"`
}

type terminalResponse struct {
	Analyses         []DayAnalysis              `json:"analyses"`
	SentimentHistory []core.DailySentimentPoint `json:"sentimentHistory"`
	CategoryNames    map[string]string          `json:"categoryNames"`
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	days := clampDays(r, maxTerminalDays)
	writeJSON(w, http.StatusOK, s.buildTerminal(days))
}

func (s *Server) handleTerminalLatest(w http.ResponseWriter, r *http.Request) {
	resp := s.buildTerminal(1)
	var latest *DayAnalysis
	if len(resp.Analyses) > 0 {
		latest = &resp.Analyses[0]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analysis":         latest,
		"sentimentHistory": resp.SentimentHistory,
	})
}

func (s *Server) buildTerminal(days int) terminalResponse {
	resp := terminalResponse{
		Analyses:         []DayAnalysis{},
		SentimentHistory: []core.DailySentimentPoint{},
		CategoryNames:    categoryNames(),
	}

	dates, err := s.store.GetBriefingDates(days)
	if err != nil {
		logger.Error("failed to load briefing dates", "error", err.Error())
		dates = nil
	}
	for _, date := range dates {
		analysis := DayAnalysis{Date: date, Clusters: []core.Cluster{}}
		if briefing, err := s.store.GetBriefing(date); err == nil {
			analysis.Briefing = briefing
		}
		if clusters, err := s.store.GetClustersByDate(date); err == nil && clusters != nil {
			analysis.Clusters = clusters
		}
		resp.Analyses = append(resp.Analyses, analysis)
	}

	if history, err := s.store.GetDailySentimentHistory(days); err == nil && history != nil {
		resp.SentimentHistory = history
	}
	return resp
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	days := clampDays(r, maxSentimentDays)
	history, err := s.store.GetDailySentimentHistory(days)
	if err != nil || history == nil {
		history = []core.DailySentimentPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sentimentHistory": history})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	days := clampDays(r, maxHistoryDays)

	gpr, err := s.store.GetGPRHistory(days)
	if err != nil || gpr == nil {
		gpr = []core.GPRPoint{}
	}
	threads, err := s.store.GetNarrativeThreads(days, "")
	if err != nil || threads == nil {
		threads = []core.NarrativeThread{}
	}
	entities, err := s.store.GetTopEntities(days, 20)
	if err != nil || entities == nil {
		entities = []core.EntitySentimentPoint{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"gprHistory": gpr,
		"threads":    threads,
		"entities":   entities,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rollup, err := s.store.GetHealthRollup()
	if err != nil {
		logger.Error("failed to build health rollup", "error", err.Error())
		writeJSON(w, http.StatusOK, map[string]string{"status": "unknown"})
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		logger.Error("failed to load store stats", "error", err.Error())
		writeJSON(w, http.StatusOK, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stats":  stats,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func clampDays(r *http.Request, max int) int {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}
	if days > max {
		days = max
	}
	return days
}

func categoryNames() map[string]string {
	names := make(map[string]string, len(core.Categories))
	for _, c := range core.Categories {
		names[string(c)] = c.DisplayName()
	}
	return names
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err.Error())
	}
}
