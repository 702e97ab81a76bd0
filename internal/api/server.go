// File: internal/api/server.go

// Package api exposes the job-trigger REST surface: submit a scrape job,
// poll its progress and read back stored videos.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/config"
	"github.com/xkilldash9x/clipsight/internal/jobs"
	"github.com/xkilldash9x/clipsight/internal/store"
)

// Runner executes a scrape job asynchronously. The server never blocks a
// request on scraping; it hands the job off and returns 202.
type Runner interface {
	Run(job jobs.Job)
}

// VideoReader is the read-side slice of the store the API serves.
type VideoReader interface {
	RecentVideos(ctx context.Context, q store.RecentVideosQuery) ([]store.Video, error)
}

// ScrapeRequest is the POST /api/scrape payload.
type ScrapeRequest struct {
	Keywords  []string `json:"keywords"`
	MaxVideos int      `json:"max_videos"`
	Analyze   bool     `json:"analyze"`
}

// Server wires the HTTP handlers over the job registry and the store.
type Server struct {
	cfg      config.APIConfig
	mux      *http.ServeMux
	registry *jobs.Registry
	runner   Runner
	videos   VideoReader
	logger   *zap.Logger

	httpSrv *http.Server
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg config.APIConfig, registry *jobs.Registry, runner Runner, videos VideoReader, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		registry: registry,
		runner:   runner,
		videos:   videos,
		logger:   logger.Named("api"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/scrape", s.handleScrape)
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /api/videos", s.handleVideos)
}

// Handler exposes the routing table, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks until ctx is cancelled, then drains in-flight
// requests within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", zap.String("addr", addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	keywords := make([]string, 0, len(req.Keywords))
	for _, k := range req.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		s.jsonError(w, http.StatusBadRequest, "at least one keyword is required")
		return
	}

	job := s.registry.Create(keywords, req.MaxVideos, req.Analyze)
	s.runner.Run(*job)

	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{"jobs": s.registry.List()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.registry.Get(id)
	if !ok {
		s.jsonError(w, http.StatusNotFound, "job not found or expired")
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	q := store.RecentVideosQuery{
		Keyword: r.URL.Query().Get("keyword"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}

	videos, err := s.videos.RecentVideos(r.Context(), q)
	if err != nil {
		s.logger.Error("Failed to load videos", zap.Error(err))
		s.jsonError(w, http.StatusInternalServerError, "failed to load videos")
		return
	}
	if videos == nil {
		videos = []store.Video{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"videos": videos})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, map[string]string{"error": msg})
}
