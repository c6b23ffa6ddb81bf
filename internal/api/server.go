// Package api exposes the HTTP interface for the listing service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentradar/rentradar/internal/config"
	"github.com/rentradar/rentradar/internal/scanner"
	"github.com/rentradar/rentradar/internal/scraper"
	"github.com/rentradar/rentradar/internal/store"
	"github.com/rentradar/rentradar/internal/telemetry"
)

// ScanStarter kicks off background scan runs.
type ScanStarter interface {
	Start(ctx context.Context, opts scanner.Options) (*store.ScanRun, error)
}

// Pinger reports database liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the stores and the scan engine.
type Server struct {
	router   chi.Router
	listings store.ListingStore
	runs     store.ScanStore
	scans    ScanStarter
	pinger   Pinger
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	listings store.ListingStore,
	runs store.ScanStore,
	scans ScanStarter,
	pinger Pinger,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		listings: listings,
		runs:     runs,
		scans:    scans,
		pinger:   pinger,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(telemetry.Middleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/listings", func(r chi.Router) {
			r.Get("/", s.listListings)
			r.Get("/{hash}", s.getListing)
		})
		r.Get("/cities", s.searchCities)
		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.triggerScan)
			r.Get("/", s.listScans)
			r.Get("/{scan_id}", s.getScan)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListingFilter{
		Source: q.Get("source"),
		City:   q.Get("city"),
	}
	if raw := q.Get("max_price"); raw != "" {
		maxPrice, err := strconv.Atoi(raw)
		if err != nil || maxPrice < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid max_price")
			return
		}
		filter.MaxPrice = maxPrice
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	listings, err := s.listings.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list listings", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"listings": listings,
		"count":    len(listings),
	})
}

func (s *Server) searchCities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("q")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	matches, err := s.listings.SearchCities(r.Context(), name, limit)
	if err != nil {
		s.logger.Error("search cities", zap.String("q", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to search cities")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cities": matches,
		"count":  len(matches),
	})
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	l, err := s.listings.GetByHash(r.Context(), hash)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.logger.Error("get listing", zap.String("hash", hash), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to fetch listing")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"listing": l})
}

type scanRequest struct {
	Sources  []string `json:"sources"`
	Cities   []string `json:"cities"`
	MaxPages int      `json:"max_pages"`
}

func (s *Server) triggerScan(w http.ResponseWriter, r *http.Request) {
	if s.scans == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scan engine not configured")
		return
	}
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Sources) == 0 {
		req.Sources = s.cfg.Scan.Sources
	}
	if len(req.Cities) == 0 {
		req.Cities = s.cfg.Scan.Cities
	}
	if req.MaxPages < 0 {
		s.writeError(w, http.StatusBadRequest, "max_pages must be >= 0")
		return
	}

	run, err := s.scans.Start(r.Context(), scanner.Options{
		Sources:  req.Sources,
		Cities:   req.Cities,
		MaxPages: req.MaxPages,
	})
	if errors.Is(err, scraper.ErrSourceUnknown) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("start scan", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to start scan")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"scan": run})
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list scans", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"scans": runs,
		"count": len(runs),
	})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "scan_id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid scan id")
		return
	}
	run, err := s.runs.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		s.logger.Error("get scan", zap.Int64("scan_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to fetch scan")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"scan": run})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
