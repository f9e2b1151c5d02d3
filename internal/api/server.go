// Package api exposes the HTTP control surface for the indexer service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/metrics"
	"github.com/shopindex/shopindex/internal/orchestrator"
	"github.com/shopindex/shopindex/internal/registry"
)

// Runner starts index runs and reports their status.
type Runner interface {
	Start(ctx context.Context, req orchestrator.StartRequest) (catalog.StoreStatus, error)
	Status(slug string) (catalog.StoreStatus, bool)
}

// ProductLister pages through a store's persisted catalog.
type ProductLister interface {
	ListProducts(ctx context.Context, slug string, offset, limit int) ([]catalog.Product, int, error)
}

// Pinger checks a downstream dependency for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the server surface.
type Options struct {
	RequestTimeout time.Duration
	APIKey         string
	MaxPreview     int
	MaxPageSize    int
}

const (
	defaultRequestTimeout = 60 * time.Second
	defaultMaxPreview     = 25
	defaultMaxPageSize    = 200
	defaultPageSize       = 50
)

// Server wires HTTP handlers to the orchestrator and the product store.
type Server struct {
	router   chi.Router
	runner   Runner
	products ProductLister
	pinger   Pinger
	opts     Options
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. pinger may be
// nil; readiness then reports ready unconditionally.
func NewServer(runner Runner, products ProductLister, pinger Pinger, opts Options, logger *zap.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.MaxPreview <= 0 {
		opts.MaxPreview = defaultMaxPreview
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = defaultMaxPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:   runner,
		products: products,
		pinger:   pinger,
		opts:     opts,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/stores", func(r chi.Router) {
			r.Post("/", s.startRun)
			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/status", s.storeStatus)
				r.Get("/products", s.listProducts)
			})
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
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startRunRequest struct {
	URL   string `json:"url"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Force bool   `json:"force"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	status, err := s.runner.Start(r.Context(), orchestrator.StartRequest{
		URL:   req.URL,
		Name:  req.Name,
		Slug:  req.Slug,
		Force: req.Force,
	})
	if err != nil {
		var active *registry.ErrRunActive
		if errors.As(err, &active) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":  "a run is already active for this store",
				"slug":   active.Slug,
				"run_id": active.RunID,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

type statusResponse struct {
	catalog.StoreStatus
	Preview []compactProduct `json:"preview,omitempty"`
}

func (s *Server) storeStatus(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	status, ok := s.runner.Status(slug)
	if !ok {
		writeError(w, http.StatusNotFound, "store has no runs")
		return
	}
	resp := statusResponse{StoreStatus: status}

	if n := intQuery(r, "preview", 0); n > 0 {
		if n > s.opts.MaxPreview {
			n = s.opts.MaxPreview
		}
		products, _, err := s.products.ListProducts(r.Context(), slug, 0, n)
		if err != nil {
			s.logger.Warn("status preview failed", zap.String("slug", slug), zap.Error(err))
		} else {
			resp.Preview = make([]compactProduct, 0, len(products))
			for _, p := range products {
				resp.Preview = append(resp.Preview, compactView(p))
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type productPage struct {
	Slug     string `json:"slug"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
	View     string `json:"view"`
	Products any    `json:"products"`
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	page := intQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := intQuery(r, "page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > s.opts.MaxPageSize {
		pageSize = s.opts.MaxPageSize
	}
	view := r.URL.Query().Get("view")
	if view == "" {
		view = "compact"
	}
	if view != "compact" && view != "manifest" {
		writeError(w, http.StatusBadRequest, "view must be compact or manifest")
		return
	}

	products, total, err := s.products.ListProducts(r.Context(), slug, (page-1)*pageSize, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list products failed")
		return
	}

	resp := productPage{
		Slug:     slug,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		View:     view,
	}
	if view == "manifest" {
		rows := make([]manifestProduct, 0, len(products))
		for _, p := range products {
			rows = append(rows, manifestView(p))
		}
		resp.Products = rows
	} else {
		rows := make([]compactProduct, 0, len(products))
		for _, p := range products {
			rows = append(rows, compactView(p))
		}
		resp.Products = rows
	}
	writeJSON(w, http.StatusOK, resp)
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
