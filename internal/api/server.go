// Package api implements the HTTP layout service: POST a line graph, get
// back its octilinear layout with the cost report. Layouts are cached by
// input hash and persisted in the configured store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/pvnkmrksk/magga/pkg/basegraph"
	"github.com/pvnkmrksk/magga/pkg/cache"
	maggaerrors "github.com/pvnkmrksk/magga/pkg/errors"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
	"github.com/pvnkmrksk/magga/pkg/observability"
	"github.com/pvnkmrksk/magga/pkg/octi"
)

// Defaults applied to draw requests that omit options.
const (
	DefaultCellSize  = 100.0
	DefaultBorderRad = 2.0
	DefaultMaxGrDist = 3.0
)

// Server is the layout service.
type Server struct {
	store  LayoutStore
	cache  cache.Cache
	keyer  cache.Keyer
	logger *log.Logger

	cacheTTL time.Duration
}

// NewServer creates a layout service over the given store and cache.
// A nil cache disables caching; a nil store keeps layouts in memory.
func NewServer(store LayoutStore, c cache.Cache, logger *log.Logger) *Server {
	if store == nil {
		store = NewMemoryStore()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		store:    store,
		cache:    c,
		keyer:    cache.NewDefaultKeyer(),
		logger:   logger,
		cacheTTL: 24 * time.Hour,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/draw", s.handleDraw)
		r.Get("/layouts/{id}", s.handleGetLayout)
	})

	return r
}

// ListenAndServe runs the service until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info("layout service listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	var req DrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	applyDefaults(&req.Options)

	raw, _ := json.Marshal(req.Graph)
	key := s.keyer.LayoutKey(cache.Hash(raw), req.Options.keyOpts())

	if data, hit, err := s.cache.Get(r.Context(), key); err == nil && hit {
		observability.Cache().OnCacheHit(r.Context(), key)
		var resp DrawResponse
		if json.Unmarshal(data, &resp) == nil {
			resp.Cached = true
			s.writeJSON(w, http.StatusOK, resp)
			return
		}
	} else if err != nil {
		observability.Cache().OnCacheError(r.Context(), key, err)
	} else {
		observability.Cache().OnCacheMiss(r.Context(), key)
	}

	g, err := lingraph.FromFeatures(req.Graph)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	oc := &octi.Octilinearizer{Seed: req.Options.Seed, Logger: s.logger}
	if req.Options.OctiGrid {
		oc.Kind = octi.OctiGrid
	}

	deg2 := true
	if req.Options.Deg2Heur != nil {
		deg2 = *req.Options.Deg2Heur
	}

	res, err := oc.Draw(g, octi.Options{
		Pens:      basegraph.DefaultPenalties(),
		CellSize:  req.Options.CellSize,
		BorderRad: req.Options.BorderRad,
		MaxGrDist: req.Options.MaxGrDist,
		EnfGeoPen: req.Options.EnfGeoPen,
		Deg2Heur:  deg2,
	})
	if errors.Is(err, octi.ErrNoEmbedding) {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := DrawResponse{
		ID:    uuid.NewString(),
		Graph: lingraph.ToFeatures(res.Graph),
		Score: res.Score,
	}

	if err := s.store.Put(r.Context(), &StoredLayout{
		ID:        resp.ID,
		CreatedAt: time.Now().UTC(),
		Graph:     resp.Graph,
		Score:     resp.Score,
		Options:   req.Options,
	}); err != nil {
		s.logger.Error("store layout", "id", resp.ID, "err", err)
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(r.Context(), key, data, s.cacheTTL); err != nil {
			observability.Cache().OnCacheError(r.Context(), key, err)
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	l, err := s.store.Get(r.Context(), id)
	if errors.Is(err, ErrLayoutNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, l)
}

func applyDefaults(o *DrawOptions) {
	if o.CellSize <= 0 {
		o.CellSize = DefaultCellSize
	}
	if o.BorderRad <= 0 {
		o.BorderRad = DefaultBorderRad
	}
	if o.MaxGrDist <= 0 {
		o.MaxGrDist = DefaultMaxGrDist
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("request failed", "status", status, "err", err)

	code := maggaerrors.GetCode(err)
	if code == "" {
		switch status {
		case http.StatusBadRequest:
			code = maggaerrors.ErrCodeInvalidInput
		case http.StatusNotFound:
			code = maggaerrors.ErrCodeNotFound
		case http.StatusUnprocessableEntity:
			code = maggaerrors.ErrCodeNoEmbedding
		default:
			code = maggaerrors.ErrCodeInternal
		}
	}
	s.writeJSON(w, status, ErrorResponse{Code: string(code), Error: err.Error()})
}
