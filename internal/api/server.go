package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
	"github.com/sarcastic555/politylink-crawler/internal/metrics"
	"github.com/sarcastic555/politylink-crawler/internal/search"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 100
	shutdownTimeout   = 5 * time.Second
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the crawl stores.
type Server struct {
	router      chi.Router
	checkpoints crawler.CheckpointStore
	graph       graph.Store
	index       search.Indexer
	ready       []Pinger
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready lists the
// backends /readyz pings in addition to the search index.
func NewServer(
	checkpoints crawler.CheckpointStore,
	store graph.Store,
	index search.Indexer,
	logger *zap.Logger,
	ready ...Pinger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		checkpoints: checkpoints,
		graph:       store,
		index:       index,
		ready:       ready,
		logger:      logger.Named("api"),
	}
	metrics.Init()
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/checkpoints/{source}", s.handleCheckpoint)
		r.Get("/nodes/{id}", s.handleNode)
		r.Get("/news/search", s.handleSearch)
	})
	s.router = r
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("operator server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := append([]Pinger{s.index}, s.ready...)
	for _, p := range checks {
		if p == nil {
			continue
		}
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type checkpointResponse struct {
	Source       string `json:"source"`
	Cursor       int    `json:"cursor"`
	FailureInRow int    `json:"failure_in_row"`
	Emitted      int    `json:"emitted"`
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	state, ok, err := s.checkpoints.Load(r.Context(), name)
	if err != nil {
		s.logger.Error("load checkpoint failed", zap.String("source", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load checkpoint failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no checkpoint")
		return
	}
	writeJSON(w, http.StatusOK, checkpointResponse{
		Source:       name,
		Cursor:       state.Cursor,
		FailureInRow: state.FailureInRow,
		Emitted:      state.Emitted,
	})
}

type referenceResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type nodeResponse struct {
	ID    string              `json:"id"`
	Kind  string              `json:"kind"`
	Props map[string]any      `json:"props"`
	Refs  []referenceResponse `json:"refs,omitempty"`
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := graph.KindOf(id); err != nil {
		writeError(w, http.StatusBadRequest, "malformed id")
		return
	}
	node, err := s.graph.Get(r.Context(), id)
	if errors.Is(err, graph.ErrNotFound) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	if err != nil {
		s.logger.Error("get node failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get node failed")
		return
	}
	resp := nodeResponse{ID: node.ID, Kind: string(node.Kind), Props: node.Props}
	for _, ref := range node.Refs {
		resp.Refs = append(resp.Refs, referenceResponse(ref))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}
	size := defaultSearchSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "size must be a positive integer")
			return
		}
		size = min(n, maxSearchSize)
	}
	docs, err := s.index.Search(r.Context(), query, size)
	if err != nil {
		s.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": docs})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by the request id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
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

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
