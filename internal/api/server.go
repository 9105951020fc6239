// Package api serves the collector endpoint that receives finished
// collections and stores them.
package api

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/markbook/internal/config"
	"github.com/IshaanNene/markbook/internal/observability"
	"github.com/IshaanNene/markbook/internal/storage"
	"github.com/IshaanNene/markbook/internal/types"
)

// Server receives submissions over HTTP.
type Server struct {
	mux     *http.ServeMux
	cfg     config.ServerConfig
	store   storage.Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewServer creates a collector server backed by store. The metrics
// endpoint is mounted when metricsCfg is enabled.
func NewServer(cfg config.ServerConfig, metricsCfg config.MetricsConfig, store storage.Store, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "api_server"),
	}

	s.registerRoutes(metricsCfg)
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("collector server starting", "addr", srv.Addr, "store", s.store.Name())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("collector server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(metricsCfg config.MetricsConfig) {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/bookmarks", s.handleBookmarks)
	s.mux.HandleFunc("GET /api/bookmarks", s.handleSearch)
	s.mux.HandleFunc("DELETE /api/bookmarks/{id}", s.handleDelete)
	s.mux.HandleFunc("OPTIONS /api/bookmarks", s.handlePreflight)
	s.mux.HandleFunc("OPTIONS /api/bookmarks/{id}", s.handlePreflight)

	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	if metricsCfg.Enabled {
		s.mux.Handle("GET "+metricsCfg.Path, s.metrics)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
		"store":   s.store.Name(),
	})
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Encoding")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	s.metrics.BatchesReceived.Add(1)

	body, err := decompressBody(r.Header.Get("Content-Encoding"), http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize))
	if err != nil {
		s.reject(w, http.StatusBadRequest, err.Error())
		return
	}

	// The decoded size is bounded too, not just the bytes on the wire.
	raw, err := io.ReadAll(io.LimitReader(body, s.cfg.MaxBodySize+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.reject(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if int64(len(raw)) > s.cfg.MaxBodySize {
		s.reject(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		s.reject(w, http.StatusBadRequest, "Expected a JSON array")
		return
	}

	var records []types.Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		s.reject(w, http.StatusBadRequest, "Expected a JSON array")
		return
	}
	for i, rec := range records {
		if rec.ID == "" {
			s.reject(w, http.StatusBadRequest, fmt.Sprintf("record %d: tweet_id is required", i))
			return
		}
	}

	count, err := s.store.Upsert(r.Context(), records)
	if err != nil {
		s.metrics.StorageErrors.Add(1)
		s.metrics.BatchesRejected.Add(1)
		s.logger.Error("store bookmarks failed", "error", err, "records", len(records))
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.metrics.RecordsReceived.Add(int64(count))

	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.metrics.StorageErrors.Add(1)
		s.logger.Error("read stats failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info("bookmarks received", "count", count, "total", stats.Total)
	s.jsonResponse(w, http.StatusOK, map[string]int{
		"count": count,
		"total": stats.Total,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.metrics.StorageErrors.Add(1)
		s.logger.Error("read stats failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

// handleSearch lists stored bookmarks. Query parameters: search, author,
// category, sort and limit (default storage.DefaultSearchLimit, 0 for all).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	sort, err := storage.ParseSort(params.Get("sort"))
	if err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	limit := storage.DefaultSearchLimit
	if v := params.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
	}

	bookmarks, err := s.store.Search(r.Context(), storage.Query{
		Search:   params.Get("search"),
		Author:   params.Get("author"),
		Category: params.Get("category"),
		Sort:     sort,
		Limit:    limit,
	})
	if err != nil {
		s.metrics.StorageErrors.Add(1)
		s.logger.Error("search failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.jsonResponse(w, http.StatusOK, bookmarks)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := s.store.Delete(r.Context(), id)
	if err != nil {
		s.metrics.StorageErrors.Add(1)
		s.logger.Error("delete failed", "tweet_id", id, "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !deleted {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": "bookmark not found"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) reject(w http.ResponseWriter, status int, msg string) {
	s.metrics.BatchesRejected.Add(1)
	s.logger.Warn("submission rejected", "status", status, "reason", msg)
	s.jsonResponse(w, status, map[string]string{"error": msg})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowOrigin)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decompressBody wraps body with the decoder named by Content-Encoding.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressBody(encoding string, body io.Reader) (io.Reader, error) {
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		return gz, nil
	case "deflate":
		return flate.NewReader(body), nil
	case "br":
		return brotli.NewReader(body), nil
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding %q", encoding)
	}
}
