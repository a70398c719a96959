// Package server provides the HTTP API for medibot.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/medibot/internal/bundle"
	"github.com/hyperjump/medibot/internal/config"
	"github.com/hyperjump/medibot/internal/indexer"
	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/pkg/utils"
	"go.uber.org/zap"
)

// Asker answers questions within sessions.
type Asker interface {
	Answer(ctx context.Context, question, sessionID string) *models.Answer
	AnswerStream(ctx context.Context, question, sessionID string, onFragment func(string)) *models.Answer
	History(sessionID string) []models.Turn
	Reset(sessionID string) bool
	Model() string
}

// IndexRefresher reinstalls the live index, from disk or by rebuilding it from the documents.
type IndexRefresher interface {
	Reload(ctx context.Context) error
	Rebuild(ctx context.Context) (*indexer.Stats, error)
}

// Server is the HTTP server for the medibot API.
type Server struct {
	asker     Asker
	handle    *bundle.Handle
	refresher IndexRefresher
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. refresher may be nil, which disables reloads.
func NewServer(asker Asker, handle *bundle.Handle, refresher IndexRefresher, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		asker:     asker,
		handle:    handle,
		refresher: refresher,
		config:    cfg,
		logger:    utils.OrNop(logger),
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Compress(5)).Post("/ask", s.handleAsk)
		r.Post("/ask/stream", s.handleAskStream)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Post("/index/reload", s.handleReload)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// requestLogger logs each request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
