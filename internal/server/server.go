// Package server exposes the Fableloom REST API.
//
// Routes live under /api/v1: stories and their pages and choices for
// authoring, parties for reading, and per-story graph, layout, and map
// endpoints backed by the engine pipeline. Structural diagnostics are
// reported inline in responses; they are never HTTP errors.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fableloom/fableloom/internal/config"
	"github.com/fableloom/fableloom/pkg/buildinfo"
	"github.com/fableloom/fableloom/pkg/engine"
	"github.com/fableloom/fableloom/pkg/session"
	"github.com/fableloom/fableloom/pkg/store"
)

// Server wires the store, session store, and engine runner into an HTTP API.
type Server struct {
	cfg      config.Config
	logger   *log.Logger
	store    store.Store
	sessions session.Store
	runner   *engine.Runner

	// live holds the in-process reading sessions, one entry per party.
	// Each entry carries the lock that serializes request access to its
	// session. The undo history lives only here; the party path log in
	// the store is the durable record.
	mu   sync.Mutex
	live map[string]*liveEntry
}

// New creates a server. A nil session store falls back to in-process memory.
func New(cfg config.Config, st store.Store, sess session.Store, runner *engine.Runner, logger *log.Logger) *Server {
	if sess == nil {
		sess = session.NewMemoryStore()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		sessions: sess,
		runner:   runner,
		live:     make(map[string]*liveEntry),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.logRequests)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/stories", func(r chi.Router) {
			r.Get("/", s.listStories)
			r.Post("/", s.createStory)
			r.Route("/{storyID}", func(r chi.Router) {
				r.Get("/", s.getStory)
				r.Patch("/", s.updateStory)
				r.Delete("/", s.deleteStory)
				r.Get("/pages", s.listPages)
				r.Post("/pages", s.createPage)
				r.Get("/graph", s.storyGraph)
				r.Get("/layout", s.storyLayout)
				r.Get("/map", s.storyMap)
			})
		})

		r.Route("/pages/{pageID}", func(r chi.Router) {
			r.Get("/", s.getPage)
			r.Patch("/", s.updatePage)
			r.Delete("/", s.deletePage)
			r.Get("/choices", s.listChoices)
			r.Post("/choices", s.createChoice)
		})

		r.Route("/choices/{choiceID}", func(r chi.Router) {
			r.Patch("/", s.updateChoice)
			r.Delete("/", s.deleteChoice)
		})

		r.Route("/parties", func(r chi.Router) {
			r.Post("/", s.createParty)
			r.Route("/{partyID}", func(r chi.Router) {
				r.Get("/", s.getParty)
				r.Get("/progress", s.partyProgress)
				r.Post("/choose", s.partyChoose)
				r.Post("/back", s.partyBack)
				r.Post("/restart", s.partyRestart)
			})
		})
	})

	return r
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.Duration(s.cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(s.cfg.Server.WriteTimeout, 30*time.Second),
	}

	go s.cleanupSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", srv.Addr, "version", buildinfo.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		config.Duration(s.cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// cleanupSessions sweeps expired reader bindings out of the session store
// until the server stops. The redis backend expires keys itself; for the
// memory and file backends this is the only reaper.
func (s *Server) cleanupSessions(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sessions.Cleanup(ctx); err != nil {
				s.logger.Warn("session cleanup failed", "error", err)
			}
		}
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}

// logRequests logs each request through the structured logger.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}
