// Package httpserver exposes the bookmark store over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/m-novikov/bookhaven/internal/enrich"
	"github.com/m-novikov/bookhaven/internal/httpserver/mw"
	"github.com/m-novikov/bookhaven/internal/localstore"
	"github.com/m-novikov/bookhaven/internal/service"
	"github.com/m-novikov/bookhaven/internal/session"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Auth     service.AuthService
	Ctrl     *session.Controller
	Migrator session.Migrator
	Enricher enrich.Enricher
	Local    *localstore.Adapter
	Logger   *zap.Logger
}

type Server struct {
	srv      *http.Server
	auth     service.AuthService
	ctrl     *session.Controller
	migrator session.Migrator
	enricher enrich.Enricher
	local    *localstore.Adapter
	logger   *zap.Logger
}

func New(addr string, d Deps) *Server {
	s := &Server{
		auth:     d.Auth,
		ctrl:     d.Ctrl,
		migrator: d.Migrator,
		enricher: d.Enricher,
		local:    d.Local,
		logger:   d.Logger,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(mw.Log(s.logger))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Get("/store", s.handleGetStore)
		r.Get("/session", s.handleSession)
		r.Post("/bookmarks", s.handleAddBookmark)
		r.Patch("/bookmarks/{id}/status", s.handleSetStatus)
		r.Patch("/bookmarks/{id}/priority", s.handleSetPriority)
		r.Patch("/bookmarks/{id}/progress", s.handleSetProgress)
		r.Post("/bookmarks/{id}/favorite", s.handleToggleFavorite)
		r.Post("/bookmarks/{id}/tags/accept", s.handleAcceptTags)
		r.Post("/bookmarks/{id}/notes", s.handleAppendNotes)
		r.Post("/bookmarks/{id}/highlights", s.handleAddHighlight)
		r.Post("/bookmarks/{id}/enrich", s.handleEnrich)
		r.Post("/collections", s.handleAddCollection)
		r.Post("/collections/{id}/reparent", s.handleReparent)
		r.Post("/import", s.handleImport)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth(s.auth))
			r.Post("/migrate", s.handleMigrate)
			r.Post("/reload", s.handleReload)
			r.Post("/erase", s.handleErase)
		})
	})

	return r
}

// Start blocks serving HTTP until Stop is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
