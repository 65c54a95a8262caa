// Package server exposes the relay over HTTP: a websocket subscriber endpoint and
// a small JSON command API.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/quickgpt/pkg/archive"
	"github.com/go-go-golems/quickgpt/pkg/relay"
)

const shutdownTimeout = 30 * time.Second

type Config struct {
	Addr          string
	Controller    *relay.Controller
	Prompts       PromptSource
	Archive       archive.Archive
	Upgrader      *websocket.Upgrader
	SendQueueSize int
}

type Server struct {
	ctrl    *relay.Controller
	archive archive.Archive
	httpSrv *http.Server
}

func New(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("controller is nil")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	s := &Server{ctrl: cfg.Controller, archive: cfg.Archive}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// NewRouter mounts the command API and the websocket endpoint.
func NewRouter(cfg Config) chi.Router {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	if cfg.Upgrader != nil {
		upgrader = *cfg.Upgrader
	}
	hub := NewHub(cfg.Controller, cfg.SendQueueSize)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", NewWSHandler(hub, upgrader))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/prompts", NewPromptsHandler(cfg.Prompts))
			r.Get("/history", NewHistoryHandler(cfg.Archive))
			r.Get("/requests", NewListRequestsHandler(cfg.Controller))
			r.Post("/requests", NewStartRequestHandler(cfg.Controller, cfg.Prompts))
			r.Get("/requests/{id}", NewGetRequestHandler(cfg.Controller))
			r.Post("/requests/{id}/detail", NewDetailHandler(cfg.Controller))
			r.Post("/requests/{id}/cancel", NewCancelHandler(cfg.Controller))
		})
	})
	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("component", "server").
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until ctx is done or the process is interrupted, then shuts the
// HTTP server down and closes the controller and the archive.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	if s == nil || s.httpSrv == nil {
		return errors.New("server is not initialized")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.ctrl.Close()
		if s.archive != nil {
			if err := s.archive.Close(); err != nil {
				log.Error().Err(err).Msg("archive close error")
			}
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting quickgpt server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	return eg.Wait()
}
