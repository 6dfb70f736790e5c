package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	router *chi.Mux
	srv    *http.Server
	log    *zap.Logger
}

// New собирает роутер: служебные маршруты плюс то, что повесит mount.
func New(log *zap.Logger, healthzBody string, mount func(r chi.Router)) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(AccessLog(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(healthzBody))
	})
	r.Handle("/metrics", promhttp.Handler())
	if mount != nil {
		mount(r)
	}
	return &Server{router: r, log: log}
}

func (s *Server) Handler() http.Handler { return s.router }

// Start слушает addr до Shutdown. WriteTimeout не ставим: вызовы моделей
// длятся минутами, дедлайн задаёт сам запрос.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.log.Info("listening", zap.String("addr", addr))
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.log.Info("shutting down http server")
	return s.srv.Shutdown(ctx)
}
