// Пакет server — HTTP-сервер Archive Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/archive-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/archive-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/archive-module/internal/config"
)

// Handlers — обработчики, монтируемые сервером.
type Handlers struct {
	Health  *handlers.HealthHandler
	Webhook *handlers.WebhookHandler
	// Admin монтируется только вместе с JWT middleware
	Admin *handlers.AdminHandler
}

// Server — HTTP-сервер Archive Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
// jwtAuth == nil — административное API не публикуется.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h, jwtAuth),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер.
func NewRouter(logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую.
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	// События OneBot защищены HMAC-подписью, не JWT.
	router.Post("/onebot/events", h.Webhook.HandleEvent)

	if jwtAuth == nil || h.Admin == nil {
		logger.Warn("JWT не настроен, административное API отключено")
		return router
	}

	readAccess := middleware.RequireRoleOrScope(
		[]string{middleware.RoleAdmin, middleware.RoleReadonly},
		[]string{middleware.ScopeArchiveRead},
	)
	writeAccess := middleware.RequireRoleOrScope(
		[]string{middleware.RoleAdmin},
		[]string{middleware.ScopeArchiveWrite},
	)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(jwtAuth.Middleware())

		r.Group(func(r chi.Router) {
			r.Use(readAccess)
			r.Get("/requests", h.Admin.ListPendingRequests)
			r.Get("/requests/{id}", h.Admin.GetRequest)
			r.Get("/items", h.Admin.SearchItems)
			r.Get("/items/{id}", h.Admin.GetItem)
			r.Get("/stats", h.Admin.GetStats)
			r.Get("/submitters", h.Admin.ListSubmitters)
			r.Get("/jobs", h.Admin.ListJobs)
		})

		r.Group(func(r chi.Router) {
			r.Use(writeAccess)
			r.Post("/requests/poll", h.Admin.PollRequests)
			r.Post("/requests/{id}/close", h.Admin.CloseRequest)
			r.Delete("/items/{id}", h.Admin.DeleteItem)
			r.Post("/jobs/{id}/run", h.Admin.RunJob)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
