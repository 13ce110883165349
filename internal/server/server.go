// Пакет server — HTTP-сервер Meeting Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/meeting-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/meeting-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/meeting-module/internal/config"
)

// Handlers — обработчики, монтируемые сервером.
type Handlers struct {
	Health   *handlers.HealthHandler
	Files    *handlers.FilesHandler
	Meetings *handlers.MeetingsHandler
	OpenAPI  *handlers.OpenAPIHandler
}

// Server — HTTP-сервер Meeting Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// jwtAuth == nil — API endpoints отвечают 401 (владелец не определён).
func New(cfg *config.Config, logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h, jwtAuth),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http")),
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты. Health, metrics и контракт API публичные,
// остальные endpoints требуют Bearer JWT.
func NewRouter(logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	// liveness/readiness Kubernetes и Prometheus — без API Gateway и без JWT
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/api/v1/openapi.yaml", h.OpenAPI.GetOpenAPI)

	router.Group(func(r chi.Router) {
		if jwtAuth != nil {
			r.Use(jwtAuth.Middleware())
		}

		r.Route("/api/v1/files", func(r chi.Router) {
			r.Post("/profile-image", h.Files.UploadProfileImage)
			r.Post("/document", h.Files.UploadDocument)
			r.Get("/{name}/download", h.Files.DownloadFile)
			r.Get("/{name}/preview", h.Files.PreviewFile)
			r.Post("/{name}/compress", h.Files.CompressFile)
			r.Delete("/{name}", h.Files.DeleteFile)
		})

		r.Route("/api/v1/meetings", func(r chi.Router) {
			r.Post("/", h.Meetings.CreateMeeting)
			r.Put("/{id}", h.Meetings.UpdateMeeting)
			r.Patch("/{id}/cancel", h.Meetings.CancelMeeting)
			r.Get("/{id}/audit", h.Meetings.GetMeetingAudit)
		})
	})

	return router
}

// Handler возвращает корневой http.Handler сервера.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx)
}

// serve обслуживает запросы до отмены ctx или ошибки listener.
func (s *Server) serve(ctx context.Context) error {
	// Канал для ошибок сервера
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

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
