package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/api/handlers"
	"github.com/amaumene/grabarr/internal/api/middleware"
	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
)

const shutdownTimeout = 10 * time.Second

// Server represents the HTTP server
type Server struct {
	app    *fiber.App
	addr   string
	logger *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	db *models.Database,
	queue handlers.QueueLister,
	tasks handlers.TaskRunner,
	gatherer prometheus.Gatherer,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		addr:   ":" + cfg.ServerPort,
		logger: logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "grabarr",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(middleware.Logging(logger))
	s.setupRoutes(db, queue, tasks, gatherer)

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(db *models.Database, queue handlers.QueueLister, tasks handlers.TaskRunner, gatherer prometheus.Gatherer) {
	s.app.Get("/health", handlers.NewHealthHandler().Handle)
	s.app.Get("/status", handlers.NewStatusHandler(db, s.logger).Handle)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.app.Group("/api")

	tasksHandler := handlers.NewTasksHandler(tasks, s.logger)
	api.Get("/tasks", tasksHandler.List)
	api.Post("/tasks/:name/run", tasksHandler.Run)

	api.Get("/queue", handlers.NewQueueHandler(queue, s.logger).Handle)

	// TorBox webhook
	api.Post("/webhook/torbox", handlers.NewWebhookHandler(tasks, s.logger).Handle)
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// errorHandler renders errors as JSON
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// Start starts the HTTP server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}
