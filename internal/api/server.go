package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/bl4ck0w1/secretlynx/internal/orchestration"
	"github.com/bl4ck0w1/secretlynx/internal/storage"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

// ScanService is the part of the orchestrator the API drives.
type ScanService interface {
	StartScan(ctx context.Context, req models.ScanRequest) (*models.ScanResult, error)
	GetScanResult(ctx context.Context, id string) (*models.ScanResult, error)
	GetProgress(ctx context.Context, id string) (*models.ProgressEvent, error)
	GetStats() map[string]interface{}
}

// Envelope wraps every API response body.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type Server struct {
	app     *fiber.App
	scans   ScanService
	metrics *utils.MetricsCollector
	logger  *logrus.Logger
	version string
	started time.Time
}

func NewServer(scans ScanService, metrics *utils.MetricsCollector, logger *logrus.Logger, version string) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	app := fiber.New(fiber.Config{
		AppName:               "SecretLynx API",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New())

	s := &Server{
		app:     app,
		scans:   scans,
		metrics: metrics,
		logger:  logger,
		version: version,
		started: time.Now(),
	}
	app.Use(s.accessLog)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/scan", s.handleStartScan)
	api.Get("/scan/:id", s.handleGetScan)
	api.Get("/scan/:id/progress", s.handleGetProgress)
	api.Get("/stats", s.handleStats)

	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start(addr string) error {
	s.logger.WithField("address", addr).Info("Starting API server")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}
	s.logger.WithFields(logrus.Fields{
		"method":     c.Method(),
		"path":       c.Path(),
		"status":     status,
		"duration":   time.Since(start).String(),
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	}).Debug("Request handled")
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return ok(c, fiber.Map{
		"status":    "ok",
		"version":   s.version,
		"uptime":    utils.HumanizeDuration(time.Since(s.started)),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, "")
}

func (s *Server) handleStartScan(c *fiber.Ctx) error {
	var req models.ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.URL) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "url is required")
	}

	result, err := s.scans.StartScan(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, orchestration.ErrInvalidTarget) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		s.logger.WithError(err).Error("Failed to start scan")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to start scan")
	}
	return c.Status(fiber.StatusAccepted).JSON(Envelope{
		Success: true,
		Data:    result,
		Message: "Scan started",
	})
}

func (s *Server) handleGetScan(c *fiber.Ctx) error {
	id := c.Params("id")
	result, err := s.scans.GetScanResult(c.UserContext(), id)
	if err != nil {
		return lookupError(err, "scan", id)
	}
	return ok(c, result, "")
}

func (s *Server) handleGetProgress(c *fiber.Ctx) error {
	id := c.Params("id")
	progress, err := s.scans.GetProgress(c.UserContext(), id)
	if err != nil {
		return lookupError(err, "progress for scan", id)
	}
	return ok(c, progress, "")
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return ok(c, s.scans.GetStats(), "")
}

func ok(c *fiber.Ctx, data interface{}, message string) error {
	return c.JSON(Envelope{Success: true, Data: data, Message: message})
}

func lookupError(err error, what, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("%s %s not found", what, id))
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(Envelope{Success: false, Message: err.Error()})
}
