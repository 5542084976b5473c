// Package server wires middleware, routes and error shaping into a Fiber app.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
	"report-renderer/internal/http/handlers"
	"report-renderer/internal/http/middleware"
	"report-renderer/internal/infra/logging"
	"report-renderer/internal/report"
	"report-renderer/internal/tokens"
)

// bodySlack covers JSON escaping and the non-HTML request fields.
const bodySlack = 256 * 1024

// Deps are the collaborators of the HTTP app.
type Deps struct {
	Config  config.Config
	Service *report.Service
	// Tokens enables API-key authentication when non-nil.
	Tokens *tokens.Cache
	// Store backs the rate limiters; nil means in-memory.
	Store   fiber.Storage
	Version string
}

// New builds the Fiber app.
func New(d Deps) *fiber.App {
	cfg := d.Config

	fcfg := fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	}
	if cfg.Limits.MaxHTMLBytes > 0 {
		fcfg.BodyLimit = 2*cfg.Limits.MaxHTMLBytes + bodySlack
	}
	app := fiber.New(fcfg)

	middleware.Register(app, cfg, middleware.Options{Tokens: d.Tokens, Store: d.Store})
	RegisterRoutes(app, handlers.New(d.Service, cfg, d.Version))

	// Ensure all responses, including 404s, return JSON.
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})
	return app
}

// RegisterRoutes mounts the public and operational routes.
func RegisterRoutes(app *fiber.App, h *handlers.Handlers) {
	app.Get("/", h.Root)
	app.Get("/health", h.Health)

	app.Post("/generate-pdf", h.GeneratePDF)
	app.Post("/render", h.GeneratePDF)
	app.Post("/generate-pdf-base64", h.GeneratePDFBase64)
	app.Post("/render-preview", h.GeneratePDFBase64)
	app.Post("/validate-html", h.ValidateHTML)

	ops := app.Group("/ops")
	ops.Get("/chrome/stats", h.ChromeStats)
	ops.Get("/monitor", monitor.New(monitor.Config{Title: "Report Renderer Metrics"}))
}

// ErrorHandler renders every error as {"detail": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := domain.StatusOf(err)
	msg := "Internal Server Error"

	var de *domain.Error
	var fe *fiber.Error
	switch {
	case errors.As(err, &de):
		msg = de.Message
		if code == fiber.StatusInternalServerError && de.Err != nil {
			msg = de.Error()
		}
	case errors.As(err, &fe):
		code = fe.Code
		msg = fe.Message
	default:
		logging.Error("Unhandled error", "path", c.Path(), "error", err)
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg, "request_id", middleware.RequestID(c))
	return c.Status(code).JSON(fiber.Map{"detail": msg})
}
