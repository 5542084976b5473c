// Package handlers implements the HTTP endpoints of the renderer.
package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
	"report-renderer/internal/http/middleware"
	"report-renderer/internal/infra/logging"
	"report-renderer/internal/report"
)

// ScanIDHeader carries the caller's correlation id.
const ScanIDHeader = "X-Scan-ID"

// Handlers binds the report service to Fiber routes.
type Handlers struct {
	svc     *report.Service
	cfg     config.Config
	version string
}

// New returns the handler set.
func New(svc *report.Service, cfg config.Config, version string) *Handlers {
	return &Handlers{svc: svc, cfg: cfg, version: version}
}

func requestContext(c *fiber.Ctx) context.Context {
	return report.WithRequestID(c.UserContext(), middleware.RequestID(c))
}

// parseRenderRequest accepts JSON and form-encoded bodies.
func parseRenderRequest(c *fiber.Ctx) (domain.RenderRequest, error) {
	var req domain.RenderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			logging.Warn("Malformed request body", "stage", "validate", "body_bytes", len(c.Body()), "request_id", middleware.RequestID(c), "error", err)
			return req, domain.InvalidInput("Invalid request body")
		}
	}
	if req.ScanID == "" {
		req.ScanID = strings.TrimSpace(c.Get(ScanIDHeader))
	}
	return req, nil
}

// GeneratePDF renders the posted HTML and streams the PDF back.
func (h *Handlers) GeneratePDF(c *fiber.Ctx) error {
	req, err := parseRenderRequest(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Render(requestContext(c), req)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+res.Filename+`"`)
	c.Set("X-Generated-At", res.GeneratedAt.Format(time.RFC3339))
	c.Set("X-PDF-Size", strconv.Itoa(res.SizeBytes))
	if res.Cached {
		c.Set("X-Cache", "HIT")
	} else {
		c.Set("X-Cache", "MISS")
	}
	if res.ScanID != "" {
		c.Set(ScanIDHeader, res.ScanID)
	}
	return c.Send(res.PDF)
}

// GeneratePDFBase64 renders the posted HTML and returns it base64-encoded in JSON.
func (h *Handlers) GeneratePDFBase64(c *fiber.Ctx) error {
	req, err := parseRenderRequest(c)
	if err != nil {
		return err
	}
	res, err := h.svc.RenderBase64(requestContext(c), req)
	if err != nil {
		return err
	}
	if res.ScanID != "" {
		c.Set(ScanIDHeader, res.ScanID)
	}
	return c.JSON(res)
}

// ValidateHTML reports structural problems without rendering.
func (h *Handlers) ValidateHTML(c *fiber.Ctx) error {
	req, err := parseRenderRequest(c)
	if err != nil {
		return err
	}
	return c.JSON(h.svc.Validate(req.HTML))
}
