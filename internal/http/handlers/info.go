package handlers

import (
	"github.com/gofiber/fiber/v2"

	"report-renderer/internal/render"
)

// Root describes the service and its endpoints.
func (h *Handlers) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "SEO Report Renderer",
		"version": h.version,
		"engine":  h.svc.Engine().Name(),
		"endpoints": fiber.Map{
			"health":       "GET /health",
			"generate_pdf": "POST /generate-pdf",
			"render":       "POST /render",
			"pdf_base64":   "POST /generate-pdf-base64",
			"preview":      "POST /render-preview",
			"validate":     "POST /validate-html",
			"chrome_stats": "GET /ops/chrome/stats",
		},
	})
}

// Health reports liveness.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(h.svc.Health())
}

// ChromeStats exposes the Chrome tab pool usage. Other engines report the
// pool as disabled.
func (h *Handlers) ChromeStats(c *fiber.Ctx) error {
	engine := render.Unwrap(h.svc.Engine())
	ce, ok := engine.(*render.ChromedpEngine)
	if !ok {
		return c.JSON(fiber.Map{
			"enabled":        false,
			"engine":         engine.Name(),
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": h.cfg.PDF.ChromePoolSize,
			"timeout_secs":   h.cfg.PDF.TimeoutSecs,
			"restarts":       0,
		})
	}

	s := ce.PoolStats()
	return c.JSON(fiber.Map{
		"enabled":        s.Enabled,
		"engine":         ce.Name(),
		"capacity":       s.Capacity,
		"idle":           s.Idle,
		"in_use":         s.InUse,
		"pool_size_conf": s.PoolSizeConf,
		"profile_dir":    s.ProfileDir,
		"timeout_secs":   h.cfg.PDF.TimeoutSecs,
		"restarts":       s.Restarts,
		"last_restart":   s.LastRestart,
	})
}
