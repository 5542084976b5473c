package report

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
	"report-renderer/internal/infra/cache"
	"report-renderer/internal/infra/logging"
	"report-renderer/internal/render"
)

const pageEstimateBytes = 50 * 1024

// Cache is the subset of the PDF cache the service needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type requestIDKey struct{}

// WithRequestID attaches the request id used in log lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Service turns SEO report HTML into print-ready PDFs.
type Service struct {
	cfg    config.Config
	engine render.Engine
	cache  Cache
	now    func() time.Time
}

// NewService builds a Service. c may be nil to disable caching.
func NewService(cfg config.Config, engine render.Engine, c Cache) *Service {
	return &Service{cfg: cfg, engine: engine, cache: c, now: time.Now}
}

// Engine returns the configured rendering engine.
func (s *Service) Engine() render.Engine { return s.engine }

// Render validates, normalizes and renders req.
func (s *Service) Render(ctx context.Context, req domain.RenderRequest) (domain.RenderResult, error) {
	reqID := requestID(ctx)
	scanID := req.CorrelationID()

	if err := s.checkSize(req.HTML); err != nil {
		logging.Warn("Render request rejected", "stage", "validate", "html_bytes", len(req.HTML), "request_id", reqID, "error", err)
		return domain.RenderResult{}, err
	}
	page, err := ResolvePage(s.cfg, req)
	if err != nil {
		logging.Warn("Render request rejected", "stage", "validate", "html_bytes", len(req.HTML), "request_id", reqID, "error", err)
		return domain.RenderResult{}, err
	}
	opts, err := ParseRenderOptions(req.Options)
	if err != nil {
		logging.Warn("Render request rejected", "stage", "validate", "html_bytes", len(req.HTML), "request_id", reqID, "error", err)
		return domain.RenderResult{}, err
	}

	html := Normalize(req.HTML)
	doc := render.Document{
		HTML:        html,
		Stylesheets: []string{PageStylesheet(page)},
		Page:        page,
		Options:     opts,
	}

	now := s.now().UTC()
	result := domain.RenderResult{
		Filename:    Filename(req.Filename, scanID, now),
		GeneratedAt: now,
		ScanID:      scanID,
	}

	var key string
	if s.cache != nil {
		key = cache.Key(html, cacheFingerprint(page, opts), s.engine.Name())
		if cached, err := s.cache.Get(ctx, key); err == nil && len(cached) > 0 {
			logging.Info("PDF served from cache", "filename", result.Filename, "pdf_bytes", len(cached), "request_id", reqID, "scan_id", scanID)
			return s.finish(result, cached, true), nil
		}
	}

	start := time.Now()
	pdf, err := s.engine.Render(ctx, doc)
	if err == nil && len(pdf) == 0 {
		err = errors.New("engine returned an empty document")
	}
	if err != nil {
		logging.Error("PDF generation failed", "stage", "render", "engine", s.engine.Name(), "html_bytes", len(html), "request_id", reqID, "scan_id", scanID, "error", err)
		return domain.RenderResult{}, domain.RenderFailure(err)
	}
	if limit := s.cfg.Limits.MaxPDFBytes; limit > 0 && len(pdf) > limit {
		logging.Error("PDF exceeds allowed size", "stage", "render", "pdf_bytes", len(pdf), "max_pdf_bytes", limit, "request_id", reqID)
		return domain.RenderResult{}, domain.TooLarge(domain.ErrRenderFailure, "PDF exceeds allowed size")
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, pdf)
	}

	logging.Info("PDF generated",
		"filename", result.Filename,
		"engine", s.engine.Name(),
		"html_bytes", len(html),
		"pdf_bytes", len(pdf),
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", reqID,
		"scan_id", scanID,
	)
	return s.finish(result, pdf, false), nil
}

func (s *Service) finish(r domain.RenderResult, pdf []byte, cached bool) domain.RenderResult {
	r.PDF = pdf
	r.SizeBytes = len(pdf)
	r.EstimatedPages = EstimatePages(len(pdf))
	r.Cached = cached
	return r
}

// RenderBase64 runs the Render pipeline and encodes the PDF for JSON transport.
func (s *Service) RenderBase64(ctx context.Context, req domain.RenderRequest) (domain.Base64Result, error) {
	res, err := s.Render(ctx, req)
	if err != nil {
		return domain.Base64Result{}, err
	}
	return domain.Base64Result{
		PDFBase64:      base64.StdEncoding.EncodeToString(res.PDF),
		Filename:       res.Filename,
		SizeBytes:      res.SizeBytes,
		GeneratedAt:    res.GeneratedAt.Format(time.RFC3339),
		ScanID:         res.ScanID,
		EstimatedPages: res.EstimatedPages,
	}, nil
}

// Validate reports structural problems in html without rendering it.
func (s *Service) Validate(html string) domain.ValidationReport {
	return Validate(html, s.cfg.Limits.MinHTMLBytes)
}

// Health reports liveness with the current UTC time.
func (s *Service) Health() HealthStatus {
	return HealthStatus{Status: "healthy", Timestamp: s.now().UTC().Format(time.RFC3339)}
}

func (s *Service) checkSize(html string) error {
	trimmed := strings.TrimSpace(html)
	if trimmed == "" {
		return domain.InvalidInput("HTML content is required")
	}
	if minBytes := s.cfg.Limits.MinHTMLBytes; len(trimmed) < minBytes {
		return domain.InvalidInput(fmt.Sprintf("HTML content is too short (minimum %d bytes)", minBytes))
	}
	if maxBytes := s.cfg.Limits.MaxHTMLBytes; maxBytes > 0 && len(html) > maxBytes {
		return domain.TooLarge(domain.ErrInvalidInput, fmt.Sprintf("HTML input exceeds %d bytes", maxBytes))
	}
	return nil
}

// EstimatePages is a rough page count for a PDF of size bytes.
func EstimatePages(size int) int {
	pages := (size + pageEstimateBytes - 1) / pageEstimateBytes
	if pages < 1 {
		return 1
	}
	return pages
}
