// Package render hides the HTML-to-PDF engine behind a small interface so the
// request handling layer never depends on a concrete browser or converter.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
	"report-renderer/internal/infra/chrome"
	"report-renderer/internal/infra/logging"
)

// Document is everything an engine needs to produce one PDF.
type Document struct {
	HTML        string
	Stylesheets []string
	Page        domain.PageOptions
	Options     domain.RenderOptions
}

// Engine renders HTML documents to PDF bytes.
type Engine interface {
	Name() string
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// EngineFunc adapts a function to an Engine.
type EngineFunc func(ctx context.Context, doc Document) ([]byte, error)

// Name implements Engine.
func (f EngineFunc) Name() string { return "func" }

// Render implements Engine.
func (f EngineFunc) Render(ctx context.Context, doc Document) ([]byte, error) {
	if f == nil {
		return nil, errors.New("render engine func is nil")
	}
	return f(ctx, doc)
}

// New builds the engine selected by cfg.PDF.Engine, capped at
// cfg.PDF.MaxConcurrent concurrent renders.
func New(cfg config.Config) (Engine, error) {
	timeout := time.Duration(cfg.PDF.TimeoutSecs) * time.Second

	var engine Engine
	switch cfg.PDF.Engine {
	case config.EngineChromedp, "":
		engine = NewChromedpEngine(cfg)
	case config.EngineRod:
		engine = &RodEngine{
			BrowserPath: cfg.PDF.ChromePath,
			NoSandbox:   cfg.PDF.ChromeNoSandbox,
			Timeout:     timeout,
		}
	case config.EngineCommand:
		engine = &CommandEngine{
			Command: cfg.PDF.Command.Path,
			Args:    cfg.PDF.Command.Args,
			Timeout: timeout,
		}
	default:
		return nil, fmt.Errorf("unsupported render engine %q", cfg.PDF.Engine)
	}

	if cfg.PDF.MaxConcurrent > 0 {
		engine = NewLimited(engine, int64(cfg.PDF.MaxConcurrent))
	}
	return engine, nil
}

// Close releases engine resources when the engine holds any.
func Close(e Engine) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Unwrap returns the innermost engine of a wrapped engine chain.
func Unwrap(e Engine) Engine {
	for {
		w, ok := e.(interface{ Unwrap() Engine })
		if !ok {
			return e
		}
		e = w.Unwrap()
	}
}

// classify maps low-level engine errors onto the domain error kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRenderTimeout), errors.Is(err, domain.ErrEngineUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrRenderTimeout, err)
	case chrome.IsSessionInterrupted(err):
		return fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}
	return err
}

// renderWithRetry runs attempt and, when the browser session was interrupted
// while ctx is still live, calls restart and runs attempt once more.
func renderWithRetry(ctx context.Context, engine string, attempt func() ([]byte, error), restart func() error) ([]byte, error) {
	pdf, err := attempt()
	if err == nil || ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || !chrome.IsSessionInterrupted(err) {
		return pdf, classify(err)
	}

	logging.Warn("Browser session interrupted; restarting and retrying once", "engine", engine, "error", err)
	if rerr := restart(); rerr != nil {
		logging.Error("Browser restart failed", "engine", engine, "error", rerr)
		return nil, classify(err)
	}
	pdf, err = attempt()
	return pdf, classify(err)
}

var doctypePattern = regexp.MustCompile(`(?i)^\s*<!doctype\b[^>]*>`)

// InlineStylesheets adds each stylesheet as its own <style> block after every
// style block already in the document, so engine sheets win the cascade. With
// no style block they go before </head>, else after the doctype.
func InlineStylesheets(html string, sheets []string) string {
	for _, css := range sheets {
		if css == "" {
			continue
		}
		block := "<style>\n" + strings.ReplaceAll(css, "</", `<\/`) + "\n</style>"
		lower := strings.ToLower(html)
		head := strings.LastIndex(lower, "</head>")
		if idx := strings.LastIndex(lower, "</style>"); idx != -1 && idx > head {
			end := idx + len("</style>")
			html = html[:end] + block + html[end:]
			continue
		}
		if head != -1 {
			html = html[:head] + block + html[head:]
			continue
		}
		if loc := doctypePattern.FindStringIndex(html); loc != nil {
			html = html[:loc[1]] + "\n" + block + html[loc[1]:]
			continue
		}
		html = block + html
	}
	return html
}
