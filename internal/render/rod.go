package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
	"report-renderer/internal/infra/logging"
)

// RodEngine renders through a go-rod controlled browser. The HTML is written
// to a temp file and loaded over file:// so relative assets resolve the way
// they would in a saved report. A browser whose connection drops is killed
// and relaunched on the next render.
type RodEngine struct {
	BrowserPath string
	NoSandbox   bool
	Timeout     time.Duration

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// Name implements Engine.
func (r *RodEngine) Name() string { return config.EngineRod }

func (r *RodEngine) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().Headless(true)
	if r.BrowserPath != "" {
		l = l.Bin(r.BrowserPath)
	}
	if r.NoSandbox {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch browser: %v", domain.ErrEngineUnavailable, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: connect browser: %v", domain.ErrEngineUnavailable, err)
	}
	r.launcher = l
	r.browser = browser
	logging.Info("Rod browser launched", "control_url", u)
	return browser, nil
}

// discard drops b if it is still the current browser.
func (r *RodEngine) discard(b *rod.Browser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b == nil || r.browser != b {
		return
	}
	r.shutdownLocked()
}

func (r *RodEngine) shutdownLocked() error {
	err := r.browser.Close()
	if r.launcher != nil {
		r.launcher.Kill()
	}
	r.browser = nil
	r.launcher = nil
	return err
}

// Render implements Engine.
func (r *RodEngine) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "report-rod-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "report.html")
	if err := os.WriteFile(path, []byte(InlineStylesheets(doc.HTML, doc.Stylesheets)), 0o600); err != nil {
		return nil, fmt.Errorf("write temp html: %w", err)
	}

	var used *rod.Browser
	return renderWithRetry(ctx, r.Name(), func() ([]byte, error) {
		browser, err := r.ensureBrowser()
		if err != nil {
			return nil, err
		}
		used = browser
		return printPage(ctx, browser, path, doc)
	}, func() error {
		r.discard(used)
		return nil
	})
}

func printPage(ctx context.Context, browser *rod.Browser, path string, doc Document) ([]byte, error) {
	page, err := browser.Page(proto.TargetCreateTarget{URL: "file://" + path})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	if doc.Options.Wait > 0 {
		select {
		case <-time.After(doc.Options.Wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	reader, err := page.PDF(rodPrintOptions(doc))
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	pdf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return pdf, nil
}

// Close stops the browser.
func (r *RodEngine) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	return r.shutdownLocked()
}

func rodPrintOptions(doc Document) *proto.PagePrintToPDF {
	scale := doc.Options.Scale
	if scale <= 0 {
		scale = 1
	}
	return &proto.PagePrintToPDF{
		PaperWidth:          floatPtr(doc.Page.WidthIn),
		PaperHeight:         floatPtr(doc.Page.HeightIn),
		MarginTop:           floatPtr(doc.Page.MarginIn),
		MarginBottom:        floatPtr(doc.Page.MarginIn),
		MarginLeft:          floatPtr(doc.Page.MarginIn),
		MarginRight:         floatPtr(doc.Page.MarginIn),
		Scale:               floatPtr(scale),
		PrintBackground:     doc.Options.PrintBackground,
		PreferCSSPageSize:   doc.Options.PreferCSSPageSize,
		DisplayHeaderFooter: doc.Options.DisplayHeaderFooter,
	}
}

func floatPtr(v float64) *float64 { return &v }
