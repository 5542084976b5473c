package render

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
	"report-renderer/internal/infra/chrome"
	"report-renderer/internal/infra/logging"
)

const (
	acquireTimeout  = 5 * time.Second
	settleDelay     = 200 * time.Millisecond
	fontsReadyCheck = `document.fonts ? document.fonts.ready.then(() => true) : true`
)

// ChromedpEngine renders with headless Chrome over the DevTools protocol. With
// chrome_pool_size > 0 renders share one browser through a tab pool; otherwise
// every render starts its own browser.
type ChromedpEngine struct {
	cfg     config.Config
	timeout time.Duration

	poolMu sync.Mutex
	pool   *chrome.Pool
}

// NewChromedpEngine returns an engine whose browser is started lazily.
func NewChromedpEngine(cfg config.Config) *ChromedpEngine {
	return &ChromedpEngine{
		cfg:     cfg,
		timeout: time.Duration(cfg.PDF.TimeoutSecs) * time.Second,
	}
}

// Name implements Engine.
func (e *ChromedpEngine) Name() string { return config.EngineChromedp }

func (e *ChromedpEngine) getPool() (*chrome.Pool, error) {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()

	if e.cfg.PDF.ChromePoolSize <= 0 {
		return nil, nil
	}
	if e.pool != nil {
		return e.pool, nil
	}
	pool, err := chrome.NewPool(e.cfg)
	if err != nil {
		return nil, err
	}
	e.pool = pool
	return e.pool, nil
}

// Render prints doc to PDF. An interrupted browser session restarts the pool
// and the render is retried once.
func (e *ChromedpEngine) Render(ctx context.Context, doc Document) ([]byte, error) {
	pool, err := e.getPool()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}
	if pool == nil {
		pdf, err := e.renderWithBrowser(ctx, doc)
		return pdf, classify(err)
	}

	return renderWithRetry(ctx, e.Name(), func() ([]byte, error) {
		return e.renderInPool(ctx, pool, doc)
	}, pool.Restart)
}

func (e *ChromedpEngine) renderInPool(ctx context.Context, pool *chrome.Pool, doc Document) ([]byte, error) {
	acquireCtx, acquireCancel := context.WithTimeout(ctx, acquireTimeout)
	tab, err := pool.Acquire(acquireCtx)
	acquireCancel()
	if err != nil {
		return nil, err
	}

	tabCtx, cancel := e.withDeadline(ctx, tab.Ctx)
	pdf, renderErr := printDocument(tabCtx, doc)
	cancel()

	pool.Release(tab, renderErr)
	return pdf, renderErr
}

func (e *ChromedpEngine) renderWithBrowser(ctx context.Context, doc Document) ([]byte, error) {
	dir, err := chrome.CreateProfileDir(e.cfg)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chrome.AllocatorOptions(e.cfg, dir)...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, cancel := e.withDeadline(ctx, browserCtx)
	defer cancel()
	return printDocument(runCtx, doc)
}

// withDeadline bounds a chromedp context by the configured timeout and by the
// caller's context, which chromedp contexts do not inherit.
func (e *ChromedpEngine) withDeadline(parent, chromeCtx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	if dl, ok := parent.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	ctx, cancel := context.WithTimeout(chromeCtx, timeout)
	stop := context.AfterFunc(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// PoolStats reports the tab pool state; Enabled is false without a pool.
func (e *ChromedpEngine) PoolStats() chrome.Stats {
	e.poolMu.Lock()
	pool := e.pool
	e.poolMu.Unlock()
	if pool == nil {
		return chrome.Stats{PoolSizeConf: e.cfg.PDF.ChromePoolSize}
	}
	return pool.Stats()
}

// Close shuts the pooled browser down.
func (e *ChromedpEngine) Close() error {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
	return nil
}

func printDocument(ctx context.Context, doc Document) ([]byte, error) {
	html := InlineStylesheets(doc.HTML, doc.Stylesheets)
	opts := doc.Options

	var pdfBuf []byte
	actions := []chromedp.Action{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		waitForRenderReady(opts.Wait),
		chromedp.ActionFunc(func(ctx context.Context) error {
			scale := opts.Scale
			if scale <= 0 {
				scale = 1
			}
			var err error
			pdfBuf, _, err = page.PrintToPDF().
				WithPrintBackground(opts.PrintBackground).
				WithScale(scale).
				WithPreferCSSPageSize(opts.PreferCSSPageSize).
				WithDisplayHeaderFooter(opts.DisplayHeaderFooter).
				WithPaperWidth(doc.Page.WidthIn).
				WithPaperHeight(doc.Page.HeightIn).
				WithMarginTop(doc.Page.MarginIn).
				WithMarginBottom(doc.Page.MarginIn).
				WithMarginLeft(doc.Page.MarginIn).
				WithMarginRight(doc.Page.MarginIn).
				Do(ctx)
			return err
		}),
	}

	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, err
	}
	return pdfBuf, nil
}

// waitForRenderReady waits for web fonts, then lets layout settle for wait
// (or a short default).
func waitForRenderReady(wait time.Duration) chromedp.Action {
	if wait <= 0 {
		wait = settleDelay
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var ready bool
		err := chromedp.Evaluate(fontsReadyCheck, &ready, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}).Do(ctx)
		if err != nil {
			logging.Debug("fonts readiness check failed", "error", err)
		}
		return chromedp.Sleep(wait).Do(ctx)
	})
}
