package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"report-renderer/internal/config"
)

var (
	// ErrPoolDisabled is returned by NewPool when chrome_pool_size is 0.
	ErrPoolDisabled = errors.New("chrome pool disabled")
	// ErrPoolClosed is returned by Acquire and Restart after Close.
	ErrPoolClosed = errors.New("chrome pool closed")
)

// Tab is a browser tab leased from the pool.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// Pool shares one headless Chrome process and bounds the number of tabs
// rendering concurrently.
type Pool struct {
	cfg config.Config

	mu            sync.Mutex
	sem           chan struct{}
	profileDir    string
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool
	restarts      int
	lastRestart   time.Time
}

// Stats is a snapshot of pool usage.
type Stats struct {
	Enabled      bool      `json:"enabled"`
	Capacity     int       `json:"capacity"`
	Idle         int       `json:"idle"`
	InUse        int       `json:"in_use"`
	PoolSizeConf int       `json:"pool_size_conf"`
	ProfileDir   string    `json:"profile_dir"`
	Restarts     int       `json:"restarts"`
	LastRestart  time.Time `json:"last_restart,omitempty"`
}

// NewPool starts the allocator for a pool of cfg.PDF.ChromePoolSize tabs.
// Chrome itself is launched lazily by the first render.
func NewPool(cfg config.Config) (*Pool, error) {
	size := cfg.PDF.ChromePoolSize
	if size <= 0 {
		return nil, ErrPoolDisabled
	}

	p := &Pool{cfg: cfg, sem: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	if err := p.start(); err != nil {
		return nil, err
	}
	return p, nil
}

// start creates a fresh profile directory and browser context. Callers hold p.mu
// or own p exclusively.
func (p *Pool) start() error {
	dir, err := CreateProfileDir(p.cfg)
	if err != nil {
		return err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(p.cfg, dir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p.profileDir = dir
	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	return nil
}

func (p *Pool) stop() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.browserCancel = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

// AllocatorOptions returns the exec allocator flags used for every Chrome process.
func AllocatorOptions(cfg config.Config, userDataDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(userDataDir),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.PDF.ChromePath))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// CreateProfileDir makes a throwaway Chrome profile under cfg.PDF.UserDataDir
// (or the system temp dir).
func CreateProfileDir(cfg config.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return "", fmt.Errorf("cannot create chrome profile base dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(base, "chromedata-*")
	if err != nil {
		return "", fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	return dir, nil
}

// Acquire waits for a free slot and opens a new tab on the shared browser.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem <- struct{}{}
		return nil, ErrPoolClosed
	}
	tabCtx, cancel := chromedp.NewContext(p.browserCtx)
	return &Tab{Ctx: tabCtx, cancel: cancel}, nil
}

// Release closes the tab and frees its slot. renderErr is the outcome of the
// work done in the tab; an interrupted session is logged by the caller, which
// decides whether to Restart.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab != nil && tab.cancel != nil {
		tab.cancel()
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Restart replaces the browser process and its profile directory.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.stop()
	if err := p.start(); err != nil {
		return err
	}
	p.restarts++
	p.lastRestart = time.Now().UTC()
	return nil
}

// Close shuts the browser down and removes the profile. It is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.stop()
}

// Stats reports capacity and usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := cap(p.sem)
	idle := len(p.sem)
	return Stats{
		Enabled:      !p.closed && capacity > 0,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.PDF.ChromePoolSize,
		ProfileDir:   p.profileDir,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
}

// IsSessionInterrupted reports whether err means the browser or tab went away
// mid-render, as opposed to a rendering error in the document itself.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "context canceled", "invalid context", "websocket", "connection reset", "broken pipe", "session closed", "closed network connection", "connection closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
