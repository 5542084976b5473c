package render

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
)

func TestChromedpEngineWithoutPool(t *testing.T) {
	cfg := config.Default()
	cfg.PDF.ChromePoolSize = 0
	cfg.PDF.ChromePath = "/nonexistent/chrome"
	cfg.PDF.UserDataDir = t.TempDir()
	cfg.PDF.TimeoutSecs = 2

	e := NewChromedpEngine(cfg)
	assert.Equal(t, config.EngineChromedp, e.Name())

	stats := e.PoolStats()
	assert.False(t, stats.Enabled)
	assert.Equal(t, 0, stats.PoolSizeConf)

	_, err := e.Render(context.Background(), Document{HTML: "<html><body>x</body></html>"})
	require.Error(t, err)
	require.NoError(t, e.Close())
}

func TestChromedpEnginePoolIsLazy(t *testing.T) {
	cfg := config.Default()
	cfg.PDF.ChromePoolSize = 2
	cfg.PDF.UserDataDir = t.TempDir()

	e := NewChromedpEngine(cfg)
	assert.False(t, e.PoolStats().Enabled)

	pool, err := e.getPool()
	require.NoError(t, err)
	require.NotNil(t, pool)

	stats := e.PoolStats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 2, stats.Capacity)
	assert.Equal(t, 2, stats.Idle)

	require.NoError(t, e.Close())
	assert.False(t, e.PoolStats().Enabled)
}

func TestWithDeadlineUsesShorterParentDeadline(t *testing.T) {
	e := &ChromedpEngine{timeout: time.Minute}
	parent, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ctx, stop := e.withDeadline(parent, context.Background())
	defer stop()
	dl, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Less(t, time.Until(dl), time.Second)
}

func TestWithDeadlineFollowsParentCancel(t *testing.T) {
	e := &ChromedpEngine{timeout: time.Minute}
	parent, cancel := context.WithCancel(context.Background())

	ctx, stop := e.withDeadline(parent, context.Background())
	defer stop()
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context was not cancelled")
	}
}

func TestRodPrintOptions(t *testing.T) {
	doc := Document{}
	doc.Page.WidthIn, doc.Page.HeightIn, doc.Page.MarginIn = 8.27, 11.69, 0.39
	doc.Options.PrintBackground = true

	opts := rodPrintOptions(doc)
	assert.Equal(t, 8.27, *opts.PaperWidth)
	assert.Equal(t, 0.39, *opts.MarginLeft)
	assert.Equal(t, 1.0, *opts.Scale)
	assert.True(t, opts.PrintBackground)
}

func TestRenderWithRetry(t *testing.T) {
	interrupted := errors.New("websocket: close 1006 (abnormal closure)")

	t.Run("restarts and retries once after interruption", func(t *testing.T) {
		attempts, restarts := 0, 0
		pdf, err := renderWithRetry(context.Background(), "chromedp", func() ([]byte, error) {
			attempts++
			if attempts == 1 {
				return nil, interrupted
			}
			return []byte("%PDF"), nil
		}, func() error {
			restarts++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF"), pdf)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 1, restarts)
	})

	t.Run("second interruption is reported as unavailable", func(t *testing.T) {
		attempts := 0
		_, err := renderWithRetry(context.Background(), "rod", func() ([]byte, error) {
			attempts++
			return nil, interrupted
		}, func() error { return nil })
		assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
		assert.Equal(t, 2, attempts)
	})

	t.Run("document errors are not retried", func(t *testing.T) {
		attempts, restarts := 0, 0
		_, err := renderWithRetry(context.Background(), "chromedp", func() ([]byte, error) {
			attempts++
			return nil, errors.New("print to pdf: invalid paper size")
		}, func() error {
			restarts++
			return nil
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrEngineUnavailable)
		assert.Equal(t, 1, attempts)
		assert.Zero(t, restarts)
	})

	t.Run("timeouts are not retried", func(t *testing.T) {
		attempts := 0
		_, err := renderWithRetry(context.Background(), "chromedp", func() ([]byte, error) {
			attempts++
			return nil, context.DeadlineExceeded
		}, func() error { return nil })
		assert.ErrorIs(t, err, domain.ErrRenderTimeout)
		assert.Equal(t, 1, attempts)
	})

	t.Run("caller gone skips the retry", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		attempts, restarts := 0, 0
		_, err := renderWithRetry(ctx, "chromedp", func() ([]byte, error) {
			attempts++
			return nil, interrupted
		}, func() error {
			restarts++
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
		assert.Equal(t, 1, attempts)
		assert.Zero(t, restarts)
	})

	t.Run("failed restart keeps the first error", func(t *testing.T) {
		attempts := 0
		_, err := renderWithRetry(context.Background(), "chromedp", func() ([]byte, error) {
			attempts++
			return nil, interrupted
		}, func() error { return errors.New("chrome gone") })
		assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
		assert.Contains(t, err.Error(), "websocket")
		assert.Equal(t, 1, attempts)
	})
}
