package chrome

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-renderer/internal/config"
)

// newTestPool builds a real pool whose browser is never launched: tabs are
// only contexts until something runs in them.
func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	var cfg config.Config
	cfg.PDF.ChromePoolSize = size
	cfg.PDF.ChromePath = "/bin/true"
	cfg.PDF.UserDataDir = t.TempDir()
	p, err := NewPool(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestNewPool_SizedFromConfig(t *testing.T) {
	p := newTestPool(t, 3)

	st := p.Stats()
	assert.True(t, st.Enabled)
	assert.Equal(t, 3, st.Capacity)
	assert.Equal(t, 3, st.Idle)
	assert.Equal(t, 3, st.PoolSizeConf)
	assert.DirExists(t, st.ProfileDir)
	assert.Equal(t, p.cfg.PDF.UserDataDir, filepath.Dir(st.ProfileDir))

	_, err := NewPool(config.Config{})
	assert.ErrorIs(t, err, ErrPoolDisabled)
}

func TestPool_BoundsConcurrentRenders(t *testing.T) {
	p := newTestPool(t, 2)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			tab, err := p.Acquire(ctx)
			if !assert.NoError(t, err) {
				return
			}
			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			p.Release(tab, nil)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 2, p.Stats().Idle)
}

func TestPool_WaitingRenderGivesUpWithItsContext(t *testing.T) {
	p := newTestPool(t, 1)
	busy, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().InUse)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Release(busy, errors.New("print failed"))
	tab, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(tab, nil)
}

func TestPool_ReleaseCancelsTab(t *testing.T) {
	p := newTestPool(t, 1)
	tab, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, chromedp.FromContext(tab.Ctx))

	p.Release(tab, nil)
	assert.Error(t, tab.Ctx.Err())

	// Extra releases never overfill the slots.
	p.Release(nil, nil)
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestPool_CloseWakesWaiters(t *testing.T) {
	p := newTestPool(t, 1)
	busy, err := p.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		done <- err
	}()

	p.Close()
	p.Release(busy, nil)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("waiting acquire did not return after close")
	}
	assert.False(t, p.Stats().Enabled)
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_RestartSwapsProfile(t *testing.T) {
	p := newTestPool(t, 2)
	before := p.Stats()

	require.NoError(t, p.Restart())

	after := p.Stats()
	assert.Equal(t, 1, after.Restarts)
	assert.False(t, after.LastRestart.IsZero())
	assert.NotEqual(t, before.ProfileDir, after.ProfileDir)
	assert.NoDirExists(t, before.ProfileDir)
	assert.DirExists(t, after.ProfileDir)
	assert.Equal(t, 2, after.Idle)

	p.Close()
	assert.NoDirExists(t, after.ProfileDir)
	assert.ErrorIs(t, p.Restart(), ErrPoolClosed)
}

func TestCreateProfileDir(t *testing.T) {
	var cfg config.Config
	cfg.PDF.UserDataDir = filepath.Join(t.TempDir(), "nested", "profiles")
	dir, err := CreateProfileDir(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.PDF.UserDataDir, filepath.Dir(dir))

	cfg.PDF.UserDataDir = ""
	dir, err = CreateProfileDir(cfg)
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	assert.Equal(t, filepath.Clean(os.TempDir()), filepath.Dir(dir))

	cfg.PDF.UserDataDir = "/dev/null/profiles"
	_, err = CreateProfileDir(cfg)
	assert.Error(t, err)
}

func TestAllocatorOptions(t *testing.T) {
	var cfg config.Config
	base := len(AllocatorOptions(cfg, "/tmp/p"))
	assert.Greater(t, base, len(chromedp.DefaultExecAllocatorOptions))

	cfg.PDF.ChromePath = "/usr/bin/chromium"
	cfg.PDF.ChromeNoSandbox = true
	assert.Len(t, AllocatorOptions(cfg, "/tmp/p"), base+2)
}

func TestIsSessionInterrupted(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"websocket: close 1006 (abnormal closure)", true},
		{"target closed", true},
		{"read tcp 127.0.0.1:9222: use of closed network connection", true},
		{"cdp connection closed", true},
		{"write: broken pipe", true},
		{"print to pdf: invalid paper size", false},
		{"Could not parse margin", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsSessionInterrupted(errors.New(tc.msg)), tc.msg)
	}
	assert.False(t, IsSessionInterrupted(nil))
	assert.True(t, IsSessionInterrupted(context.Canceled))
	assert.True(t, IsSessionInterrupted(context.DeadlineExceeded))
}
