package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-renderer/internal/infra/ratelimit"
)

// budgets maps API keys to their per-interval request budget.
type budgets map[string]int

func (b budgets) RateLimit(token string) int { return b[token] }

// renderApp mimics the render route behind the token limiter. The key is
// taken from X-API-Key as if keyauth had already accepted it.
func renderApp(cfg RateLimitConfig, rater TokenRater, store fiber.Storage, cache *LimiterCache) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if key := c.Get("X-API-Key"); key != "" {
			c.Locals(APIKeyLocal, key)
		}
		return c.Next()
	})
	app.Use(TokenRateLimit(cfg, rater, store, cache))
	app.Use(UserRateLimit(cfg, store))
	app.Post("/generate-pdf", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func postPDF(t *testing.T, app *fiber.App, key, agent string) *http.Response {
	t.Helper()
	req := newRequest(http.MethodPost, "/generate-pdf", "")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if agent != "" {
		req.Header.Set(fiber.HeaderUserAgent, agent)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func statuses(t *testing.T, app *fiber.App, key, agent string, n int) []int {
	t.Helper()
	out := make([]int, n)
	for i := range out {
		out[i] = postPDF(t, app, key, agent).StatusCode
	}
	return out
}

func TestTokenRateLimit_BudgetsArePerKey(t *testing.T) {
	cfg := RateLimitConfig{RateInterval: time.Hour, EnableTokenRateLimiter: true}
	app := renderApp(cfg, budgets{"ci-bot": 2, "dashboard": 2, "batch": 1}, memoryStorage.New(), NewLimiterCache())

	assert.Equal(t, []int{200, 200, 429}, statuses(t, app, "ci-bot", "", 3))
	// Same budget size, separate counter.
	assert.Equal(t, []int{200, 200, 429}, statuses(t, app, "dashboard", "", 3))
	assert.Equal(t, []int{200, 429}, statuses(t, app, "batch", "", 2))

	resp := postPDF(t, app, "batch", "")
	assert.Equal(t, "Too many requests", detail(t, resp))
}

func TestTokenRateLimit_Bypasses(t *testing.T) {
	cases := map[string]struct {
		cfg   RateLimitConfig
		rater TokenRater
		key   string
	}{
		"unlimited key": {cfg: RateLimitConfig{RateInterval: time.Hour, EnableTokenRateLimiter: true}, rater: budgets{"ops": 0}, key: "ops"},
		"anonymous":     {cfg: RateLimitConfig{RateInterval: time.Hour, EnableTokenRateLimiter: true}, rater: budgets{}, key: ""},
		"disabled":      {cfg: RateLimitConfig{RateInterval: time.Hour}, rater: budgets{"ci-bot": 1}, key: "ci-bot"},
		"no rater":      {cfg: RateLimitConfig{RateInterval: time.Hour, EnableTokenRateLimiter: true}, key: "ci-bot"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			app := renderApp(tc.cfg, tc.rater, memoryStorage.New(), nil)
			assert.Equal(t, []int{200, 200, 200, 200}, statuses(t, app, tc.key, "", 4))
		})
	}
}

func TestLimiterCache_BuildsOncePerLimit(t *testing.T) {
	lc := NewLimiterCache()
	builds := 0
	build := func() fiber.Handler {
		builds++
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	lc.get(5, build)
	lc.get(5, build)
	lc.get(10, build)
	assert.Equal(t, 2, builds)
}

func TestUserRateLimit_ClientsAreIsolated(t *testing.T) {
	cfg := RateLimitConfig{RateInterval: time.Hour, EnableUserLimiter: true, UserLimit: 1}
	app := renderApp(cfg, nil, memoryStorage.New(), nil)

	assert.Equal(t, []int{200, 429}, statuses(t, app, "", "report-scheduler/1.0", 2))
	assert.Equal(t, []int{200, 429}, statuses(t, app, "", "curl/8.5", 2))
	// Keyed callers are not counted against the client budget.
	assert.Equal(t, []int{200, 200}, statuses(t, app, "ci-bot", "curl/8.5", 2))
}

func TestUserRateLimit_DisabledWithoutLimit(t *testing.T) {
	cfg := RateLimitConfig{RateInterval: time.Hour, EnableUserLimiter: true}
	app := renderApp(cfg, nil, memoryStorage.New(), nil)
	assert.Equal(t, []int{200, 200, 200}, statuses(t, app, "", "curl/8.5", 3))
}

func TestTokenRateLimit_ReplicasShareRedisBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := RateLimitConfig{RateInterval: time.Hour, EnableTokenRateLimiter: true}
	rater := budgets{"ci-bot": 3}

	first := renderApp(cfg, rater, ratelimit.NewStore(ratelimit.RedisConfig{Addr: mr.Addr()}), nil)
	second := renderApp(cfg, rater, ratelimit.NewStore(ratelimit.RedisConfig{Addr: mr.Addr()}), nil)

	assert.Equal(t, []int{200, 200}, statuses(t, first, "ci-bot", "", 2))
	assert.Equal(t, []int{200, 429}, statuses(t, second, "ci-bot", "", 2))
}
