// Package middleware assembles the Fiber middleware chain.
package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/rs/xid"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
	"report-renderer/internal/infra/logging"
	"report-renderer/internal/tokens"
)

// Options carries the optional collaborators of the chain.
type Options struct {
	// Tokens enables API-key authentication when non-nil.
	Tokens *tokens.Cache
	// Store holds limiter counters; nil means in-memory.
	Store fiber.Storage
}

// RateLimitConfigFrom derives limiter settings from the service config.
func RateLimitConfigFrom(cfg config.Config) RateLimitConfig {
	return RateLimitConfig{
		RateInterval:           cfg.RateLimiter.Interval,
		EnableTokenRateLimiter: cfg.Auth.Enabled,
		EnableUserLimiter:      cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0,
		UserLimit:              cfg.RateLimiter.UserLimit,
	}
}

// RequestID returns the request id assigned to c.
func RequestID(c *fiber.Ctx) string {
	if id := c.GetRespHeader(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}

// Register attaches the global middleware to app.
func Register(app *fiber.App, cfg config.Config, opts Options) {
	store := opts.Store
	if store == nil {
		store = memoryStorage.New()
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, X-API-Key, X-Request-ID, X-Scan-ID",
		ExposeHeaders: "Content-Disposition, X-Request-ID, X-Generated-At, X-PDF-Size, X-Cache, X-Scan-ID",
	}))

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/ops/livez",
		ReadinessEndpoint: "/ops/readyz",
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return opts.Tokens == nil || opts.Tokens.Ready()
		},
	}))

	if opts.Tokens != nil {
		app.Use(apiKeyAuth(opts.Tokens))
	}

	rl := RateLimitConfigFrom(cfg)
	var rater TokenRater
	if opts.Tokens != nil {
		rater = opts.Tokens
	}
	app.Use(TokenRateLimit(rl, rater, store, NewLimiterCache()))
	app.Use(UserRateLimit(rl, store))

	app.Use(func(c *fiber.Ctx) error {
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", RequestID(c))
		return c.Next()
	})
}

// RouteScope returns the token scope path requires; "" means any valid key.
func RouteScope(path string) string {
	switch {
	case strings.HasPrefix(path, "/ops/"):
		return tokens.ScopeOps
	case path == "/validate-html":
		return tokens.ScopeValidate
	case path == "/" || path == "/health":
		return ""
	}
	return tokens.ScopeRender
}

// apiKeyAuth validates X-API-Key against the token cache. Requests without
// the header are served anonymously.
func apiKeyAuth(cache *tokens.Cache) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: APIKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if !cache.Ready() {
				return false, domain.ErrTokenStoreNotReady
			}
			if !cache.Valid(key) {
				return false, domain.ErrInvalidAPIKey
			}
			if scope := RouteScope(c.Path()); scope != "" && !cache.Allowed(key, scope) {
				return false, domain.ErrScopeDenied
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may call ErrorHandler with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			switch {
			case errors.Is(err, domain.ErrTokenStoreNotReady):
				status = fiber.StatusServiceUnavailable
			case errors.Is(err, domain.ErrScopeDenied):
				status = fiber.StatusForbidden
			}
			logging.Warn("API key rejected", "path", c.Path(), "status", status, "error", err)
			return c.Status(status).JSON(fiber.Map{"detail": err.Error()})
		},
	})
}
