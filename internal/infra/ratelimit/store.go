// Package ratelimit provides the storage shared by the Fiber limiters.
package ratelimit

import (
	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"

	"report-renderer/internal/infra/logging"
)

// RedisConfig selects the Redis database holding limiter counters.
type RedisConfig struct {
	Addr string
	DB   int
}

// NewStore returns Redis-backed storage when cfg.Addr is reachable and
// in-memory storage otherwise. It never returns nil.
func NewStore(cfg RedisConfig) (store fiber.Storage) {
	if cfg.Addr == "" {
		logging.Info("Using in-memory storage for rate limiting")
		return memoryStorage.New()
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Redis limiter store unavailable, falling back to memory", "addr", cfg.Addr, "panic", r)
			store = memoryStorage.New()
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Addr},
		Database: cfg.DB,
	})
	logging.Info("Using Redis for rate limiting", "addr", cfg.Addr, "db", cfg.DB)
	return store
}
