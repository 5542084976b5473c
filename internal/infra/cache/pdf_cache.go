// Package cache stores rendered PDFs in Redis keyed by a digest of everything
// that influences the output.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"report-renderer/internal/infra/logging"
)

const (
	keyPrefix   = "pdfcache:"
	opTimeout   = 1 * time.Second
	fallbackTTL = 1 * time.Minute
)

// PDFCache is a Redis-backed byte cache with a fixed TTL.
type PDFCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps an existing client. A non-positive ttl falls back to one minute.
func New(rdb *redis.Client, ttl time.Duration) *PDFCache {
	if ttl <= 0 {
		ttl = fallbackTTL
	}
	return &PDFCache{rdb: rdb, ttl: ttl}
}

// Dial connects to addr/db and pings it. The client is closed on failure.
func Dial(ctx context.Context, addr string, db int, ttl time.Duration) (*PDFCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return New(rdb, ttl), nil
}

// Key digests parts into a cache key. Parts are length-prefixed so adjacent
// values cannot collide.
func Key(parts ...string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write([]byte(p))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached bytes, or nil on a miss.
func (c *PDFCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cached, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "key", key, "error", err)
		return nil, err
	}
	logging.Debug("PDF cache hit", "key", key)
	return cached, nil
}

// Set stores data under key with the cache TTL.
func (c *PDFCache) Set(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Close closes the underlying client.
func (c *PDFCache) Close() error {
	return c.rdb.Close()
}
