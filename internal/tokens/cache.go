// Package tokens keeps the API tokens allowed to call the service in memory.
package tokens

import (
	"sync"
)

// Scope lists the capabilities granted to a token.
type Scope map[string]bool

// Scope names checked by the HTTP layer.
const (
	ScopeRender   = "render"
	ScopeValidate = "validate"
	ScopeOps      = "ops"
)

// Entry is one API token's settings.
type Entry struct {
	// RateLimit is the number of requests allowed per limiter interval; 0
	// means unlimited.
	RateLimit int
	Scope     Scope
}

// Cache is a concurrency-safe token table. It is not Ready until the first
// successful Replace.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache returns an empty, not yet ready cache.
func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps the whole table.
func (c *Cache) Replace(entries map[string]Entry) {
	next := make(map[string]Entry, len(entries))
	for k, v := range entries {
		next[k] = v
	}
	c.mu.Lock()
	c.entries = next
	c.mu.Unlock()
}

// Ready reports whether the table was loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries != nil
}

// Valid reports whether token is known.
func (c *Cache) Valid(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[token]
	return ok
}

// RateLimit returns the token's limit, or 0 for unknown tokens.
func (c *Cache) RateLimit(token string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[token].RateLimit
}

// Allowed reports whether token carries scope. Tokens without any scope are
// allowed everything.
func (c *Cache) Allowed(token, scope string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[token]
	if !ok {
		return false
	}
	if len(e.Scope) == 0 {
		return true
	}
	return e.Scope[scope]
}

// Len returns the number of loaded tokens.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
