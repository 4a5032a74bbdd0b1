package translate

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// ErrWaitTimeout means a waiting caller exhausted its wait budget before
// the translation landed.
var ErrWaitTimeout = errors.New("timed out waiting for translation")

type cacheEntry struct {
	vtt       string
	expiresAt time.Time
}

// Cache stores finished translations keyed by "episodeId:category" with a
// TTL, collapses concurrent generation requests for the same key into a
// single upstream run, and signals waiting readers the moment a document
// lands.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	waiters map[string][]chan string

	group singleflight.Group

	ttl        time.Duration
	waitBudget time.Duration
}

// NewCache creates a cache with the given entry TTL and wait budget for
// blocking consumers.
func NewCache(ttl, waitBudget time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		waiters:    make(map[string][]chan string),
		ttl:        ttl,
		waitBudget: waitBudget,
	}
}

// Get returns the cached document for key, if present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.vtt, true
}

// Put stores a finished document under key and wakes every waiter
// blocked on it.
func (c *Cache) Put(key, vtt string) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry{vtt: vtt, expiresAt: time.Now().Add(c.ttl)}
	pending := c.waiters[key]
	delete(c.waiters, key)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- vtt
	}
}

// Generate returns the cached document for key or produces it via fn.
// Concurrent calls for the same key share one fn execution; a failed run
// caches nothing, so the next caller retries.
func (c *Cache) Generate(key string, fn func() (string, error)) (string, error) {
	if vtt, ok := c.Get(key); ok {
		return vtt, nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		if vtt, ok := c.Get(key); ok {
			return vtt, nil
		}
		vtt, err := fn()
		if err != nil {
			return nil, err
		}
		c.Put(key, vtt)
		return vtt, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Wait blocks until the document under key lands, the wait budget runs
// out, or ctx is canceled. Meant for clients that requested a track whose
// generation is still in flight.
func (c *Cache) Wait(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.vtt, nil
	}
	ch := make(chan string, 1)
	c.waiters[key] = append(c.waiters[key], ch)
	c.mu.Unlock()

	timer := time.NewTimer(c.waitBudget)
	defer timer.Stop()

	select {
	case vtt := <-ch:
		return vtt, nil
	case <-timer.C:
		c.dropWaiter(key, ch)
		return "", ErrWaitTimeout
	case <-ctx.Done():
		c.dropWaiter(key, ch)
		return "", ctx.Err()
	}
}

// dropWaiter deregisters a waiter that gave up. The channel stays
// buffered so a racing Put never blocks on it.
func (c *Cache) dropWaiter(key string, ch chan string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.waiters[key]
	for i, w := range pending {
		if w == ch {
			c.waiters[key] = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	if len(c.waiters[key]) == 0 {
		delete(c.waiters, key)
	}
}
