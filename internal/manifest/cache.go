package manifest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/logging"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/metrics"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/watch"
)

// BuildSource produces manifests; satisfied by *Builder and by counting
// fixtures in tests.
type BuildSource interface {
	Build(ctx context.Context, id string) (*Manifest, error)
}

// PackDirer resolves a pack id to its directory for watch arming.
type PackDirer interface {
	Dir(id string) (string, error)
}

// entry is one cached manifest with its two expiry bounds.
type entry struct {
	manifest       *Manifest
	absoluteExpiry time.Time
	lastAccess     time.Time
}

func (e *entry) expired(now time.Time, sliding time.Duration) bool {
	return now.After(e.absoluteExpiry) || now.After(e.lastAccess.Add(sliding))
}

// Cache wraps a BuildSource with single-flight deduplication, absolute and
// sliding expiry, and filesystem-change invalidation per pack.
type Cache struct {
	source  BuildSource
	dirs    PackDirer
	watcher watch.Factory
	ttl     time.Duration
	sliding time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	// gens invalidates in-flight builds: a build only stores its result if
	// the key's generation is unchanged since the build started.
	gens    map[string]uint64
	watches map[string]watch.Subscription
	closed  bool

	sf singleflight.Group
}

// NewCache creates a Cache. watcher may be nil to disable change-based
// invalidation (time-based expiry still applies).
func NewCache(source BuildSource, dirs PackDirer, watcher watch.Factory, ttl, sliding time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if sliding <= 0 {
		sliding = ttl
	}
	return &Cache{
		source:  source,
		dirs:    dirs,
		watcher: watcher,
		ttl:     ttl,
		sliding: sliding,
		entries: make(map[string]*entry),
		gens:    make(map[string]uint64),
		watches: make(map[string]watch.Subscription),
	}
}

func cacheKey(id string) string { return id + ":" + VersionLatest }

// Get returns the cached manifest for a pack, building it if absent or
// expired. Concurrent callers for the same pack share a single build.
func (c *Cache) Get(ctx context.Context, id string) (*Manifest, error) {
	key := cacheKey(id)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if !e.expired(now, c.sliding) {
			e.lastAccess = now
			m := e.manifest
			c.mu.Unlock()
			metrics.RecordCacheHit()
			return m, nil
		}
		delete(c.entries, key)
		metrics.RecordCacheInvalidation("expired")
	}
	c.mu.Unlock()

	metrics.RecordCacheMiss()
	c.armWatch(id)

	// The build runs detached from the first caller's context so one
	// client's disconnect cannot fail the waiters sharing the flight.
	ch := c.sf.DoChan(key, func() (any, error) {
		return c.buildAndStore(context.WithoutCancel(ctx), id, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Manifest), nil
	}
}

func (c *Cache) buildAndStore(ctx context.Context, id, key string) (*Manifest, error) {
	c.mu.Lock()
	gen := c.gens[key]
	c.mu.Unlock()

	m, err := c.source.Build(ctx, id)
	if err != nil {
		logging.Error("manifest build failed", zap.String("pack", id), zap.Error(err))
		return nil, fmt.Errorf("build manifest for %s: %w", id, err)
	}
	now := time.Now()
	c.mu.Lock()
	// An invalidation during the build bumps the generation; the result is
	// then returned to the waiting callers but not cached.
	if !c.closed && c.gens[key] == gen {
		c.entries[key] = &entry{
			manifest:       m,
			absoluteExpiry: now.Add(c.ttl),
			lastAccess:     now,
		}
	}
	c.mu.Unlock()
	return m, nil
}

// Invalidate drops the cached manifest for a pack and clears any stale
// in-flight build registration.
func (c *Cache) Invalidate(id string) {
	key := cacheKey(id)
	c.mu.Lock()
	_, had := c.entries[key]
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.sf.Forget(key)
	if had {
		metrics.RecordCacheInvalidation("explicit")
	}
}

// armWatch subscribes to filesystem changes under the pack's directory the
// first time the pack is accessed. Failure to arm is tolerated; the cache
// then relies on time-based expiry alone.
func (c *Cache) armWatch(id string) {
	if c.watcher == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.watches[id]; ok {
		c.mu.Unlock()
		return
	}
	// Reserve the slot before the (possibly slow) subscription setup.
	c.watches[id] = nil
	c.mu.Unlock()

	dir, err := c.dirs.Dir(id)
	if err == nil {
		var sub watch.Subscription
		sub, err = c.watcher.Watch(dir)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				sub.Close()
				return
			}
			c.watches[id] = sub
			c.mu.Unlock()
			go c.consume(id, sub)
			return
		}
	}

	logging.Warn("pack watch unavailable, relying on expiry", zap.String("pack", id), zap.Error(err))
	c.mu.Lock()
	delete(c.watches, id)
	c.mu.Unlock()
}

// consume invalidates the pack's entry on every change event. Only cheap
// map mutations happen here; the rebuild is deferred to the next Get.
func (c *Cache) consume(id string, sub watch.Subscription) {
	key := cacheKey(id)
	for evt := range sub.Events() {
		if evt.Err != nil {
			logging.Warn("watch delivery error", zap.String("pack", id), zap.Error(evt.Err))
		}
		c.mu.Lock()
		delete(c.entries, key)
		c.gens[key]++
		c.mu.Unlock()
		c.sf.Forget(key)
		metrics.RecordCacheInvalidation("watch")
	}
	// Event stream ended (watch closed or backend gone): drop the
	// registration so a later access re-arms.
	c.mu.Lock()
	if !c.closed {
		delete(c.watches, id)
	}
	c.mu.Unlock()
}

// Close releases all watches and clears the cache.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	subs := make([]watch.Subscription, 0, len(c.watches))
	for _, sub := range c.watches {
		if sub != nil {
			subs = append(subs, sub)
		}
	}
	c.watches = make(map[string]watch.Subscription)
	c.entries = make(map[string]*entry)
	c.gens = make(map[string]uint64)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}
