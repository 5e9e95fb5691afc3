// Package bundle provides the content-addressed cache of compiled widget
// modules. Entries are append-only: identical source never recompiles, and
// a source change simply produces a new key, superseding the old entry.
package bundle

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/veristat-labs/veristat/internal/compiler"
	"github.com/veristat-labs/veristat/pkg/core"
)

// Cache stores compiled bundles keyed by content address. Concurrent
// callers for the same key share one compilation via singleflight; the
// entries map itself is read-mostly.
type Cache struct {
	compiler *compiler.Compiler
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]*core.CompiledBundle

	group singleflight.Group
}

// New creates a Cache backed by the given compiler.
func New(c *compiler.Compiler, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		compiler: c,
		logger:   logger,
		entries:  make(map[string]*core.CompiledBundle),
	}
}

// GetOrCompile returns the cached bundle for the plugin/widget/source triple,
// compiling it at most once per key even under concurrent callers.
func (c *Cache) GetOrCompile(source []byte, cctx compiler.Context) (*core.CompiledBundle, error) {
	key := core.BundleKey(cctx.PluginID, cctx.WidgetID, source)

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: a previous flight for this key may have
		// stored the entry between our read and Do.
		c.mu.RLock()
		cached, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		compiled, err := c.compiler.Compile(source, cctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = compiled
		c.mu.Unlock()

		c.logger.Debug("cached compiled bundle",
			"plugin_id", cctx.PluginID,
			"widget_id", cctx.WidgetID,
			"key", key)
		return compiled, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*core.CompiledBundle), nil
}

// Get returns the cached bundle for a key, if present.
func (c *Cache) Get(key string) (*core.CompiledBundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[key]
	return b, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
