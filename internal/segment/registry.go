// Package segment implements the semantic source-code segmentation engine:
// grammar lookup, capture extraction, metadata extraction and size-bounded
// chunking of source files into semantic blocks.
package segment

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mvasko/codeseg/pkg/provider"
)

// Registry resolves file extensions to grammar capabilities. Grammars are
// loaded lazily through the injected loader and cached; concurrent requests
// for the same extension share one in-flight load. A failed load is cached
// as unsupported and never retried.
type Registry struct {
	load provider.GrammarLoader

	mu    sync.RWMutex
	cache map[string]provider.Grammar // nil value = known unsupported
	group singleflight.Group
}

// NewRegistry creates a registry backed by the given loader.
func NewRegistry(load provider.GrammarLoader) *Registry {
	return &Registry{
		load:  load,
		cache: make(map[string]provider.Grammar),
	}
}

// Obtain returns the grammar for an extension, or false when the extension
// is unsupported. It never returns an error: load failures are logged and
// degrade to unsupported.
func (r *Registry) Obtain(ext string) (provider.Grammar, bool) {
	r.mu.RLock()
	g, cached := r.cache[ext]
	r.mu.RUnlock()
	if cached {
		return g, g != nil
	}

	v, _, _ := r.group.Do(ext, func() (any, error) {
		// Re-check under the group: a previous flight may have filled
		// the cache between our read and Do.
		r.mu.RLock()
		g, cached := r.cache[ext]
		r.mu.RUnlock()
		if cached {
			return g, nil
		}

		g, err := r.load(ext)
		if err != nil {
			slog.Debug("grammar unavailable", "ext", ext, "error", err)
			g = nil
		}

		r.mu.Lock()
		r.cache[ext] = g
		r.mu.Unlock()
		return g, nil
	})

	g, _ = v.(provider.Grammar)
	if g == nil {
		return nil, false
	}
	return g, true
}
