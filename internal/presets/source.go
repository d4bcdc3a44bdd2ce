package presets

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
)

var ErrNotConfigured = errors.New("presets: source not configured")

// Source looks up known builds for a species in a format, best first.
type Source interface {
	PresetsFor(ctx context.Context, format, species string) ([]battle.Preset, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, format, species string) ([]battle.Preset, error)

func (f SourceFunc) PresetsFor(ctx context.Context, format, species string) ([]battle.Preset, error) {
	return f(ctx, format, species)
}

// Chain asks each source in turn and returns the first non-empty answer.
// Errors are only returned when every source failed.
type Chain []Source

func (c Chain) PresetsFor(ctx context.Context, format, species string) ([]battle.Preset, error) {
	var errs []error
	for _, s := range c {
		if s == nil {
			continue
		}
		out, err := s.PresetsFor(ctx, format, species)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	if len(errs) == len(c) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// QueryCache provides thread-safe in-memory caching.
type QueryCache struct {
	mu   sync.RWMutex
	data map[string][]battle.Preset
}

// NewQueryCache creates a new query cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{data: make(map[string][]battle.Preset)}
}

// Get retrieves a value from the cache.
func (c *QueryCache) Get(key string) ([]battle.Preset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.data[key]
	return val, ok
}

// Set stores a value in the cache.
func (c *QueryCache) Set(key string, value []battle.Preset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Clear removes all cached values.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]battle.Preset)
}

// Cached memoizes a source per format and species. Concurrent lookups for
// the same key share one call to the underlying source.
type Cached struct {
	src   Source
	cache *QueryCache
	group singleflight.Group
}

// NewCached wraps src.
func NewCached(src Source) *Cached {
	return &Cached{src: src, cache: NewQueryCache()}
}

func (c *Cached) PresetsFor(ctx context.Context, format, species string) ([]battle.Preset, error) {
	if c.src == nil {
		return nil, ErrNotConfigured
	}
	key := cacheKey(format, species)
	if out, ok := c.cache.Get(key); ok {
		return clonePresets(out), nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		out, err := c.src.PresetsFor(ctx, format, species)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePresets(v.([]battle.Preset)), nil
}

// Clear drops every cached answer.
func (c *Cached) Clear() {
	c.cache.Clear()
}

func cacheKey(format, species string) string {
	return dex.ID(format) + "|" + dex.ID(species)
}

func clonePresets(in []battle.Preset) []battle.Preset {
	if in == nil {
		return nil
	}
	out := make([]battle.Preset, len(in))
	for i, p := range in {
		p.Moves = append([]string(nil), p.Moves...)
		out[i] = p
	}
	return out
}
