// Package oracle provides collateral valuation sources for the market engine.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/starford/pledge/internal/market"
)

// DefaultValue is the valuation used for assets without an explicit price.
const DefaultValue uint64 = 1_000_000_000

// Static appraises every asset from a fixed table.
type Static struct {
	mu       sync.RWMutex
	fallback uint64
	values   map[string]uint64
}

// NewStatic returns a source that prices assets from values and everything
// else at fallback.
func NewStatic(fallback uint64, values map[string]uint64) *Static {
	s := &Static{}
	s.Replace(fallback, values)
	return s
}

// Appraise implements market.Appraiser.
func (s *Static) Appraise(_ context.Context, asset string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[asset]; ok {
		return v, nil
	}
	return s.fallback, nil
}

// Replace swaps the whole price table. Assets missing from values fall back
// to fallback afterwards.
func (s *Static) Replace(fallback uint64, values map[string]uint64) {
	table := make(map[string]uint64, len(values))
	for k, v := range values {
		table[k] = v
	}
	s.mu.Lock()
	s.fallback = fallback
	s.values = table
	s.mu.Unlock()
}

// Bounded rejects valuations outside [Min, Max]. A zero Max is unbounded.
type Bounded struct {
	Source   market.Appraiser
	Min, Max uint64
}

// Appraise implements market.Appraiser.
func (b Bounded) Appraise(ctx context.Context, asset string) (uint64, error) {
	v, err := b.Source.Appraise(ctx, asset)
	if err != nil {
		return 0, err
	}
	if v < b.Min || (b.Max > 0 && v > b.Max) {
		return 0, fmt.Errorf("%w: %s valued at %d outside [%d, %d]", market.ErrInvalidOraclePrice, asset, v, b.Min, b.Max)
	}
	return v, nil
}

// Cached remembers valuations for a bounded time so repeated liquidation
// checks do not hit the source. Errors are never cached.
type Cached struct {
	source market.Appraiser
	cache  *expirable.LRU[string, uint64]
	logger *slog.Logger
}

// NewCached wraps source with an LRU of size entries living for ttl.
func NewCached(source market.Appraiser, size int, ttl time.Duration, logger *slog.Logger) *Cached {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		source: source,
		cache:  expirable.NewLRU[string, uint64](size, nil, ttl),
		logger: logger,
	}
}

// Appraise implements market.Appraiser.
func (c *Cached) Appraise(ctx context.Context, asset string) (uint64, error) {
	if v, ok := c.cache.Get(asset); ok {
		return v, nil
	}
	v, err := c.source.Appraise(ctx, asset)
	if err != nil {
		c.logger.Warn("oracle: appraisal failed", slog.String("asset", asset), slog.String("error", err.Error()))
		return 0, err
	}
	c.cache.Add(asset, v)
	return v, nil
}

// Purge drops every cached valuation.
func (c *Cached) Purge() {
	c.cache.Purge()
}

func (c *Cached) size() int {
	return c.cache.Len()
}

// Config selects and wraps a valuation source.
type Config struct {
	DefaultValue uint64
	Values       map[string]uint64
	MinValue     uint64
	MaxValue     uint64
	CacheTTL     time.Duration
	CacheSize    int
}

// Oracle is the configured valuation chain: a static table behind the bounds
// check and an optional cache. Its prices can be replaced at runtime.
type Oracle struct {
	static *Static
	cached *Cached
	chain  market.Appraiser
}

// New builds the static source, the bounds check and, when CacheTTL is
// positive, the cache in front of both.
func New(cfg Config, logger *slog.Logger) *Oracle {
	o := &Oracle{static: NewStatic(fallbackValue(cfg.DefaultValue), cfg.Values)}
	o.chain = Bounded{
		Source: o.static,
		Min:    cfg.MinValue,
		Max:    cfg.MaxValue,
	}
	if cfg.CacheTTL > 0 {
		o.cached = NewCached(o.chain, cfg.CacheSize, cfg.CacheTTL, logger)
		o.chain = o.cached
	}
	return o
}

// Appraise implements market.Appraiser.
func (o *Oracle) Appraise(ctx context.Context, asset string) (uint64, error) {
	return o.chain.Appraise(ctx, asset)
}

// Reprice installs a new price table and drops cached valuations so the next
// appraisal reads it. Bounds and cache settings keep their startup values.
func (o *Oracle) Reprice(defaultValue uint64, values map[string]uint64) {
	o.static.Replace(fallbackValue(defaultValue), values)
	if o.cached != nil {
		o.cached.Purge()
	}
}

func fallbackValue(v uint64) uint64 {
	if v == 0 {
		return DefaultValue
	}
	return v
}
