package laboratory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/terminology"
	"github.com/ehr/loinc-coder/internal/platform/metrics"
)

// DefaultCacheLimit is the default entry ceiling of a ResultCache.
const DefaultCacheLimit = 50000

const keySep = "\x1f"

// CacheKey identifies a laboratory query by value. Every field is a canonical
// string so two keys built from equal filters compare equal with ==.
type CacheKey struct {
	Components string
	Properties string
	Systems    string
	Methods    string
	Time       string
	Scales     string
}

// NewCacheKey canonicalizes the filters: components, systems and methods are
// lower-cased, every list is de-duplicated and sorted.
func NewCacheKey(components, properties, systems, methods []string, time string, scales []string) CacheKey {
	return CacheKey{
		Components: canonical(components, true),
		Properties: canonical(properties, false),
		Systems:    canonical(systems, true),
		Methods:    canonical(methods, true),
		Time:       strings.TrimSpace(time),
		Scales:     canonical(scales, false),
	}
}

// Digest is a stable hex SHA-256 of the key, used by shared tiers.
func (k CacheKey) Digest() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		k.Components, k.Properties, k.Systems, k.Methods, k.Time, k.Scales,
	}, "\x1e")))
	return hex.EncodeToString(sum[:])
}

func canonical(values []string, lower bool) string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return strings.Join(out, keySep)
}

// SharedTier is a cache shared between processes, consulted after a local
// miss. Keys are CacheKey digests.
type SharedTier interface {
	Get(ctx context.Context, key string) ([]*terminology.LOINCCode, bool, error)
	Set(ctx context.Context, key string, codes []*terminology.LOINCCode) error
}

// ResultCache memoizes laboratory query results. It stops admitting entries
// once it holds more than limit of them and never evicts.
type ResultCache struct {
	mu      sync.Mutex
	entries map[CacheKey][]*terminology.LOINCCode
	limit   int

	shared  SharedTier
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type CacheOption func(*ResultCache)

func WithSharedTier(t SharedTier) CacheOption {
	return func(c *ResultCache) { c.shared = t }
}

func WithCacheLogger(l zerolog.Logger) CacheOption {
	return func(c *ResultCache) { c.logger = l }
}

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *ResultCache) { c.metrics = m }
}

// NewResultCache creates a cache. A non-positive limit selects
// DefaultCacheLimit.
func NewResultCache(limit int, opts ...CacheOption) *ResultCache {
	if limit <= 0 {
		limit = DefaultCacheLimit
	}
	c := &ResultCache{
		entries: make(map[CacheKey][]*terminology.LOINCCode),
		limit:   limit,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the cached result for key. The shared tier is asked on a
// local miss and a hit there is admitted locally.
func (c *ResultCache) Lookup(ctx context.Context, key CacheKey) ([]*terminology.LOINCCode, bool) {
	c.mu.Lock()
	codes, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		c.metrics.CacheLookup(metrics.CacheHit)
		return codes, true
	}

	if c.shared != nil {
		codes, ok, err := c.shared.Get(ctx, key.Digest())
		if err != nil {
			c.logger.Warn().Err(err).Msg("shared cache lookup failed")
		} else if ok {
			c.metrics.CacheLookup(metrics.CacheSharedHit)
			c.insertLocal(key, codes)
			return codes, true
		}
	}

	c.metrics.CacheLookup(metrics.CacheMiss)
	return nil, false
}

// Insert stores codes under key, locally while there is room and in the
// shared tier when one is configured.
func (c *ResultCache) Insert(ctx context.Context, key CacheKey, codes []*terminology.LOINCCode) {
	c.insertLocal(key, codes)
	if c.shared != nil {
		if err := c.shared.Set(ctx, key.Digest(), codes); err != nil {
			c.logger.Warn().Err(err).Msg("shared cache write failed")
		}
	}
}

func (c *ResultCache) insertLocal(key CacheKey, codes []*terminology.LOINCCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) <= c.limit {
		c.entries[key] = codes
	}
}

// Len returns the number of local entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Limit returns the configured ceiling.
func (c *ResultCache) Limit() int { return c.limit }
