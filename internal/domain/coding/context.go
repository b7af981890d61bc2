package coding

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/laboratory"
	"github.com/ehr/loinc-coder/internal/domain/radiology"
	"github.com/ehr/loinc-coder/internal/domain/terminology"
	"github.com/ehr/loinc-coder/internal/platform/metrics"
)

// ContextOptions configures OpenResolutionContext. Zero values select the
// defaults.
type ContextOptions struct {
	CacheLimit int
	SharedTier laboratory.SharedTier
	Rules      *laboratory.ComponentRules
	MethodCUIs map[int]struct{}
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics

	// OnClose runs after the store is closed, e.g. to close a Redis client.
	OnClose []func() error
}

// ResolutionContext owns everything resolution needs for the life of the
// process: the store, the reference index, the laboratory cache and both
// pipelines.
type ResolutionContext struct {
	Store      terminology.ReferenceStore
	Index      *terminology.ReferenceIndex
	Cache      *laboratory.ResultCache
	Laboratory *laboratory.Resolver
	Radiology  *radiology.Service

	onClose   []func() error
	closeOnce sync.Once
	closeErr  error
}

// OpenResolutionContext loads the reference index from store and wires the
// pipelines around it. Index load failures are logged, not returned.
func OpenResolutionContext(ctx context.Context, store terminology.ReferenceStore, opts ContextOptions) *ResolutionContext {
	logger := opts.Logger

	cacheOpts := []laboratory.CacheOption{
		laboratory.WithCacheLogger(logger),
		laboratory.WithCacheMetrics(opts.Metrics),
	}
	if opts.SharedTier != nil {
		cacheOpts = append(cacheOpts, laboratory.WithSharedTier(opts.SharedTier))
	}

	index := terminology.LoadReferenceIndex(ctx, store, logger)
	cache := laboratory.NewResultCache(opts.CacheLimit, cacheOpts...)

	return &ResolutionContext{
		Store:      store,
		Index:      index,
		Cache:      cache,
		Laboratory: laboratory.NewResolver(index, store, cache, opts.Rules, logger, opts.Metrics),
		Radiology: radiology.NewService(store,
			radiology.WithMethodCUIs(opts.MethodCUIs),
			radiology.WithLogger(logger),
			radiology.WithMetrics(opts.Metrics),
		),
		onClose: opts.OnClose,
	}
}

// Close releases the store and runs the OnClose hooks. It is safe to call
// more than once.
func (rc *ResolutionContext) Close() error {
	rc.closeOnce.Do(func() {
		var errs []error
		if c, ok := rc.Store.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
		for _, fn := range rc.onClose {
			errs = append(errs, fn())
		}
		rc.closeErr = errors.Join(errs...)
	})
	return rc.closeErr
}
