package cache

import (
	"github.com/c360/relaybridge/metric"
)

// Option configures cache behavior using the functional options pattern.
type Option[V any] func(*cacheOptions[V])

// cacheOptions holds internal configuration for cache instances.
// Stats are always collected; metrics export is optional.
type cacheOptions[V any] struct {
	// metricsReg is optional - if provided, cache stats are also exposed as
	// Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// metricsPrefix is used as the component label for Prometheus metrics
	metricsPrefix string

	// evictCallback is called when items are evicted from the cache
	evictCallback EvictCallback[V]

	// costFn estimates entry cost for the byte bound; defaults to key length
	costFn CostFunc[V]
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// If registry is nil, this option is ignored.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked with evicted entries.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithCostFunc sets the cost estimator for the byte-size bound.
func WithCostFunc[V any](fn CostFunc[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		if fn != nil {
			opts.costFn = fn
		}
	}
}

// applyOptions applies functional options to create final cache configuration.
func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{
		costFn: func(key string, _ V) int64 { return int64(len(key)) },
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
