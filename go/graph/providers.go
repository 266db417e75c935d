package graph

import (
	"context"

	"go.skia.org/revgraph/go/cache"
	"go.skia.org/revgraph/go/metrics2"
	"go.skia.org/revgraph/go/revision"
)

// ParentsProvider looks up the parents of revisions. Ids that cannot be
// resolved are left out of the result; that is never an error.
type ParentsProvider interface {
	GetParentMap(ctx context.Context, ids []revision.ID) (revision.ParentMap, error)
}

// DictParentsProvider serves parents from a map.
type DictParentsProvider revision.ParentMap

// GetParentMap implements ParentsProvider.
func (d DictParentsProvider) GetParentMap(_ context.Context, ids []revision.ID) (revision.ParentMap, error) {
	ret := make(revision.ParentMap, len(ids))
	for _, id := range ids {
		if parents, ok := d[id]; ok {
			ret[id] = parents
		}
	}
	return ret, nil
}

// StackedParentsProvider queries each provider in order, asking later
// providers only for the ids earlier ones could not resolve.
type StackedParentsProvider []ParentsProvider

// GetParentMap implements ParentsProvider.
func (s StackedParentsProvider) GetParentMap(ctx context.Context, ids []revision.ID) (revision.ParentMap, error) {
	found := revision.ParentMap{}
	remaining := ids
	for _, p := range s {
		if len(remaining) == 0 {
			break
		}
		pm, err := p.GetParentMap(ctx, remaining)
		if err != nil {
			return nil, err
		}
		next := remaining[:0:0]
		for _, id := range remaining {
			if parents, ok := pm[id]; ok {
				found[id] = parents
			} else {
				next = append(next, id)
			}
		}
		remaining = next
	}
	return found, nil
}

// missingParents marks a negatively cached id.
type missingParents struct{}

// CachingParentsProvider remembers the answers of another provider,
// including which ids it could not resolve. The store is treated as
// immutable for the lifetime of the cache.
type CachingParentsProvider struct {
	provider ParentsProvider
	cache    cache.LRU
	hits     metrics2.Counter
	misses   metrics2.Counter
	entries  metrics2.Int64Metric
	hitRatio metrics2.Float64Metric

	// Totals of this provider, unlike the counters which are shared by
	// every provider in the process.
	lookups int64
	hitsSum int64
}

// NewCachingParentsProvider wraps p with an LRU of at most maxEntries ids.
func NewCachingParentsProvider(p ParentsProvider, maxEntries int) *CachingParentsProvider {
	return &CachingParentsProvider{
		provider: p,
		cache:    cache.NewMemLRUCache(maxEntries),
		hits:     metrics2.GetCounter("revgraph_parent_cache_hits"),
		misses:   metrics2.GetCounter("revgraph_parent_cache_misses"),
		entries:  metrics2.GetInt64Metric("revgraph_parent_cache_entries"),
		hitRatio: metrics2.GetFloat64Metric("revgraph_parent_cache_hit_ratio"),
	}
}

// HitRatio returns the share of ids this provider answered from its cache.
func (c *CachingParentsProvider) HitRatio() float64 {
	if c.lookups == 0 {
		return 0
	}
	return float64(c.hitsSum) / float64(c.lookups)
}

func (c *CachingParentsProvider) record(lookups, hits int) {
	c.lookups += int64(lookups)
	c.hitsSum += int64(hits)
	c.hits.Inc(int64(hits))
	c.misses.Inc(int64(lookups - hits))
	c.hitRatio.Update(c.HitRatio())
	c.entries.Update(int64(c.cache.Len()))
}

// GetParentMap implements ParentsProvider.
func (c *CachingParentsProvider) GetParentMap(ctx context.Context, ids []revision.ID) (revision.ParentMap, error) {
	ret := make(revision.ParentMap, len(ids))
	var needed []revision.ID
	for _, id := range ids {
		v, ok := c.cache.Get(string(id))
		if !ok {
			needed = append(needed, id)
			continue
		}
		if parents, ok := v.([]revision.ID); ok {
			ret[id] = parents
		}
	}
	if len(needed) == 0 {
		c.record(len(ids), len(ids))
		return ret, nil
	}
	pm, err := c.provider.GetParentMap(ctx, needed)
	if err != nil {
		return nil, err
	}
	for _, id := range needed {
		if parents, ok := pm[id]; ok {
			c.cache.Add(string(id), parents)
			ret[id] = parents
		} else {
			c.cache.Add(string(id), missingParents{})
		}
	}
	c.record(len(ids), len(ids)-len(needed))
	return ret, nil
}

var _ ParentsProvider = DictParentsProvider(nil)
var _ ParentsProvider = StackedParentsProvider(nil)
var _ ParentsProvider = (*CachingParentsProvider)(nil)
