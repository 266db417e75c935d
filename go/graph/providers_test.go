package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.skia.org/revgraph/go/metrics2"
	"go.skia.org/revgraph/go/revision"
)

func TestStackedParentsProvider_AsksLaterProvidersForTheRest(t *testing.T) {
	first := &countingProvider{pm: revision.ParentMap{"a": {}}}
	second := &countingProvider{pm: revision.ParentMap{"a": {"x"}, "b": {"a"}}}
	pm, err := StackedParentsProvider{first, second}.GetParentMap(context.Background(), ids{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, revision.ParentMap{"a": {}, "b": {"a"}}, pm)
	assert.Equal(t, []int{3}, first.calls)
	assert.Equal(t, []int{2}, second.calls)
}

func TestCachingParentsProvider_RemembersHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	backend := &countingProvider{pm: revision.ParentMap{"a": {}, "b": {"a"}}}
	c := NewCachingParentsProvider(backend, 10)

	pm, err := c.GetParentMap(ctx, ids{"a", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, revision.ParentMap{"a": {}}, pm)
	assert.Equal(t, 0.0, c.HitRatio())

	// "ghost" is answered from the cache too, as missing.
	pm, err = c.GetParentMap(ctx, ids{"a", "ghost", "b"})
	require.NoError(t, err)
	assert.Equal(t, revision.ParentMap{"a": {}, "b": {"a"}}, pm)
	assert.Equal(t, []int{2, 1}, backend.calls)

	pm, err = c.GetParentMap(ctx, ids{"b"})
	require.NoError(t, err)
	assert.Equal(t, revision.ParentMap{"b": {"a"}}, pm)
	assert.Equal(t, []int{2, 1}, backend.calls)

	// 3 of the 6 ids looked up were cached.
	assert.Equal(t, 0.5, c.HitRatio())
	assert.Equal(t, 0.5, metrics2.GetFloat64Metric("revgraph_parent_cache_hit_ratio").Get())
	assert.Equal(t, int64(3), metrics2.GetInt64Metric("revgraph_parent_cache_entries").Get())
}

func TestCachingParentsProvider_Evicts(t *testing.T) {
	ctx := context.Background()
	backend := &countingProvider{pm: revision.ParentMap{"a": {}, "b": {"a"}, "c": {"b"}}}
	c := NewCachingParentsProvider(backend, 2)
	_, err := c.GetParentMap(ctx, ids{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), metrics2.GetInt64Metric("revgraph_parent_cache_entries").Get())

	// "a" was evicted and is asked for again.
	_, err = c.GetParentMap(ctx, ids{"a"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, backend.calls)
}

func TestCachingParentsProvider_ErrorsAreNotCached(t *testing.T) {
	c := NewCachingParentsProvider(failingProvider{}, 10)
	_, err := c.GetParentMap(context.Background(), ids{"a"})
	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, 0.0, c.HitRatio())
}
