package revstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsInside(t *testing.T) {
	require.True(t, IsInside("", "a/b"))
	require.True(t, IsInside("a", "a"))
	require.True(t, IsInside("a", "a/b"))
	require.True(t, IsInside("a/", "a/b"))
	require.False(t, IsInside("a", "ab"))
	require.False(t, IsInside("a/b", "a"))
}

func TestTreeDelta_Filter(t *testing.T) {
	d := &TreeDelta{
		Added:   []Change{{NewPath: "doc/new.txt"}},
		Removed: []Change{{OldPath: "src/old.go"}},
		Renamed: []Change{{OldPath: "src/a.go", NewPath: "lib/a.go"}},
	}
	require.True(t, d.HasChanged())

	f := d.Filter([]string{"src"})
	require.Empty(t, f.Added)
	require.Len(t, f.Removed, 1)
	require.Len(t, f.Renamed, 1)

	f = d.Filter([]string{"lib"})
	require.Len(t, f.Renamed, 1)
	require.Empty(t, f.Removed)

	f = d.Filter([]string{"nowhere"})
	require.False(t, f.HasChanged())

	require.Same(t, d, d.Filter(nil))
	var nilDelta *TreeDelta
	require.False(t, nilDelta.HasChanged())
}

func TestChange_Path(t *testing.T) {
	require.Equal(t, "b", Change{OldPath: "a", NewPath: "b"}.Path())
	require.Equal(t, "a", Change{OldPath: "a"}.Path())
}
