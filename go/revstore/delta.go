package revstore

import (
	"strings"
)

// Kind is the kind of a versioned entry.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
)

// Change is one changed entry. OldPath is empty for additions and NewPath
// is empty for removals.
type Change struct {
	OldPath string
	NewPath string
	Kind    Kind
}

// Path returns the path the entry has after the change, or before it for
// removals.
func (c Change) Path() string {
	if c.NewPath != "" {
		return c.NewPath
	}
	return c.OldPath
}

// TreeDelta describes the changes a revision made to its tree.
type TreeDelta struct {
	Added    []Change
	Removed  []Change
	Renamed  []Change
	Copied   []Change
	Modified []Change
}

// HasChanged returns true if the delta holds any change.
func (d *TreeDelta) HasChanged() bool {
	return d != nil && len(d.Added)+len(d.Removed)+len(d.Renamed)+len(d.Copied)+len(d.Modified) > 0
}

// IsInside returns true if path is dir or lies below it. Every path is
// inside the empty dir.
func IsInside(dir, path string) bool {
	if dir == "" || dir == path {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(dir, "/")+"/")
}

// IsInsideAny returns true if path is inside any of dirs.
func IsInsideAny(dirs []string, path string) bool {
	for _, d := range dirs {
		if IsInside(d, path) {
			return true
		}
	}
	return false
}

// Filter returns the changes touching paths. A rename or copy is kept if
// either side matches. An empty paths list keeps everything.
func (d *TreeDelta) Filter(paths []string) *TreeDelta {
	if d == nil || len(paths) == 0 {
		return d
	}
	keep := func(changes []Change) []Change {
		var ret []Change
		for _, c := range changes {
			if (c.OldPath != "" && IsInsideAny(paths, c.OldPath)) || (c.NewPath != "" && IsInsideAny(paths, c.NewPath)) {
				ret = append(ret, c)
			}
		}
		return ret
	}
	return &TreeDelta{
		Added:    keep(d.Added),
		Removed:  keep(d.Removed),
		Renamed:  keep(d.Renamed),
		Copied:   keep(d.Copied),
		Modified: keep(d.Modified),
	}
}
