package check

import (
	"context"
	"slices"
	"sort"

	"github.com/hashicorp/go-multierror"

	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/sklog"
)

// RefKind is the kind of value a RefWanter asks the checker to compute.
type RefKind string

const (
	// RefTrees resolves to the inventory of a revision.
	RefTrees RefKind = "trees"
	// RefLefthandDistance resolves to the lefthand distance of a revision to
	// NullRevision, or graph.DistanceUnknown.
	RefLefthandDistance RefKind = "lefthand-distance"
	// RefRevisionExistence resolves to whether a revision is stored.
	RefRevisionExistence RefKind = "revision-existence"
)

// Ref is one value wanted by a RefWanter.
type Ref struct {
	Kind RefKind
	ID   revision.ID
}

// RefValues holds the resolved value of every wanted Ref, one map per kind.
type RefValues struct {
	Trees     map[revision.ID]revision.Inventory
	Distances map[revision.ID]int
	Exists    map[revision.ID]bool
}

// RefWanter is checked along with the repository. It names the expensive
// graph queries it needs so that the checker can answer all of them once.
type RefWanter interface {
	// Name identifies the wanter in reports.
	Name() string
	// CheckRefs returns the refs Check needs.
	CheckRefs() []Ref
	// Check is called with the resolved refs and returns the problems it
	// found.
	Check(ctx context.Context, refs *RefValues) ([]string, error)
}

// resolveRefKinds is the order in which resolveRefs answers each kind.
var resolveRefKinds = []RefKind{RefTrees, RefLefthandDistance, RefRevisionExistence}

// resolveRefs computes every ref wanted by wanters. The kinds are resolved
// one after another in resolveRefKinds order; each uses a single batched
// query.
func resolveRefs(ctx context.Context, s revstore.Store, g *graph.Graph, wanters []RefWanter) (*RefValues, error) {
	byKind := map[RefKind]revision.IDSet{}
	for _, w := range wanters {
		for _, ref := range w.CheckRefs() {
			if byKind[ref.Kind] == nil {
				byKind[ref.Kind] = revision.IDSet{}
			}
			byKind[ref.Kind].Add(ref.ID)
		}
	}
	for kind := range byKind {
		if !slices.Contains(resolveRefKinds, kind) {
			return nil, skerr.Fmt("unknown check ref kind %q", kind)
		}
	}

	ret := &RefValues{
		Trees:     map[revision.ID]revision.Inventory{},
		Distances: map[revision.ID]int{},
		Exists:    map[revision.ID]bool{},
	}
	for _, kind := range resolveRefKinds {
		ids := byKind[kind]
		if len(ids) == 0 {
			continue
		}
		if err := resolveKind(ctx, s, g, kind, ids.Sorted(), ret); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func resolveKind(ctx context.Context, s revstore.Store, g *graph.Graph, kind RefKind, ids []revision.ID, ret *RefValues) error {
	switch kind {
	case RefTrees:
		vf, ok := s.(revstore.VersionedFiles)
		if !ok {
			return skerr.Wrapf(ErrNoVersionedFileChecker, "resolving %d tree refs", len(ids))
		}
		for _, id := range ids {
			inv, err := vf.GetInventory(ctx, id)
			if err != nil {
				return skerr.Wrapf(err, "loading tree of %s", id)
			}
			ret.Trees[id] = inv
		}
	case RefLefthandDistance:
		distances, err := g.FindLefthandDistances(ctx, ids)
		if err != nil {
			return skerr.Wrapf(err, "resolving lefthand distances")
		}
		ret.Distances = distances
	case RefRevisionExistence:
		pm, err := s.GetParentMap(ctx, ids)
		if err != nil {
			return skerr.Wrapf(err, "resolving revision existence")
		}
		for _, id := range ids {
			_, ok := pm[id]
			ret.Exists[id] = ok
		}
	}
	return nil
}

// dispatchRefs hands the resolved refs to each wanter. Every wanter is run
// even if an earlier one failed; the failures are combined.
func dispatchRefs(ctx context.Context, wanters []RefWanter, refs *RefValues) (map[string][]string, error) {
	ret := map[string][]string{}
	var errs *multierror.Error
	for _, w := range wanters {
		problems, err := w.Check(ctx, refs)
		if err != nil {
			sklog.Errorf("Checking %s: %s", w.Name(), err)
			errs = multierror.Append(errs, skerr.Wrapf(err, "checking %s", w.Name()))
			continue
		}
		if len(problems) > 0 {
			ret[w.Name()] = append(ret[w.Name()], problems...)
		}
	}
	return ret, errs.ErrorOrNil()
}

func sortedNames(m map[string][]string) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
