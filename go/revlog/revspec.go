package revlog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.skia.org/revgraph/go/branch"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/skerr"
)

// revidPrefix marks a revision spec as a literal revision id.
const revidPrefix = "revid:"

// ResolveRevision turns a revision spec into a RevisionInfo. A spec is a
// mainline revno ("3", or "-1" for the tip), a dotted revno ("1.2.1") or a
// revision id, optionally prefixed with "revid:".
func ResolveRevision(ctx context.Context, b *branch.Branch, spec string) (*RevisionInfo, error) {
	if spec == "" {
		return nil, skerr.Fmt("empty revision spec")
	}
	if !strings.HasPrefix(spec, revidPrefix) {
		if n, err := strconv.Atoi(spec); err == nil {
			return resolveRevno(ctx, b, n)
		}
		if dotted, err := revision.ParseDottedRevno(spec); err == nil {
			id, err := b.DottedRevnoToRevisionID(ctx, dotted)
			if err != nil {
				return nil, err
			}
			return &RevisionInfo{ID: id, Revno: branch.RevnoUnknown}, nil
		}
	}
	id := revision.ID(strings.TrimPrefix(spec, revidPrefix))
	if id == revision.NullRevision {
		return &RevisionInfo{ID: id, Revno: 0}, nil
	}
	ok, err := b.Store().HasRevision(ctx, id)
	if err != nil {
		return nil, skerr.Wrapf(err, "looking up %s", id)
	}
	if !ok {
		return nil, skerr.Wrapf(branch.ErrNoSuchRevision, "%s", id)
	}
	revno, err := b.RevisionIDToRevno(ctx, id)
	if errors.Is(err, branch.ErrNoSuchRevision) {
		revno = branch.RevnoUnknown
	} else if err != nil {
		return nil, err
	}
	return &RevisionInfo{ID: id, Revno: revno}, nil
}

func resolveRevno(ctx context.Context, b *branch.Branch, n int) (*RevisionInfo, error) {
	if n < 0 {
		last, _, err := b.LastRevisionInfo(ctx)
		if err != nil {
			return nil, err
		}
		n = max(last+1+n, 0)
	}
	id, err := b.GetRevID(ctx, n)
	if err != nil {
		return nil, err
	}
	return &RevisionInfo{ID: id, Revno: n}, nil
}

// ResolveRange parses "A", "A..B", "A.." or "..B". A single revision is
// both ends of the range; an empty end is left open.
func ResolveRange(ctx context.Context, b *branch.Branch, spec string) (*RevisionInfo, *RevisionInfo, error) {
	startSpec, endSpec, isRange := strings.Cut(spec, "..")
	if !isRange {
		info, err := ResolveRevision(ctx, b, spec)
		if err != nil {
			return nil, nil, err
		}
		return info, info, nil
	}
	var start, end *RevisionInfo
	var err error
	if startSpec != "" {
		if start, err = ResolveRevision(ctx, b, startSpec); err != nil {
			return nil, nil, err
		}
	}
	if endSpec != "" {
		if end, err = ResolveRevision(ctx, b, endSpec); err != nil {
			return nil, nil, err
		}
	}
	return start, end, nil
}
