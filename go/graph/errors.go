package graph

import (
	"errors"
	"fmt"

	"go.skia.org/revgraph/go/revision"
)

var (
	// ErrNoCommonAncestor is returned when two revisions share no history,
	// not even NullRevision. This only happens when ghosts cut the graph.
	ErrNoCommonAncestor = errors.New("revisions have no common ancestor")

	// ErrGraphCycle is returned when a parent map contains a cycle.
	ErrGraphCycle = errors.New("cycle in revision graph")

	// ErrGhostRevisionsHaveNoRevno is the sentinel matched by
	// GhostRevnoError.
	ErrGhostRevisionsHaveNoRevno = errors.New("ghost revisions have no revno")
)

// GhostRevnoError is returned when the lefthand ancestry of Target reaches
// the ghost Ghost before a revision with a known revno.
type GhostRevnoError struct {
	Target revision.ID
	Ghost  revision.ID
}

func (e *GhostRevnoError) Error() string {
	return fmt.Sprintf("Could not determine revno for {%s} because its ancestry shows a ghost at {%s}", e.Target, e.Ghost)
}

// Is makes errors.Is(err, ErrGhostRevisionsHaveNoRevno) succeed.
func (e *GhostRevnoError) Is(target error) bool {
	return target == ErrGhostRevisionsHaveNoRevno
}
