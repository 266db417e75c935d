// Package revlog computes which revisions a log shows, in which order and
// with what detail, and renders them through a Formatter.
package revlog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"go.skia.org/revgraph/go/branch"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/skerr"
)

// ErrGhostRevisionUnusableHere is returned when a log reaches a revision
// that is referenced but not stored.
var ErrGhostRevisionUnusableHere = errors.New("Further revision history missing")

// LevelsUnset lets the formatter pick how many merge levels to show.
const LevelsUnset = -1

// DefaultBatchCap is the largest batch the pipeline reads at once.
const DefaultBatchCap = 200

// DeltaType selects how much of each revision's delta is generated.
type DeltaType string

const (
	DeltaNone DeltaType = ""
	// DeltaFull generates the complete delta.
	DeltaFull DeltaType = "full"
	// DeltaPartial restricts the delta to Request.SpecificFiles.
	DeltaPartial DeltaType = "partial"
)

// DiffType selects how much of each revision's diff is generated.
type DiffType string

const (
	DiffNone    DiffType = ""
	DiffFull    DiffType = "full"
	DiffPartial DiffType = "partial"
)

// Match fields. MatchAny matches against all of the others.
const (
	MatchAny       = ""
	MatchMessage   = "message"
	MatchCommitter = "committer"
	MatchAuthor    = "author"
	MatchBugs      = "bugs"
)

// RevisionInfo is a resolved end of a revision range. Revno is
// branch.RevnoUnknown for revisions off the mainline.
type RevisionInfo struct {
	ID    revision.ID
	Revno int
}

// Request describes a log.
type Request struct {
	Direction branch.Direction
	// SpecificFiles restricts the log to revisions touching these paths.
	SpecificFiles []string
	// StartRevision is the oldest revision shown, or nil for the first one.
	StartRevision *RevisionInfo
	// EndRevision is the newest revision shown, or nil for the tip.
	EndRevision *RevisionInfo
	// Limit is the maximum number of revisions shown; 0 shows all.
	Limit int
	// Levels is the number of merge levels shown: 1 is the mainline only
	// and 0 is everything.
	Levels       int
	GenerateTags bool
	DeltaType    DeltaType
	DiffType     DiffType
	// ExcludeCommonAncestry turns the range into a graph difference: the
	// ancestors of EndRevision that are not ancestors of StartRevision.
	ExcludeCommonAncestry bool
	// Match maps a field to patterns. A revision is shown if, for every
	// field, it matches one of the field's patterns. Patterns are case
	// insensitive regular expressions.
	Match      map[string][]string
	Signature  bool
	OmitMerges bool
	// BatchCap bounds the number of revisions read from the store at once.
	BatchCap int
}

// NewRequest returns a Request for the whole reverse history, mainline
// depth picked by the formatter, with tags.
func NewRequest() *Request {
	return &Request{
		Direction:    branch.Reverse,
		Levels:       LevelsUnset,
		GenerateTags: true,
		BatchCap:     DefaultBatchCap,
	}
}

// AddMessageSearch adds a pattern for the commit message.
func (r *Request) AddMessageSearch(pattern string) {
	if r.Match == nil {
		r.Match = map[string][]string{}
	}
	r.Match[MatchMessage] = append(r.Match[MatchMessage], pattern)
}

// Validate checks the enumerated fields of the request.
func (r *Request) Validate() error {
	if err := r.Direction.Validate(); err != nil {
		return err
	}
	switch r.DeltaType {
	case DeltaNone, DeltaFull, DeltaPartial:
	default:
		return skerr.Fmt("invalid delta type %q", r.DeltaType)
	}
	switch r.DiffType {
	case DiffNone, DiffFull, DiffPartial:
	default:
		return skerr.Fmt("invalid diff type %q", r.DiffType)
	}
	if r.Levels < LevelsUnset {
		return skerr.Fmt("invalid levels %d", r.Levels)
	}
	if r.Limit < 0 {
		return skerr.Fmt("invalid limit %d", r.Limit)
	}
	_, err := compileMatch(r.Match)
	return err
}

type matchGroup struct {
	field    string
	patterns []*regexp.Regexp
}

// compileMatch compiles the patterns of m, ordered by field name.
func compileMatch(m map[string][]string) ([]matchGroup, error) {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	ret := make([]matchGroup, 0, len(fields))
	for _, f := range fields {
		g := matchGroup{field: f}
		for _, p := range m[f] {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, skerr.Wrapf(err, "invalid %s pattern %q", f, p)
			}
			g.patterns = append(g.patterns, re)
		}
		ret = append(ret, g)
	}
	return ret, nil
}

// RangeReason says why a revision range was rejected.
type RangeReason string

const (
	RangeRevisionZero     RangeReason = "Logging revision 0 is invalid"
	RangeStartAfterEnd    RangeReason = "Start revision must be older than the end revision"
	RangeIdenticalBounds  RangeReason = "--exclude-common-ancestry requires two different revisions"
	RangeStartNotAncestor RangeReason = "Start revision not found in history of end revision"
)

// RangeError is returned for revision ranges that cannot be logged.
type RangeError struct {
	Reason     RangeReason
	StartID    revision.ID
	EndID      revision.ID
	StartRevno int
	EndRevno   int
}

func (e *RangeError) Error() string {
	switch e.Reason {
	case RangeStartAfterEnd:
		return fmt.Sprintf("%s (%d > %d)", e.Reason, e.StartRevno, e.EndRevno)
	case RangeStartNotAncestor:
		return fmt.Sprintf("%s (%s is not an ancestor of %s)", e.Reason, e.StartID, e.EndID)
	}
	return string(e.Reason)
}
