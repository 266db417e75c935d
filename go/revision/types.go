package revision

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.skia.org/revgraph/go/skerr"
)

// ParentMap maps a revision to its ordered parents. A revision that could
// not be resolved has no entry.
type ParentMap map[ID][]ID

// IDSet is an unordered set of revision ids.
type IDSet map[ID]bool

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...ID) IDSet {
	ret := make(IDSet, len(ids))
	for _, id := range ids {
		ret[id] = true
	}
	return ret
}

// Add inserts ids into the set.
func (s IDSet) Add(ids ...ID) {
	for _, id := range ids {
		s[id] = true
	}
}

// Copy returns a shallow copy of the set.
func (s IDSet) Copy() IDSet {
	ret := make(IDSet, len(s))
	for id := range s {
		ret[id] = true
	}
	return ret
}

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []ID {
	ret := make([]ID, 0, len(s))
	for id := range s {
		ret = append(ret, id)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// Equal returns true if both sets hold the same ids.
func (s IDSet) Equal(o IDSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o[id] {
			return false
		}
	}
	return true
}

// DottedRevno is a revision number: [N] on the mainline, [N, B, M] for the
// Mth revision of branch B off mainline revision N. Nested merges extend
// the mainline number of the revision they branch from.
type DottedRevno []int

// String formats the revno as "1.2.3".
func (r DottedRevno) String() string {
	parts := make([]string, len(r))
	for i, n := range r {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// IsMainline returns true for single-component revnos.
func (r DottedRevno) IsMainline() bool {
	return len(r) == 1
}

// Equal compares two revnos component-wise.
func (r DottedRevno) Equal(o DottedRevno) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

// ParseDottedRevno parses "1" or "1.2.3".
func ParseDottedRevno(s string) (DottedRevno, error) {
	if s == "" {
		return nil, skerr.Fmt("empty revno")
	}
	parts := strings.Split(s, ".")
	ret := make(DottedRevno, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, skerr.Fmt("invalid revno %q", s)
		}
		ret = append(ret, n)
	}
	return ret, nil
}

// FileID identifies a file across renames.
type FileID string

// TextKey addresses one version of one file.
type TextKey struct {
	FileID     FileID
	RevisionID ID
}

// Inventory maps every file in a tree snapshot to the revision that last
// modified it.
type Inventory map[FileID]ID

// SHA1 returns the hex sha1 of the inventory's canonical text: one
// "<file-id> <revision-id>" line per file, sorted by file id.
func (inv Inventory) SHA1() string {
	ids := make([]string, 0, len(inv))
	for f := range inv {
		ids = append(ids, string(f))
	}
	sort.Strings(ids)
	h := sha1.New()
	for _, f := range ids {
		fmt.Fprintf(h, "%s %s\n", f, inv[FileID(f)])
	}
	return hex.EncodeToString(h.Sum(nil))
}
