// Package revision holds the immutable data types shared by the graph, log
// and check packages.
package revision

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ID is an opaque revision identifier.
type ID string

// NullRevision is the root of every history. It is an ancestor of all
// revisions and never has parents.
const NullRevision ID = "null:"

// IsNull returns true for the empty ID and NullRevision.
func (id ID) IsNull() bool {
	return id == "" || id == NullRevision
}

// Revision is one commit.
type Revision struct {
	ID ID
	// ParentIDs is ordered; ParentIDs[0] is the lefthand (mainline) parent.
	ParentIDs []ID
	Committer string
	Message   string
	// Timestamp is in POSIX seconds. It is display-only and never used for
	// ordering.
	Timestamp float64
	// Timezone is the committer's offset from UTC in seconds.
	Timezone      int
	Properties    map[string]string
	InventorySHA1 string
}

// Time returns the commit time in the committer's timezone.
func (r *Revision) Time() time.Time {
	secs := int64(r.Timestamp)
	nanos := int64((r.Timestamp - float64(secs)) * 1e9)
	return time.Unix(secs, nanos).In(time.FixedZone("", r.Timezone))
}

// ApparentAuthors returns the authors of the change. This is the "authors"
// property, falling back to "author" and then to the committer.
func (r *Revision) ApparentAuthors() []string {
	if authors, ok := r.Properties["authors"]; ok {
		ret := []string{}
		for _, a := range strings.Split(authors, "\n") {
			if a != "" {
				ret = append(ret, a)
			}
		}
		return ret
	}
	if author, ok := r.Properties["author"]; ok {
		return []string{author}
	}
	return []string{r.Committer}
}

// Bug is one entry of the "bugs" property.
type Bug struct {
	URL    string
	Status string
}

// Bugs parses the "bugs" property. Each line is "<url> <status>"; malformed
// lines are skipped.
func (r *Revision) Bugs() []Bug {
	var ret []Bug
	for _, line := range strings.Split(r.Properties["bugs"], "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		ret = append(ret, Bug{URL: fields[0], Status: fields[1]})
	}
	return ret
}

// Summary is the first line of the message.
func (r *Revision) Summary() string {
	msg := strings.TrimSpace(r.Message)
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}

// Testament returns the canonical text of a revision that signatures are
// made over. Two revisions with the same content have identical testaments.
func Testament(r *Revision) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "revgraph testament short form 1\n")
	fmt.Fprintf(&buf, "revision-id: %s\n", r.ID)
	fmt.Fprintf(&buf, "committer: %s\n", r.Committer)
	fmt.Fprintf(&buf, "timestamp: %s\n", strconv.FormatFloat(r.Timestamp, 'f', 3, 64))
	fmt.Fprintf(&buf, "timezone: %d\n", r.Timezone)
	buf.WriteString("parents:\n")
	for _, p := range r.ParentIDs {
		fmt.Fprintf(&buf, "  %s\n", p)
	}
	buf.WriteString("message:\n")
	for _, line := range strings.Split(r.Message, "\n") {
		fmt.Fprintf(&buf, "  %s\n", line)
	}
	fmt.Fprintf(&buf, "inventory-sha1: %s\n", r.InventorySHA1)
	keys := make([]string, 0, len(r.Properties))
	for k := range r.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteString("properties:\n")
	for _, k := range keys {
		fmt.Fprintf(&buf, "  %s:\n", k)
		for _, line := range strings.Split(r.Properties[k], "\n") {
			fmt.Fprintf(&buf, "    %s\n", line)
		}
	}
	return buf.Bytes()
}
