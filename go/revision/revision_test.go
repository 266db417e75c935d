package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApparentAuthors(t *testing.T) {
	r := &Revision{Committer: "Committer <c@example.com>"}
	assert.Equal(t, []string{"Committer <c@example.com>"}, r.ApparentAuthors())

	r.Properties = map[string]string{"author": "A <a@example.com>"}
	assert.Equal(t, []string{"A <a@example.com>"}, r.ApparentAuthors())

	r.Properties["authors"] = "A <a@example.com>\nB <b@example.com>\n"
	assert.Equal(t, []string{"A <a@example.com>", "B <b@example.com>"}, r.ApparentAuthors())
}

func TestBugs(t *testing.T) {
	r := &Revision{Properties: map[string]string{
		"bugs": "https://bugs.example.com/1 fixed\nmalformed\nhttps://bugs.example.com/2 related",
	}}
	assert.Equal(t, []Bug{
		{URL: "https://bugs.example.com/1", Status: "fixed"},
		{URL: "https://bugs.example.com/2", Status: "related"},
	}, r.Bugs())
	assert.Empty(t, (&Revision{}).Bugs())
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "first line", (&Revision{Message: "\nfirst line\nsecond\n"}).Summary())
	assert.Equal(t, "only", (&Revision{Message: "only"}).Summary())
}

func TestDottedRevno(t *testing.T) {
	r, err := ParseDottedRevno("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, DottedRevno{1, 2, 3}, r)
	assert.Equal(t, "1.2.3", r.String())
	assert.False(t, r.IsMainline())
	assert.True(t, DottedRevno{4}.IsMainline())
	assert.True(t, r.Equal(DottedRevno{1, 2, 3}))
	assert.False(t, r.Equal(DottedRevno{1, 2}))

	for _, bad := range []string{"", "1..2", "a", "1.-1"} {
		_, err := ParseDottedRevno(bad)
		assert.Error(t, err, bad)
	}
}

func TestTestament_DependsOnContentOnly(t *testing.T) {
	mk := func() *Revision {
		return &Revision{
			ID:            "rev-1",
			ParentIDs:     []ID{"rev-0"},
			Committer:     "Joe <joe@example.com>",
			Message:       "fix\n\nbody",
			Timestamp:     1700000000.5,
			Timezone:      3600,
			Properties:    map[string]string{"b": "2", "a": "1"},
			InventorySHA1: "abc",
		}
	}
	a, b := mk(), mk()
	assert.Equal(t, Testament(a), Testament(b))
	assert.Contains(t, string(Testament(a)), "revision-id: rev-1\n")
	b.Message = "different"
	assert.NotEqual(t, Testament(a), Testament(b))
}

func TestInventorySHA1_OrderIndependent(t *testing.T) {
	a := Inventory{"f1": "r1", "f2": "r2"}
	b := Inventory{"f2": "r2", "f1": "r1"}
	assert.Equal(t, a.SHA1(), b.SHA1())
	assert.Len(t, a.SHA1(), 40)
	assert.NotEqual(t, a.SHA1(), Inventory{"f1": "r1"}.SHA1())
}

func TestIDSet(t *testing.T) {
	s := NewIDSet("b", "a")
	s.Add("c")
	assert.Equal(t, []ID{"a", "b", "c"}, s.Sorted())
	c := s.Copy()
	delete(c, "a")
	assert.True(t, s["a"])
	assert.False(t, s.Equal(c))
	assert.True(t, s.Equal(NewIDSet("a", "b", "c")))
}

func TestIsNull(t *testing.T) {
	assert.True(t, NullRevision.IsNull())
	assert.True(t, ID("").IsNull())
	assert.False(t, ID("x").IsNull())
}
