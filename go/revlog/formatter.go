package revlog

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
)

// Capabilities is what a Formatter can display. Logger.Show narrows the
// request to it before generating anything.
type Capabilities struct {
	MergeRevisions bool
	// PreferredLevels is used when neither the request nor the formatter
	// options set the levels. 0 is all levels.
	PreferredLevels int
	Delta           bool
	Tags            bool
	Diff            bool
	Signatures      bool
}

// FormatterOptions configures a Formatter.
type FormatterOptions struct {
	// Levels is LevelsUnset to use the formatter's preference.
	Levels  int
	ShowIDs bool
	// ShowAdvice hints at --include-merged after a mainline-only log that
	// skipped merges.
	ShowAdvice bool
	// ShortDelta shows deltas as one status letter per change.
	ShortDelta bool
	// Width truncates line formatter output. 0 does not truncate.
	Width int
}

// Formatter renders LogRevisions.
type Formatter interface {
	Capabilities() Capabilities
	// Levels returns the number of levels the formatter shows, 0 for all.
	Levels() int
	LogRevision(r *LogRevision) error
	// ShowAdvice is called after the last revision.
	ShowAdvice() error
}

// DefaultFormatter is the name of the formatter used when none is given.
const DefaultFormatter = "long"

var formatters = map[string]func(io.Writer, FormatterOptions) Formatter{
	"long":  newLongFormatter,
	"short": newShortFormatter,
	"line":  newLineFormatter,
}

// FormatterNames returns the names NewFormatter accepts.
func FormatterNames() []string {
	ret := make([]string, 0, len(formatters))
	for name := range formatters {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// NewFormatter returns the named formatter writing to w.
func NewFormatter(name string, w io.Writer, opts FormatterOptions) (Formatter, error) {
	f, ok := formatters[name]
	if !ok {
		return nil, skerr.Fmt("unknown log format %q, expected one of %s", name, strings.Join(FormatterNames(), ", "))
	}
	return f(w, opts), nil
}

type baseFormatter struct {
	w          io.Writer
	opts       FormatterOptions
	caps       Capabilities
	mergeCount int
	// adviceSep is written before the advice.
	adviceSep string
}

func (f *baseFormatter) Capabilities() Capabilities {
	return f.caps
}

func (f *baseFormatter) Levels() int {
	if !f.caps.MergeRevisions {
		return 1
	}
	if f.opts.Levels == LevelsUnset {
		return f.caps.PreferredLevels
	}
	return f.opts.Levels
}

func (f *baseFormatter) ShowAdvice() error {
	if !f.opts.ShowAdvice || f.Levels() != 1 || f.mergeCount == 0 {
		return nil
	}
	_, err := fmt.Fprintf(f.w, "%sUse --include-merged or -n0 to see merged revisions.\n", f.adviceSep)
	return err
}

func (f *baseFormatter) mergeMarker(rev *revision.Revision) string {
	if len(rev.ParentIDs) > 1 {
		f.mergeCount++
		return " [merge]"
	}
	return ""
}

// parseUsername splits "Name <address>".
func parseUsername(s string) (string, string) {
	open := strings.IndexByte(s, '<')
	if open < 0 {
		if strings.Contains(s, "@") {
			return "", strings.TrimSpace(s)
		}
		return strings.TrimSpace(s), ""
	}
	name := strings.TrimSpace(s[:open])
	addr := s[open+1:]
	if end := strings.IndexByte(addr, '>'); end >= 0 {
		addr = addr[:end]
	}
	return name, strings.TrimSpace(addr)
}

// shortAuthor is the name, or else the address, of the first author.
func shortAuthor(rev *revision.Revision) string {
	authors := rev.ApparentAuthors()
	if len(authors) == 0 {
		return ""
	}
	name, addr := parseUsername(authors[0])
	if name != "" {
		return name
	}
	return addr
}

func sortedTags(tags []string) string {
	sorted := append([]string{}, tags...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}

func messageLines(rev *revision.Revision) []string {
	msg := strings.TrimRight(rev.Message, "\r\n")
	if msg == "" {
		return nil
	}
	return strings.Split(msg, "\n")
}

func kindSuffix(k revstore.Kind) string {
	switch k {
	case revstore.KindDirectory:
		return "/"
	case revstore.KindSymlink:
		return "@"
	}
	return ""
}

// writeDelta writes d either as sections per kind of change or, if short,
// one status letter per change.
func writeDelta(b *strings.Builder, d *revstore.TreeDelta, short bool, indent string) {
	sections := []struct {
		title   string
		letter  string
		changes []revstore.Change
		moved   bool
	}{
		{"added", "A", d.Added, false},
		{"removed", "D", d.Removed, false},
		{"renamed", "R", d.Renamed, true},
		{"copied", "C", d.Copied, true},
		{"modified", "M", d.Modified, false},
	}
	for _, s := range sections {
		if len(s.changes) == 0 {
			continue
		}
		if !short {
			fmt.Fprintf(b, "%s%s:\n", indent, s.title)
		}
		for _, c := range s.changes {
			path := c.Path() + kindSuffix(c.Kind)
			if s.moved {
				path = c.OldPath + kindSuffix(c.Kind) + " => " + c.NewPath + kindSuffix(c.Kind)
			}
			if short {
				fmt.Fprintf(b, "%s%s  %s\n", indent, s.letter, path)
			} else {
				fmt.Fprintf(b, "%s  %s\n", indent, path)
			}
		}
	}
}

func writeDiff(b *strings.Builder, diff []byte, indent string) {
	for _, line := range strings.Split(strings.TrimRight(string(diff), " \t\r\n"), "\n") {
		b.WriteString(indent + line + "\n")
	}
}

const longSeparator = "------------------------------------------------------------"

type longFormatter struct {
	baseFormatter
}

func newLongFormatter(w io.Writer, opts FormatterOptions) Formatter {
	return &longFormatter{baseFormatter{
		w:    w,
		opts: opts,
		caps: Capabilities{
			MergeRevisions:  true,
			PreferredLevels: 1,
			Delta:           true,
			Tags:            true,
			Diff:            true,
			Signatures:      true,
		},
		adviceSep: longSeparator + "\n",
	}}
}

func (f *longFormatter) LogRevision(r *LogRevision) error {
	rev := r.Rev
	indent := strings.Repeat("    ", r.MergeDepth)
	lines := []string{longSeparator}
	if r.Revno != "" {
		lines = append(lines, "revno: "+r.Revno+f.mergeMarker(rev))
	}
	if len(r.Tags) > 0 {
		lines = append(lines, "tags: "+sortedTags(r.Tags))
	}
	if f.opts.ShowIDs || r.Revno == "" {
		lines = append(lines, "revision-id: "+string(rev.ID))
	}
	if f.opts.ShowIDs {
		for _, p := range rev.ParentIDs {
			lines = append(lines, "parent: "+string(p))
		}
	}
	authors := rev.ApparentAuthors()
	if len(authors) != 1 || authors[0] != rev.Committer {
		lines = append(lines, "author: "+strings.Join(authors, ", "))
	}
	lines = append(lines, "committer: "+rev.Committer)
	if nick, ok := rev.Properties["branch-nick"]; ok {
		lines = append(lines, "branch nick: "+nick)
	}
	lines = append(lines, "timestamp: "+rev.Time().Format("Mon 2006-01-02 15:04:05 -0700"))
	if r.Signature != "" {
		lines = append(lines, "signature: "+r.Signature)
	}
	lines = append(lines, "message:")
	msg := messageLines(rev)
	if len(msg) == 0 {
		lines = append(lines, "  (no message)")
	}
	for _, l := range msg {
		lines = append(lines, "  "+l)
	}

	var b strings.Builder
	b.WriteString(indent + strings.Join(lines, "\n"+indent) + "\n")
	if r.Delta != nil {
		writeDelta(&b, r.Delta, f.opts.ShortDelta, indent)
	}
	if r.Diff != nil {
		b.WriteString(indent + "diff:\n")
		// Not indented, so that the output can be fed to patch.
		writeDiff(&b, r.Diff, "")
	}
	_, err := io.WriteString(f.w, b.String())
	return err
}

type shortFormatter struct {
	baseFormatter
	// revnoWidth is fixed per depth by the first revision at that depth so
	// that later revisions line up.
	revnoWidth map[int]int
}

func newShortFormatter(w io.Writer, opts FormatterOptions) Formatter {
	return &shortFormatter{
		baseFormatter: baseFormatter{
			w:    w,
			opts: opts,
			caps: Capabilities{
				MergeRevisions:  true,
				PreferredLevels: 1,
				Delta:           true,
				Tags:            true,
				Diff:            true,
			},
		},
		revnoWidth: map[int]int{},
	}
}

func (f *shortFormatter) LogRevision(r *LogRevision) error {
	rev := r.Rev
	indent := strings.Repeat("    ", r.MergeDepth)
	width, ok := f.revnoWidth[r.MergeDepth]
	if !ok {
		width = 5
		if strings.Contains(r.Revno, ".") {
			width = 11
		}
		f.revnoWidth[r.MergeDepth] = width
	}
	offset := indent + strings.Repeat(" ", width+1)
	tags := ""
	if len(r.Tags) > 0 {
		tags = " {" + sortedTags(r.Tags) + "}"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s%*s %s\t%s%s%s\n", indent, width, r.Revno, shortAuthor(rev), rev.Time().Format("2006-01-02"), tags, f.mergeMarker(rev))
	if f.opts.ShowIDs || r.Revno == "" {
		fmt.Fprintf(&b, "%srevision-id:%s\n", offset, rev.ID)
	}
	msg := messageLines(rev)
	if len(msg) == 0 {
		b.WriteString(offset + "(no message)\n")
	}
	for _, l := range msg {
		b.WriteString(offset + l + "\n")
	}
	if r.Delta != nil {
		writeDelta(&b, r.Delta, f.opts.ShortDelta, offset)
	}
	if r.Diff != nil {
		writeDiff(&b, r.Diff, "      ")
	}
	b.WriteString("\n")
	_, err := io.WriteString(f.w, b.String())
	return err
}

type lineFormatter struct {
	baseFormatter
}

func newLineFormatter(w io.Writer, opts FormatterOptions) Formatter {
	return &lineFormatter{baseFormatter{
		w:    w,
		opts: opts,
		caps: Capabilities{
			MergeRevisions:  true,
			PreferredLevels: 1,
			Tags:            true,
		},
	}}
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func (f *lineFormatter) LogRevision(r *LogRevision) error {
	rev := r.Rev
	var out []string
	if r.Revno != "" {
		out = append(out, r.Revno+":")
	}
	author := shortAuthor(rev)
	if f.opts.Width > 0 {
		author = truncate(author, (f.opts.Width+3)/4)
	}
	out = append(out, author, rev.Time().Format("2006-01-02"))
	if m := f.mergeMarker(rev); m != "" {
		out = append(out, strings.TrimSpace(m))
	}
	if len(r.Tags) > 0 {
		out = append(out, "{"+sortedTags(r.Tags)+"}")
	}
	summary := rev.Summary()
	if summary == "" {
		summary = "(no message)"
	}
	out = append(out, summary)
	line := strings.Repeat("  ", r.MergeDepth) + strings.Join(out, " ")
	_, err := io.WriteString(f.w, truncate(line, f.opts.Width)+"\n")
	return err
}
