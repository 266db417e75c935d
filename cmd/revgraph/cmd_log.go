package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"go.skia.org/revgraph/go/branch"
	"go.skia.org/revgraph/go/gpg"
	"go.skia.org/revgraph/go/revlog"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/util"
)

// logEnv provides the environment for the log command.
type logEnv struct {
	root *rootEnv

	revision              string
	forward               bool
	limit                 int
	levels                int
	includeMerged         bool
	excludeCommonAncestry bool
	verbose               bool
	patch                 bool
	showIDs               bool
	showSignature         bool
	omitMerges            bool
	format                string
	width                 int

	match          []string
	matchMessage   []string
	matchCommitter []string
	matchAuthor    []string
	matchBugs      []string
}

// getLogCmd returns the definition of the log command.
func getLogCmd(root *rootEnv) *cobra.Command {
	env := &logEnv{root: root}
	cmd := &cobra.Command{
		Use:   "log [FILE...]",
		Short: "Show the history of the branch.",
		Long: `
Shows revisions newest first. With FILE arguments only revisions that changed
one of the files are shown. -r takes a revision (3, -1, 1.2.1, revid:ID) or a
range A..B where either end may be left out.`,
		RunE: env.runLogCmd,
	}
	f := cmd.Flags()
	f.StringVarP(&env.revision, "revision", "r", "", "Revision or range to show.")
	f.BoolVar(&env.forward, "forward", false, "Show the oldest revision first.")
	f.IntVarP(&env.limit, "limit", "l", 0, "Show at most this many revisions, 0 for all.")
	f.IntVarP(&env.levels, "levels", "n", revlog.LevelsUnset, "Number of merge levels to show, 0 for all.")
	f.BoolVar(&env.includeMerged, "include-merged", false, "Show merged revisions, like --levels=0.")
	f.BoolVar(&env.excludeCommonAncestry, "exclude-common-ancestry", false, "Show the revisions in the end of the range that are not ancestors of its start.")
	f.BoolVarP(&env.verbose, "verbose", "v", false, "Show the files changed by each revision.")
	f.BoolVarP(&env.patch, "show-diff", "p", false, "Show the diff of each revision.")
	f.BoolVar(&env.showIDs, "show-ids", false, "Show revision ids.")
	f.BoolVar(&env.showSignature, "show-signature", false, "Verify and show the signature of each revision.")
	f.BoolVar(&env.omitMerges, "omit-merges", false, "Do not show merge revisions.")
	f.StringVar(&env.format, "format", "", fmt.Sprintf("Output format, one of %v.", revlog.FormatterNames()))
	f.IntVar(&env.width, "width", 0, "Truncate line format output to this width, 0 to not truncate.")
	f.StringArrayVarP(&env.match, "match", "m", nil, "Show revisions with a message, committer, author or bug matching this regexp.")
	f.StringArrayVar(&env.matchMessage, "match-message", nil, "Show revisions with a message matching this regexp.")
	f.StringArrayVar(&env.matchCommitter, "match-committer", nil, "Show revisions with a committer matching this regexp.")
	f.StringArrayVar(&env.matchAuthor, "match-author", nil, "Show revisions with an author matching this regexp.")
	f.StringArrayVar(&env.matchBugs, "match-bugs", nil, "Show revisions with a bug matching this regexp.")
	return cmd
}

// runLogCmd executes the log command.
func (e *logEnv) runLogCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := e.root.openRepo(ctx)
	if err != nil {
		return err
	}
	defer util.Close(r)

	rqst, err := e.request(cmd, r, args)
	if err != nil {
		return err
	}
	var validator revlog.SignatureValidator
	if rqst.Signature {
		if validator, err = newVerifier(r); err != nil {
			return err
		}
	}

	format := e.format
	if format == "" {
		format = r.cfg.Log.Formatter
	}
	if format == "" {
		format = revlog.DefaultFormatter
	}
	lf, err := revlog.NewFormatter(format, cmd.OutOrStdout(), revlog.FormatterOptions{
		Levels:     rqst.Levels,
		ShowIDs:    e.showIDs,
		ShowAdvice: rqst.Levels == revlog.LevelsUnset,
		Width:      e.width,
	})
	if err != nil {
		return err
	}
	shown, err := revlog.NewLogger(r.branch, rqst, validator).Show(ctx, lf)
	fmt.Fprintf(cmd.ErrOrStderr(), "Shown %s revisions.\n", humanize.Comma(int64(shown)))
	return err
}

// request builds the log request from the flags and the config.
func (e *logEnv) request(cmd *cobra.Command, r *repo, files []string) (*revlog.Request, error) {
	rqst := revlog.NewRequest()
	if e.forward {
		rqst.Direction = branch.Forward
	}
	rqst.SpecificFiles = files
	rqst.Limit = e.limit
	rqst.ExcludeCommonAncestry = e.excludeCommonAncestry
	rqst.Signature = e.showSignature
	rqst.OmitMerges = e.omitMerges
	if r.cfg.Log.BatchCap > 0 {
		rqst.BatchCap = r.cfg.Log.BatchCap
	}

	switch {
	case e.includeMerged:
		rqst.Levels = 0
	case cmd.Flags().Changed("levels"):
		rqst.Levels = e.levels
	case r.cfg.Log.Levels != nil:
		rqst.Levels = *r.cfg.Log.Levels
	}

	if e.verbose {
		rqst.DeltaType = revlog.DeltaFull
		if len(files) > 0 {
			rqst.DeltaType = revlog.DeltaPartial
		}
	}
	if e.patch {
		rqst.DiffType = revlog.DiffFull
		if len(files) > 0 {
			rqst.DiffType = revlog.DiffPartial
		}
	}

	for field, patterns := range map[string][]string{
		revlog.MatchAny:       e.match,
		revlog.MatchMessage:   e.matchMessage,
		revlog.MatchCommitter: e.matchCommitter,
		revlog.MatchAuthor:    e.matchAuthor,
		revlog.MatchBugs:      e.matchBugs,
	} {
		if len(patterns) == 0 {
			continue
		}
		if rqst.Match == nil {
			rqst.Match = map[string][]string{}
		}
		rqst.Match[field] = patterns
	}

	if e.revision != "" {
		start, end, err := revlog.ResolveRange(cmd.Context(), r.branch, e.revision)
		if err != nil {
			return nil, err
		}
		rqst.StartRevision, rqst.EndRevision = start, end
	}
	return rqst, nil
}

// newVerifier returns a signature verifier using the configured keyring.
func newVerifier(r *repo) (*gpg.Verifier, error) {
	if r.cfg.Keyring == "" {
		return nil, skerr.Fmt("showing signatures needs a keyring in the config")
	}
	src, ok := r.store.(revstore.SignatureSource)
	if !ok {
		return nil, skerr.Wrapf(revstore.ErrUnsupported, "%s store has no signatures", r.cfg.Store.Kind)
	}
	keyring, err := gpg.LoadKeyring(r.cfg.Keyring)
	if err != nil {
		return nil, err
	}
	var opts gpg.VerifierOptions
	if r.cfg.Store.Kind != storeKindGit {
		opts.Testaments = r.store
	}
	return gpg.NewVerifier(src, keyring, opts), nil
}
