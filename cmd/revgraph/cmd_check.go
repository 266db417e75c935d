package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/spf13/cobra"

	"go.skia.org/revgraph/go/check"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/util"
)

// checkEnv provides the environment for the check command.
type checkEnv struct {
	root    *rootEnv
	verbose bool
	branch  bool
	report  string
}

// getCheckCmd returns the definition of the check command.
func getCheckCmd(root *rootEnv) *cobra.Command {
	env := &checkEnv{root: root}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the store for consistency.",
		Long: `
Scans every revision, inventory and file text in the store and reports
ghosts, inconsistent file parents and other problems. Problems found in the
data are reported and do not fail the command.`,
		Args: cobra.NoArgs,
		RunE: env.runCheckCmd,
	}
	cmd.Flags().BoolVarP(&env.verbose, "verbose", "v", false, "List every problem found.")
	cmd.Flags().BoolVar(&env.branch, "branch", false, "Also check the branch against the store.")
	cmd.Flags().StringVar(&env.report, "report", "", "Write the report to this file instead of stdout.")
	return cmd
}

// runCheckCmd executes the check command.
func (e *checkEnv) runCheckCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	r, err := e.root.openRepo(ctx)
	if err != nil {
		return err
	}
	defer util.Close(r)

	opts := check.Options{Graph: r.graph}
	if e.branch {
		opts.Wanters = []check.RefWanter{r.branch}
	}
	start := time.Now()
	res, err := check.Run(ctx, r.store, opts)
	writeReport := func(w io.Writer) error {
		for _, line := range res.Report(e.verbose) {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	}
	var werr error
	if e.report == "" {
		werr = writeReport(cmd.OutOrStdout())
	} else {
		werr = util.WithWriteFile(e.report, writeReport)
	}
	if werr != nil {
		return skerr.Wrapf(werr, "writing check report")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Checked %s revisions in %s.\n", humanize.Comma(int64(res.RevisionCount)), durafmt.ParseShort(time.Since(start)))
	return nil
}
