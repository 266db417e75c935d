package main

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"go.skia.org/revgraph/go/gpg"
	"go.skia.org/revgraph/go/graph"
	"go.skia.org/revgraph/go/revision"
	"go.skia.org/revgraph/go/util"
)

// statusOrder is the row order of the verify-signatures table.
var statusOrder = []gpg.Status{
	gpg.StatusValid,
	gpg.StatusKeyMissing,
	gpg.StatusNotValid,
	gpg.StatusNotSigned,
	gpg.StatusExpired,
}

// getVerifySignaturesCmd returns the definition of the verify-signatures
// command.
func getVerifySignaturesCmd(root *rootEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-signatures",
		Short: "Count the signature statuses of the ancestry of the branch tip.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r, err := root.openRepo(ctx)
			if err != nil {
				return err
			}
			defer util.Close(r)

			v, err := newVerifier(r)
			if err != nil {
				return err
			}
			ancestry, err := r.graph.AncestryParentMap(ctx, []revision.ID{r.branch.LastRevision()})
			if err != nil {
				return err
			}
			ids, err := graph.TopologicalSort(ancestry)
			if err != nil {
				return err
			}
			counts, err := v.VerifyAll(ctx, ids)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Status", "Revisions"})
			for _, s := range statusOrder {
				table.Append([]string{s.String(), strconv.Itoa(counts[s])})
			}
			table.Render()
			return nil
		},
	}
}
