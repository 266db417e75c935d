package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.skia.org/revgraph/go/revlog"
	"go.skia.org/revgraph/go/util"
)

// getLCACmd returns the definition of the lca command.
func getLCACmd(root *rootEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "lca REV1 REV2",
		Short: "Print the unique lowest common ancestor of two revisions.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := root.openRepo(ctx)
			if err != nil {
				return err
			}
			defer util.Close(r)

			a, err := revlog.ResolveRevision(ctx, r.branch, args[0])
			if err != nil {
				return err
			}
			b, err := revlog.ResolveRevision(ctx, r.branch, args[1])
			if err != nil {
				return err
			}
			lca, err := r.graph.FindUniqueLCA(ctx, a.ID, b.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), lca)
			return nil
		},
	}
}
