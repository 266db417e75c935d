package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"go.skia.org/revgraph/go/gpg"
	"go.skia.org/revgraph/go/revstore"
	"go.skia.org/revgraph/go/skerr"
	"go.skia.org/revgraph/go/util"
)

// signMissingEnv provides the environment for the sign-missing command.
type signMissingEnv struct {
	root      *rootEnv
	keyPath   string
	committer string
	dryRun    bool
}

// getSignMissingCmd returns the definition of the sign-missing command.
func getSignMissingCmd(root *rootEnv) *cobra.Command {
	env := &signMissingEnv{root: root}
	cmd := &cobra.Command{
		Use:   "sign-missing",
		Short: "Sign every unsigned revision in the ancestry of the branch tip.",
		Args:  cobra.NoArgs,
		RunE:  env.runSignMissingCmd,
	}
	cmd.Flags().StringVar(&env.keyPath, "key", "", "Armored, unencrypted OpenPGP private key to sign with.")
	cmd.Flags().StringVar(&env.committer, "committer", "", "Only sign revisions by this committer.")
	cmd.Flags().BoolVar(&env.dryRun, "dry-run", false, "Print what would be signed without signing.")
	must(cmd.MarkFlagRequired("key"))
	return cmd
}

// runSignMissingCmd executes the sign-missing command.
func (e *signMissingEnv) runSignMissingCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	r, err := e.root.openRepo(ctx)
	if err != nil {
		return err
	}
	defer util.Close(r)

	s, ok := r.store.(revstore.SignatureStore)
	if !ok {
		return skerr.Wrapf(revstore.ErrUnsupported, "%s store cannot store signatures", r.cfg.Store.Kind)
	}
	signer, err := gpg.LoadSigner(e.keyPath)
	if err != nil {
		return err
	}
	ids, err := gpg.SignMissing(ctx, s, r.graph, r.branch.LastRevision(), signer, gpg.SignOptions{
		Committer: e.committer,
		DryRun:    e.dryRun,
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	verb := "Signed"
	if e.dryRun {
		verb = "Would sign"
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s revisions.\n", verb, humanize.Comma(int64(len(ids))))
	return nil
}
