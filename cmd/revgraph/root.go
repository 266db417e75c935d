package main

import (
	"github.com/spf13/cobra"

	"go.skia.org/revgraph/go/sklog"
)

const fstrConfig = "config"

// rootEnv holds the flags shared by every command.
type rootEnv struct {
	configPaths []string
	debug       bool
}

// getRootCmd returns the revgraph command with all of its subcommands.
func getRootCmd() *cobra.Command {
	env := &rootEnv{}
	cmd := &cobra.Command{
		Use:   "revgraph",
		Short: "Inspect the revision graph of a store.",
		Long: `
revgraph reads a revision store described by one or more JSON5 config files
and shows its log, checks its consistency, or signs its revisions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			sklog.SetDebug(env.debug)
		},
	}
	cmd.PersistentFlags().StringSliceVar(&env.configPaths, fstrConfig, nil, "JSON5 config files, later ones override earlier ones.")
	cmd.PersistentFlags().BoolVar(&env.debug, "debug", false, "Log debug messages.")
	must(cmd.MarkPersistentFlagRequired(fstrConfig))

	cmd.AddCommand(
		getLogCmd(env),
		getCheckCmd(env),
		getLCACmd(env),
		getSignMissingCmd(env),
		getVerifySignaturesCmd(env),
	)
	return cmd
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
