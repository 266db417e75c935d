// revgraph shows and checks the history of a revision store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"go.skia.org/revgraph/go/sklog"
)

// exitCodeError is returned for every failed command.
const exitCodeError = 3

// errColor only colors output on a terminal.
var errColor = color.New(color.FgRed, color.Bold)

func main() {
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	sklog.Flush()
	os.Exit(code)
}

// run executes the command line in args and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := getRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		errColor.Fprint(stderr, "revgraph: ")
		fmt.Fprintln(stderr, err)
		return exitCodeError
	}
	return 0
}
