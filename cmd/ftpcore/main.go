// Command ftpcore is the CLI front end for the engine (§2's "the host
// creates an Operation"): it is one such host, useful standalone for
// scripting and for exercising the engine outside a two-panel UI.
//
// Grounded on azcopy's cmd/root.go + main.go split (a cobra root command
// built in its own package, executed from a thin main) and on
// tonimelisma-onedrive-go's flat single-package cmd layout, which this
// follows directly since ftpcore's subcommand count doesn't warrant
// azcopy's separate cmd package.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
