package common

import (
	"os"

	"github.com/mattn/go-isatty"
)

// OutputFormat mirrors azcopy's common.OutputFormat split between a
// human-readable console renderer and a machine-readable one for
// scripting; the host UI (§6.1, out of scope for this core) decides which
// it wants, but the bundled CLI auto-detects the way azcopy's does.
type OutputFormat int

const (
	OutputText OutputFormat = iota
	OutputJSON
)

func DefaultOutputFormat() OutputFormat {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return OutputText
	}
	return OutputJSON
}
