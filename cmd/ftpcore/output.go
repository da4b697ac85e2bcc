package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

// outputFormat is a pflag.Value the same way azcopy's root.go parses
// --output-type into azcopyOutputFormat: a small enum type that owns its
// own flag-string round trip instead of a bare bool/string pair.
type outputFormat int

const (
	outputText outputFormat = iota
	outputJSON
)

// defaultOutputFormat mirrors tonimelisma-onedrive-go's pattern of using
// go-isatty to pick a sensible default before any flag is parsed: a
// human at a terminal gets text, a pipeline gets JSON it can jq through.
func defaultOutputFormat() outputFormat {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return outputText
	}
	return outputJSON
}

func (f *outputFormat) String() string {
	if *f == outputJSON {
		return "json"
	}
	return "text"
}

func (f *outputFormat) Set(s string) error {
	switch s {
	case "text":
		*f = outputText
	case "json":
		*f = outputJSON
	default:
		return fmt.Errorf("invalid output format %q, expected text or json", s)
	}
	return nil
}

func (f *outputFormat) Type() string { return "outputFormat" }

var _ pflag.Value = (*outputFormat)(nil)

// printResult writes v to w as either a text line (via toText) or as
// JSON, per the active --output format.
func printResult(w io.Writer, format outputFormat, v any, toText func() string) {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	fmt.Fprintln(w, toText())
}
