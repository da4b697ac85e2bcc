package main

import (
	"github.com/spf13/cobra"

	"github.com/twopanel/ftpcore/journal"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <operation-uid>",
		Short: "Request a running or journaled operation to stop",
		Long: `cancel writes a cancel control request into the journal (§4.5.6). A
running "run"/"resume" process honors it at its next poll and leaves the
journal in place unless the operation had already finished clean, so the
partially-completed work can still be inspected with "status" or
continued later with "resume".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return requestControl(cmd, args[0], journal.ControlCancel)
		},
	}
}
