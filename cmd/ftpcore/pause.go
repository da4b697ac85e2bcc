package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/journal"
)

func newPauseCmd() *cobra.Command {
	var resumeInstead bool
	cmd := &cobra.Command{
		Use:   "pause <operation-uid>",
		Short: "Request a running operation to pause (or, with --resume, to continue)",
		Long: `pause writes a control request into the journal for the operation's
"run"/"resume" process to pick up at its next poll (§4.5.6), the same
best-effort cross-process notification tonimelisma-onedrive-go's own
pause command uses against a separate sync daemon.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := journal.ControlPause
			if resumeInstead {
				action = journal.ControlResume
			}
			return requestControl(cmd, args[0], action)
		},
	}
	cmd.Flags().BoolVar(&resumeInstead, "resume", false, "resume a paused operation instead of pausing it")
	return cmd
}

func requestControl(cmd *cobra.Command, rawUID, action string) error {
	env := envFrom(cmd.Context())
	uid, err := common.ParseOperationUID(rawUID)
	if err != nil {
		return fmt.Errorf("invalid operation uid %q: %w", rawUID, err)
	}
	if err := env.store.RequestControl(uid, action); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "requested %q on operation %s\n", action, uid)
	return nil
}
