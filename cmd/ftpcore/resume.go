package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/journal"
	"github.com/twopanel/ftpcore/operation"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [operation-uid]",
		Short: "Resume a journaled operation interrupted by a crash or a prior cancel",
		Long: `resume reloads an operation's queue from the journal (§4.7) and continues
it in the foreground exactly like "run" does for a fresh one. With no
argument, it resumes the oldest still-journaled operation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, args)
		},
	}
}

func runResume(cmd *cobra.Command, args []string) error {
	env := envFrom(cmd.Context())

	pending, err := env.store.RecoverOperations()
	if err != nil {
		return fmt.Errorf("listing recoverable operations: %w", err)
	}
	if len(pending) == 0 {
		return fmt.Errorf("no journaled operation to resume")
	}

	target, err := selectPendingOperation(pending, args)
	if err != nil {
		return err
	}

	level, err := parseLogLevel(flagLogLevel)
	if err != nil {
		return err
	}
	common.SetCurrentLogger(common.NewOperationLogger(target.UID, level, flagLogDir, ""))

	op := operation.New(target.UID, env.list, env.shared, target.Params)
	env.list.Add(op)

	if err := env.store.RestoreQueue(target.UID, op.Queue()); err != nil {
		return fmt.Errorf("restoring queue for operation %s: %w", target.UID, err)
	}

	fmt.Fprintf(os.Stderr, "resuming operation %s\n", target.UID)
	return runForeground(cmd.Context(), env, target.UID, op)
}

func selectPendingOperation(pending []journal.PendingOperation, args []string) (journal.PendingOperation, error) {
	if len(args) == 0 {
		return pending[0], nil
	}
	uid, err := common.ParseOperationUID(args[0])
	if err != nil {
		return journal.PendingOperation{}, fmt.Errorf("invalid operation uid %q: %w", args[0], err)
	}
	for _, p := range pending {
		if p.UID == uid {
			return p, nil
		}
	}
	return journal.PendingOperation{}, fmt.Errorf("operation %s is not journaled", uid)
}
