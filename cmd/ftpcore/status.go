package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/queue"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [operation-uid]",
		Short: "Report the journaled progress of one or every recoverable operation",
		Long: `status replays an operation's journaled items into a throwaway Queue
(§4.7) and reports its totals. Unlike "run"'s live progress, this reflects
whatever was last journaled, not a running process's in-memory state --
the only view available of an operation this CLI invocation didn't start.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args)
		},
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	env := envFrom(cmd.Context())

	pending, err := env.store.RecoverOperations()
	if err != nil {
		return fmt.Errorf("listing journaled operations: %w", err)
	}

	if len(args) == 1 {
		uid, err := common.ParseOperationUID(args[0])
		if err != nil {
			return fmt.Errorf("invalid operation uid %q: %w", args[0], err)
		}
		found := false
		for _, p := range pending {
			if p.UID == uid {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("operation %s is not journaled", uid)
		}
		return printOperationStatus(env, uid)
	}

	if len(pending) == 0 {
		printResult(os.Stdout, env.out, []string{}, func() string { return "no journaled operations" })
		return nil
	}
	for _, p := range pending {
		if err := printOperationStatus(env, p.UID); err != nil {
			return err
		}
	}
	return nil
}

// operationStatus is the JSON/text shape one status line reports.
type operationStatus struct {
	UID           string `json:"uid"`
	State         string `json:"state"`
	TotalItems    int    `json:"totalItems"`
	DoneOrSkipped int    `json:"doneOrSkipped"`
	ErrorsCount   int    `json:"errorsCount"`
}

func printOperationStatus(env *cliEnv, uid common.OperationUID) error {
	q := queue.New()
	if err := env.store.RestoreQueue(uid, q); err != nil {
		return fmt.Errorf("restoring queue for operation %s: %w", uid, err)
	}

	totals := q.Totals()
	errs := q.ErrorCount()
	state := "waiting"
	switch {
	case errs > 0:
		state = "hasErrors"
	case totals.ItemCount > 0 && totals.DoneOrSkippedCount >= totals.ItemCount:
		state = "done"
	case totals.ItemCount > 0:
		state = "inProgress"
	}

	st := operationStatus{
		UID:           uid.String(),
		State:         state,
		TotalItems:    totals.ItemCount,
		DoneOrSkipped: totals.DoneOrSkippedCount,
		ErrorsCount:   errs,
	}
	printResult(os.Stdout, env.out, st, func() string {
		return fmt.Sprintf("%s  %-10s  %d/%d items  %d errors", st.UID, st.State, st.DoneOrSkipped, st.TotalItems, st.ErrorsCount)
	})
	return nil
}
