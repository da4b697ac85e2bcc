package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/journal"
	"github.com/twopanel/ftpcore/operation"
)

const controlPollInterval = 500 * time.Millisecond

// runForeground drives op to completion in the calling process, the
// foreground-loop counterpart of azcopy's cmd/root.go blocking until the
// STE finishes: it polls the journal for pause/resume/cancel requests
// issued by a separate `ftpcore pause`/`cancel` invocation (journal.Store
// is the only channel two CLI processes here share), prints progress,
// and honors SIGINT/SIGTERM the way tonimelisma-onedrive-go's
// shutdownContext does.
func runForeground(ctx context.Context, env *cliEnv, uid common.OperationUID, op *operation.Operation) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	op.ActivateOperationDialog()
	op.Start(ctx)

	ticker := time.NewTicker(controlPollInterval)
	defer ticker.Stop()

	done := make(chan error, 1)
	go func() { done <- op.Wait(ctx) }()

	var finalErr error
loop:
	for {
		select {
		case <-ticker.C:
			applyPendingControl(env, uid, op)
			printProgress(env, op)
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "received %s, cancelling operation\n", sig)
			op.Cancel()
		case finalErr = <-done:
			break loop
		}
	}

	printProgress(env, op)
	op.CloseOperationDialog()
	op.Close()

	state := op.GetOperationState()
	if state == operation.StateSuccessfullyFinished {
		if err := env.store.DeleteOperation(uid); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not clear journal for operation %s: %v\n", uid, err)
		}
	}
	return finalErr
}

// applyPendingControl polls and applies at most one queued pause/resume/
// cancel request per tick; PollControl already clears what it returns, so
// a request is never double-applied.
func applyPendingControl(env *cliEnv, uid common.OperationUID, op *operation.Operation) {
	action, err := env.store.PollControl(uid)
	if err != nil || action == journal.ControlNone {
		return
	}
	switch action {
	case journal.ControlPause:
		op.Pause()
	case journal.ControlResume:
		op.Resume()
	case journal.ControlCancel:
		op.Cancel()
	}
}

func printProgress(env *cliEnv, op *operation.Operation) {
	p := op.GetProgress()
	printResult(os.Stdout, env.out, p, func() string {
		return fmt.Sprintf("[%s] %d/%d items, %d errors, %d/%d bytes (%.1f KB/s)",
			p.State, p.DoneOrSkipped, p.TotalItems, p.ErrorsCount,
			p.BytesCompleted, p.BytesTotal, p.SpeedBytesSec/1024)
	})
}
