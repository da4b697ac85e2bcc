package operation

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/listingcache"
)

// maxConnectionsAcrossOperations caps the total number of simultaneous
// FTP data/control connections across every running Operation, the same
// way azcopy's job manager caps concurrent network use across an
// invocation's jobs rather than per job.
const maxConnectionsAcrossOperations = 64

// OperationsList is the process-wide registry of live Operations (§4.7):
// it answers the two-panel host's cross-operation conflict queries
// (canMakeChangesOnPath, isUploadingToServer) and holds a shared
// connection budget (AcquireConnection/ReleaseConnection).
//
// Grounded on ste/mgr-JobMgr.go's pattern of one package-level registry
// keyed by uid, and on common/exclusiveStringMap.go's collision-style
// checking for the path-conflict queries, adapted from "one key per
// destination path, insert fails on collision" to "scan every live
// operation's OwnsPath", since two Operations legitimately share a
// source path for the lifetime of a read (only writes conflict).
type OperationsList struct {
	mu         sync.Mutex
	operations map[common.OperationUID]*Operation

	connBudget *semaphore.Weighted

	closedGen int // incremented whenever an operation finishes, for workerMayBeClosedEvent
	closedCh  chan struct{}
}

func NewOperationsList() *OperationsList {
	return &OperationsList{
		operations: make(map[common.OperationUID]*Operation),
		connBudget: semaphore.NewWeighted(maxConnectionsAcrossOperations),
		closedCh:   make(chan struct{}),
	}
}

// Add registers op under its uid (§4.7's "the host creates an Operation
// ... and registers it with OperationsList").
func (l *OperationsList) Add(op *Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.operations[op.uid] = op
}

// Delete removes an operation once the host has fully torn it down
// (dialog closed and workers stopped); it also pulses
// workerMayBeClosedEvent so anything waiting on WaitForCompletion wakes
// to re-check.
func (l *OperationsList) Delete(uid common.OperationUID) {
	l.mu.Lock()
	delete(l.operations, uid)
	l.closedGen++
	ch := l.closedCh
	l.closedCh = make(chan struct{})
	l.mu.Unlock()
	close(ch)
}

func (l *OperationsList) Get(uid common.OperationUID) (*Operation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	op, ok := l.operations[uid]
	return op, ok
}

func (l *OperationsList) snapshot() []*Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Operation, 0, len(l.operations))
	for _, op := range l.operations {
		out = append(out, op)
	}
	return out
}

// CanMakeChangesOnPath is §4.6's admission check for a destructive
// two-panel action (delete/rename/chattrs) on path: it fails if any
// registered operation currently owns an overlapping path on the same
// server, the same way ExclusiveStringMap.Add fails on a key collision.
func (l *OperationsList) CanMakeChangesOnPath(user, host string, port int, path string, pathType listingcache.PathType) (bool, error) {
	for _, op := range l.snapshot() {
		if op.OwnsPath(user, host, port, path, pathType) {
			return false, fmt.Errorf("path %q is in use by a running operation", path)
		}
	}
	return true, nil
}

// IsUploadingToServer reports whether any registered operation is
// currently uploading to (user,host,port), so the host can suppress a
// directory-listing refresh that would otherwise race an in-flight
// upload (§4.6).
func (l *OperationsList) IsUploadingToServer(user, host string, port int) bool {
	for _, op := range l.snapshot() {
		if op.IsUploading(user, host, port) {
			return true
		}
	}
	return false
}

// AcquireConnection blocks until the shared connection budget has room,
// mirroring jobMgr.OccupyAConnection. Workers do not call it when they
// dial, so the budget bounds only callers that acquire a slot through it
// explicitly and give it back with ReleaseConnection.
func (l *OperationsList) AcquireConnection(ctx context.Context) error {
	return l.connBudget.Acquire(ctx, 1)
}

// ReleaseConnection gives back one slot acquired via AcquireConnection.
func (l *OperationsList) ReleaseConnection() {
	l.connBudget.Release(1)
}

// StopAll requests every registered operation's workers to stop, used on
// host shutdown.
func (l *OperationsList) StopAll() {
	for _, op := range l.snapshot() {
		op.Stop()
	}
}

// PauseAll/ResumeAll forward to every registered operation, for a
// host-wide pause action distinct from pausing one operation's dialog.
func (l *OperationsList) PauseAll() {
	for _, op := range l.snapshot() {
		op.Pause()
	}
}

func (l *OperationsList) ResumeAll() {
	for _, op := range l.snapshot() {
		op.Resume()
	}
}

// WaitForCompletion blocks until every currently-registered operation
// has reached a terminal state, or ctx is cancelled. It re-evaluates
// whenever Delete pulses closedCh, rather than polling (§6.5's
// workerMayBeClosedEvent).
func (l *OperationsList) WaitForCompletion(ctx context.Context) error {
	for {
		l.mu.Lock()
		pending := make([]*Operation, 0, len(l.operations))
		for _, op := range l.operations {
			pending = append(pending, op)
		}
		ch := l.closedCh
		l.mu.Unlock()

		allDone := true
		for _, op := range pending {
			if op.GetOperationState() == StateInProgress {
				allDone = false
				break
			}
		}
		if allDone {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
