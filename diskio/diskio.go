// Package diskio is the single disk-touching thread of §4.1: workers never
// block on local I/O longer than one queue hand-off, and the host can cap
// disk-bound concurrency at one goroutine regardless of how many workers
// are transferring data.
//
// Grounded on azcopy's common.chunkedFileWriter (one goroutine servicing a
// buffered request channel, completion signaled back over a per-request
// channel) generalized from "write ordered chunks" to the fuller disk verb
// set of §4.1, and on ste/mgr-JobPartTransferMgr.go's single-dispatcher
// pattern for routing heterogeneous work items through one FIFO.
package diskio

import (
	"context"
	"sync"

	"github.com/twopanel/ftpcore/common"
)

// Disk is the single-threaded disk-I/O worker of §4.1.
type Disk struct {
	requests chan request
	closes   chan closeRequest

	mu          sync.Mutex
	nextCloseIdx int64
	lastFinishedCloseIdx int64
	closeWaiters map[int64][]chan struct{}

	cancelMu sync.Mutex
	cancelled map[int64]bool
	nextReqID int64

	stop   chan struct{}
	stopped chan struct{}
}

// request is the FIFO entry for every verb in §4.1; fields not relevant to
// a given op are left zero. reply receives exactly one Result.
type request struct {
	id     int64
	kind   opKind
	path   string
	name   string
	forceAction int

	handle *OpenHandle

	checkFromOffset int64
	writeOrReadFromOffset int64
	buffer []byte
	validBytes int
	ascii  bool

	allowOverwriteIfSmall bool

	reply chan Result
}

type opKind int

const (
	opCreateDir opKind = iota
	opCreateFile
	opRetryCreatedFile
	opRetryResumedFile
	opCheckOrWriteFile
	opCreateAndWriteFile
	opListDir
	opDeleteDir
	opDeleteFile
	opOpenFileForReading
	opReadFile
)

// Result is the completion message every verb produces (§4.1: "each
// returns a completion message with problemID, OS error, optional new
// state, optional new allocated name, opened file handle, actual size,
// flags").
type Result struct {
	ProblemID common.ProblemID
	OSErrNo   int

	NewState  int // queue.TgtFileState value, when relevant
	NewName   string

	Handle *OpenHandle

	ActualSize int64
	CanOverwrite      bool
	CanDeleteEmptyFile bool

	Entries []ListEntry // opListDir

	BytesTransferred int
	NewOffset        int64
	EOLCount         int64
}

// ListEntry is one row of opListDir's result, the Go stand-in for the
// spec's "TIndirectArray-like owned vector of (name, isDir, size)".
type ListEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// OpenHandle wraps an os.File so callers never touch *os.File directly;
// pending-close bookkeeping keys off this handle.
type OpenHandle struct {
	path string
	file fileHandle
}

func New() *Disk {
	d := &Disk{
		requests:     make(chan request, 4096),
		closes:       make(chan closeRequest, 4096),
		closeWaiters: make(map[int64][]chan struct{}),
		cancelled:    make(map[int64]bool),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Shutdown requests the worker goroutine to exit after draining anything
// already enqueued; it does not cancel in-flight closes.
func (d *Disk) Shutdown() {
	close(d.stop)
	<-d.stopped
}

func (d *Disk) run() {
	defer close(d.stopped)
	for {
		select {
		case req := <-d.requests:
			if d.isCancelled(req.id) {
				continue
			}
			req.reply <- d.execute(req)
		case cr := <-d.closes:
			d.executeClose(cr)
		case <-d.stop:
			for {
				select {
				case req := <-d.requests:
					if !d.isCancelled(req.id) {
						req.reply <- d.execute(req)
					}
				case cr := <-d.closes:
					d.executeClose(cr)
				default:
					return
				}
			}
		}
	}
}

func (d *Disk) isCancelled(id int64) bool {
	d.cancelMu.Lock()
	defer d.cancelMu.Unlock()
	cancelled := d.cancelled[id]
	delete(d.cancelled, id)
	return cancelled
}

func (d *Disk) submit(ctx context.Context, req request) Result {
	d.cancelMu.Lock()
	d.nextReqID++
	req.id = d.nextReqID
	d.cancelMu.Unlock()

	req.reply = make(chan Result, 1)
	select {
	case d.requests <- req:
	case <-ctx.Done():
		return Result{ProblemID: common.EProblem.LowMem()}
	}
	select {
	case res := <-req.reply:
		return res
	case <-ctx.Done():
		d.Cancel(req.id)
		return Result{ProblemID: common.EProblem.LowMem()}
	}
}

// Cancel marks a work record for cancellation (§4.1): "if it has not
// started, it is removed; if it is in progress, the inverse action is
// performed." Since execute() runs synchronously on the single worker
// goroutine, "in progress" never overlaps a Cancel call from another
// goroutine; this only ever hits the not-yet-started case, which is the
// common one (a worker cancelling queued-but-undispatched disk work when
// its item is skipped).
func (d *Disk) Cancel(reqID int64) {
	d.cancelMu.Lock()
	defer d.cancelMu.Unlock()
	d.cancelled[reqID] = true
}

func (d *Disk) CreateDir(ctx context.Context, path, name string, forceAction int) Result {
	return d.submit(ctx, request{kind: opCreateDir, path: path, name: name, forceAction: forceAction})
}

func (d *Disk) CreateFile(ctx context.Context, path, name string, forceAction int, allowOverwriteIfSmall bool) Result {
	return d.submit(ctx, request{kind: opCreateFile, path: path, name: name, forceAction: forceAction, allowOverwriteIfSmall: allowOverwriteIfSmall})
}

func (d *Disk) RetryCreatedFile(ctx context.Context, handle *OpenHandle, forceAction int) Result {
	return d.submit(ctx, request{kind: opRetryCreatedFile, handle: handle, forceAction: forceAction})
}

func (d *Disk) RetryResumedFile(ctx context.Context, handle *OpenHandle, forceAction int) Result {
	return d.submit(ctx, request{kind: opRetryResumedFile, handle: handle, forceAction: forceAction})
}

func (d *Disk) CheckOrWriteFile(ctx context.Context, handle *OpenHandle, checkFromOffset, writeOffset int64, buf []byte, validBytes int) Result {
	return d.submit(ctx, request{kind: opCheckOrWriteFile, handle: handle, checkFromOffset: checkFromOffset, writeOrReadFromOffset: writeOffset, buffer: buf, validBytes: validBytes})
}

func (d *Disk) CreateAndWriteFile(ctx context.Context, path, name string, writeOffset int64, buf []byte, validBytes int) Result {
	return d.submit(ctx, request{kind: opCreateAndWriteFile, path: path, name: name, writeOrReadFromOffset: writeOffset, buffer: buf, validBytes: validBytes})
}

func (d *Disk) ListDir(ctx context.Context, path string) Result {
	return d.submit(ctx, request{kind: opListDir, path: path})
}

func (d *Disk) DeleteDir(ctx context.Context, path, name string) Result {
	return d.submit(ctx, request{kind: opDeleteDir, path: path, name: name})
}

func (d *Disk) DeleteFile(ctx context.Context, path, name string) Result {
	return d.submit(ctx, request{kind: opDeleteFile, path: path, name: name})
}

func (d *Disk) OpenFileForReading(ctx context.Context, path, name string) Result {
	return d.submit(ctx, request{kind: opOpenFileForReading, path: path, name: name})
}

// ReadFile reads into buf starting at the absolute file offset; when
// ascii is true every LF is expanded to CRLF as it is read (§4.1
// readFileInASCII), which is why BytesTransferred in the result can be
// larger than the distance NewOffset advanced in the source file.
func (d *Disk) ReadFile(ctx context.Context, handle *OpenHandle, offset int64, buf []byte, ascii bool) Result {
	return d.submit(ctx, request{kind: opReadFile, handle: handle, writeOrReadFromOffset: offset, buffer: buf, ascii: ascii})
}
