package worker

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/diskio"
	"github.com/twopanel/ftpcore/ftpproto"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/openedfiles"
	"github.com/twopanel/ftpcore/queue"
)

// ConnParams is the subset of an Operation's connection parameters
// (§3.4) a worker needs to log in and run its command sequences.
type ConnParams struct {
	common.ConnectionProfile
	OperationType OperationType
}

// OperationType mirrors §3.4's Operation.type enumeration; the worker
// only needs it to pick the right per-item command sequence.
type OperationType int

const (
	OpNone OperationType = iota
	OpDelete
	OpCopyDownload
	OpMoveDownload
	OpChangeAttrs
	OpCopyUpload
	OpMoveUpload
)

// Deps bundles the shared subsystems a worker drives (§5's cross-cutting
// locks queueCritSect/uploadLstCacheCritSect/ftpOpenedFilesCritSect/
// diskCritSect are each a subsystem's own mutex here, so a worker simply
// holds pointers and calls into them).
type Deps struct {
	Queue    *queue.Queue
	Disk     *diskio.Disk
	Cache    *listingcache.Cache
	Opened   *openedfiles.Registry
	Params   ConnParams
	ParseListing func(data []byte, systemHint string, pathType int) ([]listingcache.ListingItem, error)

	// OnBytesAndBlocks feeds the operation's block-size estimator and
	// progress totals (§4.5.4/§4.6) whenever a download of known byte
	// size completes; kept as a callback instead of an import to avoid a
	// worker->operation dependency cycle.
	OnBytesAndBlocks func(bytes, blocks int64)

	// OnChange notifies the operation of a (uid1, uid2) change-pair for
	// the host's getChangedItems coalescing (§6.1); common.NoParent (-1)
	// in a slot means that slot names no item.
	OnChange func(uid1, uid2 common.ItemUID)

	// VisitExplorePath backs the operation's explorePathsSet (§4.6): it
	// records fullPath and reports whether it was already present, so a
	// worker can fail an item with DirExploreEndlessLoop on a revisit
	// instead of looping forever on a symlink cycle.
	VisitExplorePath func(fullPath string) (alreadySeen bool)

	// OnItemsReplaced notifies the operation that oldUID's explore/resolve
	// item was fanned out into children (§4.2/§4.7): the journal needs to
	// drop the now-gone parent row and add one for each child in the same
	// beat the in-memory queue does, so a crash right after an explore
	// step doesn't lose the children it just discovered.
	OnItemsReplaced func(oldUID common.ItemUID, children []*queue.Item)
}

// Worker is one control-connection driver (§3.4/§4.5).
type Worker struct {
	uid  common.WorkerUID
	deps Deps

	mu           sync.Mutex
	state        State
	subState     SubState
	shouldStop   bool
	shouldPause  bool
	isPaused     bool
	lastErrDescr string
	untrustedCert bool

	cur          currentItem
	workDir      string
	mode         transferMode
	conn         *ftpproto.Conn
	connectAttemptNumber int

	bytesTransferred common.AtomicNumeric[int64]
	idleSince        time.Time
	lastSpeedSample  time.Time
	lastSpeedBytes   int64
	currentSpeed     float64

	control chan controlSignal
	stopped chan struct{}
}

type controlSignal struct {
	kind EventKind
	data LoginParams
}

// New constructs a worker. It does not connect; call Run to start the
// lifecycle.
func New(uid common.WorkerUID, deps Deps) *Worker {
	return &Worker{
		uid:              uid,
		deps:             deps,
		state:            StateLookingForWork,
		control:          make(chan controlSignal, 8),
		stopped:          make(chan struct{}),
		bytesTransferred: common.NewAtomicInt64(0),
		idleSince:        time.Now(),
	}
}

// Stop requests a clean shutdown (§4.5.6). It is monotone: once
// requested it cannot be un-requested, per §5's cancellation rule.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.shouldStop = true
	w.mu.Unlock()
	w.deps.Queue.Wake()
	select {
	case w.control <- controlSignal{kind: EventShouldStop}:
	default:
	}
}

// Pause moves a working worker to the paused flag; it only takes effect
// at the next safe suspension point (§4.5.6).
func (w *Worker) Pause() {
	w.mu.Lock()
	w.shouldPause = true
	w.mu.Unlock()
}

// Resume clears the pause flag and wakes a worker parked in the paused
// suspension loop.
func (w *Worker) Resume() {
	w.mu.Lock()
	w.shouldPause = false
	w.mu.Unlock()
	select {
	case w.control <- controlSignal{kind: EventShouldResume}:
	default:
	}
}

// SubmitLoginParams delivers user-refreshed credentials after a
// connectionError stop (§4.5.1).
func (w *Worker) SubmitLoginParams(p LoginParams) {
	w.deps.Params.User = p.User
	w.deps.Params.Password = p.Password
	w.deps.Params.Account = p.Account
	select {
	case w.control <- controlSignal{kind: EventNewLoginParams, data: p}:
	default:
	}
}

// Done reports whether the worker has reached StateStopped.
func (w *Worker) Done() <-chan struct{} { return w.stopped }

func (w *Worker) checkStop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shouldStop
}

// waitWhilePaused blocks at a safe suspension point while shouldPause is
// set, returning early if shouldStop becomes true meanwhile (§4.5.6: "the
// worker drops back to sleeping only at a safe suspension point").
func (w *Worker) waitWhilePaused() {
	for {
		w.mu.Lock()
		paused := w.shouldPause && !w.shouldStop
		if paused {
			w.isPaused = true
		} else {
			w.isPaused = false
		}
		w.mu.Unlock()
		if !paused {
			return
		}
		select {
		case sig := <-w.control:
			if sig.kind == EventShouldStop {
				return
			}
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) setSubState(s SubState) {
	w.mu.Lock()
	w.subState = s
	w.mu.Unlock()
}

func (w *Worker) fail(descr string) {
	w.mu.Lock()
	w.lastErrDescr = descr
	w.mu.Unlock()
}

// Run drives the worker's whole lifecycle until Stop is called or ctx is
// cancelled; it is meant to run on its own goroutine, one per worker,
// matching §5's "workers are re-entered on socket events" model with an
// actual goroutine standing in for the simulated coroutine.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stopped)

	for {
		if w.checkStop() {
			w.shutdown()
			return
		}
		w.waitWhilePaused()
		if w.checkStop() {
			w.shutdown()
			return
		}

		if w.conn == nil {
			if !w.connect(ctx) {
				if w.checkStop() {
					w.shutdown()
					return
				}
				w.waitForReconnect(ctx)
				continue
			}
		}

		w.setState(StateLookingForWork)
		item := w.deps.Queue.GetNextWaitingItem()
		if item == nil {
			w.idleSince = time.Now()
			item = w.deps.Queue.WaitForWork()
		}
		if item == nil {
			continue
		}
		if w.checkStop() {
			_ = w.deps.Queue.ReturnToWaitingItems(item.UID)
			w.shutdown()
			return
		}

		w.cur = currentItem{uid: item.UID, item: item}
		w.setState(StatePreparing)
		if !w.prepareWorkingDirectory(item) {
			continue
		}

		w.setState(StateWorking)
		w.runItemSequence(ctx, item)
	}
}

// prepareWorkingDirectory implements §4.5.2's CWD verification: the
// worker only re-issues CWD when its cached workDir differs from the
// item's source path.
func (w *Worker) prepareWorkingDirectory(item *queue.Item) bool {
	w.setSubState(SubVerifyingWorkDir)
	if w.workDir == item.SourcePath {
		return true
	}
	code, text, err := w.sendCommand("CWD", item.SourcePath)
	if err != nil {
		w.reconnectAfterLoss()
		return false
	}
	if code/100 != 2 {
		w.itemFailed(item, common.EProblem.UnableToChangeDir(), text)
		return false
	}
	w.workDir = item.SourcePath
	return true
}

// ensureTransferMode issues TYPE only when it differs from the mode
// already negotiated on the control connection, mirroring
// prepareWorkingDirectory's CWD caching.
func (w *Worker) ensureTransferMode(want transferMode) error {
	if w.mode == want {
		return nil
	}
	arg := "I"
	if want == transferASCII {
		arg = "A"
	}
	code, text, err := w.sendCommand("TYPE", arg)
	if err != nil {
		return err
	}
	if code/100 != 2 {
		return common.NewItemError(common.EProblem.OK(), "TYPE rejected: "+text, nil)
	}
	w.mode = want
	return nil
}

// shutdown issues QUIT and closes the control connection (§4.5.6's
// "clean shutdown" path).
func (w *Worker) shutdown() {
	w.setState(StateStopped)
	if w.conn != nil {
		_, _, _ = w.conn.SendCommand("QUIT")
		w.conn.Close()
		w.conn = nil
	}
}

// reconnectAfterLoss handles a connection lost mid-command (§4.5.5):
// the current item returns to waiting and the worker re-enters
// connecting with connectAttemptNumber preserved.
func (w *Worker) reconnectAfterLoss() {
	if w.cur.item != nil {
		_ = w.deps.Queue.ReturnToWaitingItems(w.cur.uid)
		w.cur = currentItem{}
	}
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.setState(StateConnecting)
}

func (w *Worker) itemFailed(item *queue.Item, problem common.ProblemID, descr string) {
	_ = w.deps.Queue.UpdateItemState(item.UID, queue.EItemState.Failed(), problem, 0, descr)
	if w.deps.OnChange != nil {
		w.deps.OnChange(item.UID, common.NoParent)
	}
}

func (w *Worker) itemDone(item *queue.Item) {
	_ = w.deps.Queue.UpdateItemState(item.UID, queue.EItemState.Done(), common.EProblem.OK(), 0, "")
	if w.deps.OnChange != nil {
		w.deps.OnChange(item.UID, common.NoParent)
	}
}

// Status is the worker-to-UI snapshot of §4.5.7.
type Status struct {
	UID              common.WorkerUID
	State            State
	SubState         SubState
	CurrentItemUID   common.ItemUID
	HasCurrentItem   bool
	BytesTransferred int64
	IdleSeconds      float64
	CurrentSpeed     float64
	LastError        string
	IsPaused         bool
	ConnectAttempt   int
}

// GetStatus returns a consistent snapshot under the worker's lock
// (§4.5.7).
func (w *Worker) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{
		UID:              w.uid,
		State:            w.state,
		SubState:         w.subState,
		BytesTransferred: w.bytesTransferred.Load(),
		CurrentSpeed:     w.currentSpeed,
		LastError:        w.lastErrDescr,
		IsPaused:         w.isPaused,
		ConnectAttempt:   w.connectAttemptNumber,
	}
	if w.cur.item != nil {
		s.HasCurrentItem = true
		s.CurrentItemUID = w.cur.uid
	}
	if w.state == StateSleeping || w.state == StateLookingForWork {
		s.IdleSeconds = time.Since(w.idleSince).Seconds()
	}
	return s
}

// sampleSpeed refreshes the rolling transfer-rate estimate reported as
// Status.CurrentSpeed; it does not feed the operation's throughput meter.
func (w *Worker) sampleSpeed() {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastSpeedSample.IsZero() {
		w.lastSpeedSample = now
		w.lastSpeedBytes = w.bytesTransferred.Load()
		return
	}
	elapsed := now.Sub(w.lastSpeedSample).Seconds()
	if elapsed < 0.5 {
		return
	}
	delta := w.bytesTransferred.Load() - w.lastSpeedBytes
	w.currentSpeed = float64(delta) / elapsed
	w.lastSpeedSample = now
	w.lastSpeedBytes = w.bytesTransferred.Load()
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
