package operation

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/queue"
	"github.com/twopanel/ftpcore/worker"
)

// Operation owns one Queue, the worker pool driving it, and the
// connection/policy parameters and progress accumulators of §3.4/§4.6.
type Operation struct {
	uid    common.OperationUID
	params Params
	shared SharedDeps
	list   *OperationsList

	queue        *queue.Queue
	estimator    *BlockSizeEstimator
	explorePaths *explorePathsSet
	throughput   *ThroughputMeter

	mu           sync.Mutex
	workers      map[common.WorkerUID]*worker.Worker
	running      bool
	dialogActive bool

	changedUID1    common.ItemUID
	changedUID2    common.ItemUID
	changedAll     bool
	reportProgress bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs an Operation. The caller seeds its queue with top-level
// items (via Queue()) before calling Start (§2's flow: "seeds its Queue,
// and spawns N Workers").
func New(uid common.OperationUID, list *OperationsList, shared SharedDeps, params Params) *Operation {
	return &Operation{
		uid:          uid,
		params:       params,
		shared:       shared,
		list:         list,
		queue:        queue.New(),
		estimator:    NewBlockSizeEstimator(),
		explorePaths: newExplorePathsSet(),
		throughput:   NewThroughputMeter(),
		workers:      make(map[common.WorkerUID]*worker.Worker),
		changedUID1:  common.NoParent,
		changedUID2:  common.NoParent,
	}
}

func (o *Operation) UID() common.OperationUID   { return o.uid }
func (o *Operation) Queue() *queue.Queue        { return o.queue }
func (o *Operation) Type() worker.OperationType { return o.params.Type }

// WorkerStatuses is the host's §4.5.7 worker-panel feed: one Status per
// live worker, gathered under the same lock that guards the worker map
// so a worker added mid-iteration can't produce a torn snapshot.
func (o *Operation) WorkerStatuses() []worker.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]worker.Status, 0, len(o.workers))
	for _, w := range o.workers {
		out = append(out, w.GetStatus())
	}
	return out
}

// Start spawns the operation's worker pool and returns immediately; the
// workers run until ctx is cancelled or every one calls Stop. Worker
// count follows params.WorkerCount when set, otherwise
// common.ComputeWorkerConcurrency (§5's concurrency rule of thumb).
func (o *Operation) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	g, runCtx := errgroup.WithContext(runCtx)
	o.group = g

	count := o.params.WorkerCount
	if count <= 0 {
		count = common.ComputeWorkerConcurrency(runtime.NumCPU())
	}

	for i := 0; i < count; i++ {
		uid, w := o.newWorker()
		o.workers[uid] = w
		g.Go(func() error {
			w.Run(runCtx)
			return nil
		})
	}
	o.mu.Unlock()
}

// newWorker builds a worker wired to this operation's shared deps and
// change/estimator callbacks. Must be called with o.mu held.
func (o *Operation) newWorker() (common.WorkerUID, *worker.Worker) {
	uid := common.NewWorkerUID()
	deps := worker.Deps{
		Queue:  o.queue,
		Disk:   o.shared.Disk,
		Cache:  o.shared.Cache,
		Opened: o.shared.Opened,
		Params: worker.ConnParams{
			ConnectionProfile: o.params.ConnectionProfile,
			OperationType:     o.params.Type,
		},
		ParseListing:     o.shared.ParseListing,
		OnBytesAndBlocks: o.onBytesAndBlocks,
		OnChange:         o.onChange,
		VisitExplorePath: o.explorePaths.Visit,
		OnItemsReplaced:  o.onItemsReplaced,
	}
	return uid, worker.New(uid, deps)
}

func (o *Operation) onBytesAndBlocks(bytes, blocks int64) {
	o.estimator.Observe(bytes, blocks)
	if bytes > 0 {
		o.throughput.Add(uint64(bytes))
	}
}

// onChange coalesces up to two distinct non-NoParent item uids into the
// pending pair (uid2 is routinely NoParent, meaning "just uid1
// changed"). A third distinct uid arriving before the host drains the
// pair widens it to "refresh all", sticky until the next
// GetChangedItems. It also journals whichever items changed, since a
// worker only calls OnChange at exactly the state transitions worth
// persisting (§4.7).
func (o *Operation) onChange(uid1, uid2 common.ItemUID) {
	o.mu.Lock()
	if o.changedAll {
		o.reportProgress = true
		o.mu.Unlock()
		o.persistItem(uid1)
		o.persistItem(uid2)
		return
	}
	for _, uid := range [2]common.ItemUID{uid1, uid2} {
		if uid == common.NoParent {
			continue
		}
		switch {
		case o.changedUID1 == common.NoParent || o.changedUID1 == uid:
			o.changedUID1 = uid
		case o.changedUID2 == common.NoParent || o.changedUID2 == uid:
			o.changedUID2 = uid
		default:
			o.changedAll = true
			o.changedUID1, o.changedUID2 = common.NoParent, common.NoParent
		}
	}
	o.reportProgress = true
	o.mu.Unlock()
	o.persistItem(uid1)
	o.persistItem(uid2)
}

// persistItem journals uid's current state, if a Persist hook is wired
// and uid names a real item. Failures are swallowed: a missed journal
// write costs resume fidelity, not correctness of the live transfer.
func (o *Operation) persistItem(uid common.ItemUID) {
	if o.shared.Persist == nil || uid == common.NoParent {
		return
	}
	if item, ok := o.queue.Get(uid); ok {
		_ = o.shared.Persist.SaveItem(o.uid, item)
	}
}

// onItemsReplaced journals an explore/resolve item's fan-out into
// children (§4.2/§4.7): the parent row is gone from the in-memory
// queue, so it's dropped from the journal too, and each child is
// journaled with the uid/parentID the queue just assigned it.
func (o *Operation) onItemsReplaced(oldUID common.ItemUID, children []*queue.Item) {
	if o.shared.Persist == nil {
		return
	}
	_ = o.shared.Persist.DeleteItem(o.uid, oldUID)
	for _, child := range children {
		_ = o.shared.Persist.SaveItem(o.uid, child)
	}
}

// Stop requests every worker to stop (§4.5.6); it does not wait for them
// to finish, use Wait for that.
func (o *Operation) Stop() {
	o.mu.Lock()
	workers := make([]*worker.Worker, 0, len(o.workers))
	for _, w := range o.workers {
		workers = append(workers, w)
	}
	o.mu.Unlock()
	for _, w := range workers {
		w.Stop()
	}
}

// Pause/Resume forward to every worker (§4.5.6); a worker only honors
// them at its next suspension point.
func (o *Operation) Pause() {
	o.forEachWorker(func(w *worker.Worker) { w.Pause() })
}

func (o *Operation) Resume() {
	o.forEachWorker(func(w *worker.Worker) { w.Resume() })
}

func (o *Operation) forEachWorker(f func(w *worker.Worker)) {
	o.mu.Lock()
	workers := make([]*worker.Worker, 0, len(o.workers))
	for _, w := range o.workers {
		workers = append(workers, w)
	}
	o.mu.Unlock()
	for _, w := range workers {
		f(w)
	}
}

// Wait blocks until every worker has stopped, or ctx is cancelled
// (ESC-cancellable per §4.7). It is safe to call concurrently with Stop.
func (o *Operation) Wait(ctx context.Context) error {
	o.mu.Lock()
	g := o.group
	o.mu.Unlock()
	if g == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		return err
	case <-ctx.Done():
		o.Stop()
		return ctx.Err()
	}
}

// Cancel stops every worker and cancels the run context immediately,
// rather than waiting for the next suspension point to notice.
func (o *Operation) Cancel() {
	o.Stop()
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close deregisters the operation from its OperationsList once the host
// has dismissed its dialog and every worker has stopped (§4.7's teardown
// path). It is a no-op if the operation was constructed without a list,
// which tests do.
func (o *Operation) Close() {
	if o.list != nil {
		o.list.Delete(o.uid)
	}
}

// OwnsPath reports whether this operation is actively reading from or
// writing to path on (user,host,port), for OperationsList's
// canMakeChangesOnPath/isUploadingToServer cross-operation queries
// (§4.6). pathType is accepted for symmetry with the listing-cache
// lookups that feed the same path but isn't needed for the string
// comparison itself.
func (o *Operation) OwnsPath(user, host string, port int, path string, _ listingcache.PathType) bool {
	if o.params.User != user || o.params.Host != host || o.params.Port != port {
		return false
	}
	return pathsConflict(o.params.SourcePath, path) || pathsConflict(o.params.TargetPath, path)
}

// IsUploading reports whether this operation is a running upload to
// (user,host,port); used by the panel to ask for a refresh once the
// operation ends (§4.6).
func (o *Operation) IsUploading(user, host string, port int) bool {
	if !isUploadType(o.params.Type) {
		return false
	}
	if o.params.User != user || o.params.Host != host || o.params.Port != port {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// pathsConflict is a conservative prefix test: either path is an ancestor
// of the other, so a delete/rename under a being-transferred subtree is
// caught the same way a delete of the transferred file itself is.
func pathsConflict(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return hasPathPrefix(a, b) || hasPathPrefix(b, a)
}

func hasPathPrefix(parent, child string) bool {
	if len(child) <= len(parent) {
		return false
	}
	return child[:len(parent)] == parent && (parent[len(parent)-1] == '/' || child[len(parent)] == '/')
}
