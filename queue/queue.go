package queue

import (
	"sort"
	"sync"

	"github.com/twopanel/ftpcore/common"
)

// Queue is one Operation's arena of items (§3.1/§4.2). All mutation goes
// through a single mutex, the way azcopy's JobPartPlan serializes
// transfer-state mutation behind planMMF's header lock -- here it is a
// plain sync.Mutex over a Go map instead of a memory-mapped struct,
// per DESIGN.md's Open Question decision against replicating the mmap
// technique.
type Queue struct {
	mu sync.Mutex

	items map[common.ItemUID]*Item
	// order preserves insertion order for FIFO tie-breaking (§4.2
	// "tie-breaking among waiting items is FIFO by index"); an item's
	// position in this slice is its "index".
	order []common.ItemUID

	nextUID common.ItemUID
	nowTick int64 // monotonic tick source for errorOccurrenceTime (§3.2 invariant 4)

	firstWaitingItemIndex int // §3.2 invariant 6: lower bound, refined lazily
	getOnlyExploreAndResolveItems bool

	// Global counters, §3.2 invariant 5. SumBytes/SumBlocks/UnknownSizeCount
	// are the fixed denominator for byte-based progress: every terminal
	// download/upload item contributes its known size exactly once, when
	// first added, and the total never shrinks as items complete.
	// CompletedBytes/CompletedBlocks is the matching numerator, credited
	// once per item when it reaches Done.
	ExploreAndResolveCount int
	DoneOrSkippedCount     int
	WaitingProcessingDelayedCount int
	SumBytes               int64
	SumBlocks              int64
	UnknownSizeCount       int
	CompletedBytes         int64
	CompletedBlocks        int64

	lastShownErrorTime int64

	// newWorkCond is broadcast whenever addItem/replaceItemWithList/
	// returnToWaitingItems makes a waiting item available, waking any
	// worker parked in lookingForWork (§4.5.2).
	newWorkCond *sync.Cond
}

func New() *Queue {
	q := &Queue{
		items:                 make(map[common.ItemUID]*Item),
		firstWaitingItemIndex: 0,
		nextUID:               1,
	}
	q.newWorkCond = sync.NewCond(&q.mu)
	return q
}

// tick advances and returns the next monotonic tick, used both for
// errorOccurrenceTime and listingStartTime-style stamps elsewhere.
func (q *Queue) tick() int64 {
	q.nowTick++
	return q.nowTick
}

func (q *Queue) allocUID() common.ItemUID {
	uid := q.nextUID
	q.nextUID++
	return uid
}

// addItem appends a new item, updates global and parent counters, and
// wakes sleeping workers (§4.2 addItem).
func (q *Queue) addItem(item *Item) common.ItemUID {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.UID = q.allocUID()
	item.State = EItemState.Waiting()
	q.insertLocked(item)
	q.newWorkCond.Broadcast()
	return item.UID
}

func (q *Queue) insertLocked(item *Item) {
	q.items[item.UID] = item
	q.order = append(q.order, item.UID)
	q.accountNewItemLocked(item)
}

func (q *Queue) accountNewItemLocked(item *Item) {
	if item.Type.IsExploreOrResolve() {
		q.ExploreAndResolveCount++
		q.getOnlyExploreAndResolveItems = true
	}
	q.accountStateDeltaLocked(EItemState.None(), item.State, item)

	if size, inBytes, known := itemSizeInfo(item); known {
		if size == common.UnknownSize {
			q.UnknownSizeCount++
		} else if inBytes {
			q.SumBytes += size
		} else {
			q.SumBlocks += size
		}
	}
}

// itemSizeInfo extracts the size carried by a terminal download/upload
// item, if any. Upload items are always byte-sized; download items may
// report blocks instead (§3.3 MVS/VMS).
func itemSizeInfo(item *Item) (size int64, sizeInBytes bool, known bool) {
	switch {
	case item.Download != nil:
		return item.Download.Size, item.Download.SizeInBytes, true
	case item.Upload != nil:
		return item.Upload.Size, true, true
	default:
		return 0, false, false
	}
}

// accountStateDeltaLocked updates the global counters of §3.2 invariant 5
// for a single item's state transition from `from` to `to`. `from` ==
// EItemState.None() is used for brand-new items (counted only as "to").
func (q *Queue) accountStateDeltaLocked(from, to ItemState, item *Item) {
	if from == to {
		return
	}
	if from == EItemState.Done() || from == EItemState.Skipped() {
		q.DoneOrSkippedCount--
	} else if from == EItemState.Waiting() || from == EItemState.Processing() || from == EItemState.Delayed() {
		q.WaitingProcessingDelayedCount--
	}
	if to == EItemState.Done() || to == EItemState.Skipped() {
		q.DoneOrSkippedCount++
	} else if to == EItemState.Waiting() || to == EItemState.Processing() || to == EItemState.Delayed() {
		q.WaitingProcessingDelayedCount++
	}
}

// replaceItemWithList atomically swaps one item for a sequence of new
// items, used when an explore item produces children (§4.2). The parent
// of every new item defaults to the replaced item's parent, unless the
// new item either names a different parent explicitly or sets ParentID
// to uid itself: the latter is a forward reference to a dir-wrapper item
// this same batch is creating (by convention, that wrapper is items[0]),
// letting the caller link children to a parent uid that doesn't exist
// yet. A new item carrying non-nil Counters is such a wrapper; its
// initial state is derived from those counters rather than defaulting to
// Waiting, since a freshly discovered dir with not-done children starts
// delayed, not waiting (§3.2 invariant 2).
func (q *Queue) replaceItemWithList(uid common.ItemUID, items []*Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	old, ok := q.items[uid]
	if !ok {
		return common.NewItemError(common.EProblem.OK(), "replaceItemWithList: unknown uid", nil)
	}

	if old.Type.IsExploreOrResolve() {
		q.ExploreAndResolveCount--
	}
	q.accountStateDeltaLocked(old.State, EItemState.Done(), old)
	q.removeFromOrderLocked(uid)
	delete(q.items, uid)

	wrapperUID := common.NoParent
	for _, it := range items {
		switch it.ParentID {
		case common.NoParent:
			it.ParentID = old.ParentID
		case uid:
			it.ParentID = wrapperUID
		}
		it.UID = q.allocUID()
		if it.Counters != nil {
			wrapperUID = it.UID
			it.State = dirItemInitialState(it.Counters)
		} else {
			it.State = EItemState.Waiting()
		}
		q.insertLocked(it)
	}

	if old.ParentID != common.NoParent {
		q.propagateChildDoneLocked(old.ParentID)
	}
	if q.ExploreAndResolveCount == 0 {
		q.getOnlyExploreAndResolveItems = false
	}
	q.newWorkCond.Broadcast()
	return nil
}

func (q *Queue) removeFromOrderLocked(uid common.ItemUID) {
	for i, u := range q.order {
		if u == uid {
			q.order = append(q.order[:i], q.order[i+1:]...)
			if i < q.firstWaitingItemIndex {
				q.firstWaitingItemIndex--
			}
			return
		}
	}
}

// propagateChildDoneLocked is called whenever a child of a dir item
// finished exploring/replacing without affecting not-done/skip/fail
// counts directly (the replace path above): it just re-checks the
// parent's waiting/delayed transition described in §3.2 invariant 2.
func (q *Queue) propagateChildDoneLocked(parentUID common.ItemUID) {
	parent, ok := q.items[parentUID]
	if !ok || parent.Counters == nil {
		return
	}
	q.reevaluateDirStateLocked(parent)
}

// addToNotDoneSkippedFailed is the central recurrence of §4.2: it applies
// deltas to a dir item's four counters and walks up the parent chain,
// re-evaluating each ancestor's state as it goes.
func (q *Queue) addToNotDoneSkippedFailed(dirUID common.ItemUID, dNotDone, dSkipped, dFailed, dUINeeded int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.addToNotDoneSkippedFailedLocked(dirUID, dNotDone, dSkipped, dFailed, dUINeeded)
}

func (q *Queue) addToNotDoneSkippedFailedLocked(dirUID common.ItemUID, dNotDone, dSkipped, dFailed, dUINeeded int) {
	uid := dirUID
	for uid != common.NoParent {
		item, ok := q.items[uid]
		if !ok || item.Counters == nil {
			return
		}
		item.Counters.ChildItemsNotDone += dNotDone
		item.Counters.ChildItemsSkipped += dSkipped
		item.Counters.ChildItemsFailed += dFailed
		item.Counters.ChildItemsUINeeded += dUINeeded

		prev := item.State
		if !q.reevaluateDirStateLocked(item) {
			return
		}

		// A dir's own state transition is the event the next level up
		// cares about, not the leaf delta that triggered it: each level
		// counts only its direct children (§3.2 invariant 2), so the
		// delta propagated further up must be recomputed from this dir's
		// prev->new transition, the same way updateItemState derives its
		// leaf-level delta.
		dNotDone, dSkipped, dFailed, dUINeeded = dirStateTransitionDelta(prev, item.State)
		if dNotDone == 0 && dSkipped == 0 && dFailed == 0 && dUINeeded == 0 {
			return
		}
		uid = item.ParentID
	}
}

// dirStateTransitionDelta computes the (dNotDone, dSkipped, dFailed,
// dUINeeded) a `from`->`to` item state transition contributes to the
// item's parent's counters. Shared by updateItemState (leaf transitions)
// and addToNotDoneSkippedFailedLocked (dir transitions cascading further
// up the tree).
func dirStateTransitionDelta(from, to ItemState) (dNotDone, dSkipped, dFailed, dUINeeded int) {
	if from.IsTerminalDone() != to.IsTerminalDone() {
		if to.IsTerminalDone() {
			dNotDone = -1
		} else {
			dNotDone = 1
		}
	}
	if from != EItemState.Skipped() && to == EItemState.Skipped() {
		dSkipped = 1
	} else if from == EItemState.Skipped() && to != EItemState.Skipped() {
		dSkipped = -1
	}
	if from != EItemState.Failed() && from != EItemState.ForcedToFail() &&
		(to == EItemState.Failed() || to == EItemState.ForcedToFail()) {
		dFailed = 1
	} else if (from == EItemState.Failed() || from == EItemState.ForcedToFail()) &&
		to != EItemState.Failed() && to != EItemState.ForcedToFail() {
		dFailed = -1
	}
	if from != EItemState.UserInputNeeded() && to == EItemState.UserInputNeeded() {
		dUINeeded = 1
	} else if from == EItemState.UserInputNeeded() && to != EItemState.UserInputNeeded() {
		dUINeeded = -1
	}
	return
}

// dirItemInitialState derives a dir item's state from its four counters
// per §3.2 invariant 2's cascade rule: forcedToFail if any child is
// skipped/failed/needs input, delayed while any child is still not done,
// else waiting. Used both to reevaluate an existing dir item and to seed
// a freshly discovered one's initial state from the child count the
// explore fan-out populated it with.
func dirItemInitialState(c *DirCounters) ItemState {
	switch {
	case c.ChildItemsSkipped > 0 || c.ChildItemsFailed > 0 || c.ChildItemsUINeeded > 0:
		return EItemState.ForcedToFail()
	case c.ChildItemsNotDone > 0:
		return EItemState.Delayed()
	default:
		return EItemState.Waiting()
	}
}

// reevaluateDirStateLocked applies §3.2 invariant 2's cascade rule to a
// single dir item and reports whether its state changed (the caller uses
// this to decide whether to keep walking up the parent chain).
func (q *Queue) reevaluateDirStateLocked(item *Item) bool {
	if item.Counters == nil {
		return false
	}
	prev := item.State
	item.State = dirItemInitialState(item.Counters)

	if item.State == prev {
		return false
	}
	q.accountStateDeltaLocked(prev, item.State, item)
	if item.State.IsError() && item.ErrorOccurrenceTime == 0 {
		item.ErrorOccurrenceTime = q.tick()
	}
	return true
}

// skipItem is the user-driven transition to `skipped` (§4.2).
func (q *Queue) skipItem(uid common.ItemUID) error {
	return q.updateItemState(uid, EItemState.Skipped(), common.EProblem.SkippedByUser(), 0, "")
}

// retryItem resets an error-state item back to `waiting` so
// getNextWaitingItem can pick it up again.
func (q *Queue) retryItem(uid common.ItemUID) error {
	q.mu.Lock()
	item, ok := q.items[uid]
	q.mu.Unlock()
	if !ok {
		return common.NewItemError(common.EProblem.OK(), "retryItem: unknown uid", nil)
	}
	if !item.State.IsError() {
		return nil
	}
	return q.updateItemState(uid, EItemState.Waiting(), common.EProblem.OK(), 0, "")
}

// solveErrorOnItem is a thin hook: the policy decision itself lives with
// the operation/worker layer (which knows the per-operation policy
// defaults of §6.3); this records the forced-action hint the decision
// produced so the next dispatch of the item honors it.
func (q *Queue) solveErrorOnItem(uid common.ItemUID, action ForcedAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[uid]
	if !ok {
		return common.NewItemError(common.EProblem.OK(), "solveErrorOnItem: unknown uid", nil)
	}
	item.ForcedAction = action
	return nil
}

// getNextWaitingItem scans from firstWaitingItemIndex for the next
// dispatchable item, honoring the explore/resolve latch and §3.2
// invariant 3 (no child dispatched while its parent isn't delayed).
func (q *Queue) getNextWaitingItem() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.getNextWaitingItemLocked()
}

func (q *Queue) getNextWaitingItemLocked() *Item {
	for i := q.firstWaitingItemIndex; i < len(q.order); i++ {
		item := q.items[q.order[i]]
		if item.State != EItemState.Waiting() {
			if i == q.firstWaitingItemIndex {
				q.firstWaitingItemIndex++
			}
			continue
		}
		if q.getOnlyExploreAndResolveItems && !item.Type.IsExploreOrResolve() {
			continue
		}
		if !q.parentIsDispatchableLocked(item) {
			continue
		}
		item.State = EItemState.Processing()
		q.accountStateDeltaLocked(EItemState.Waiting(), EItemState.Processing(), item)
		if i == q.firstWaitingItemIndex {
			q.firstWaitingItemIndex++
		}
		return item
	}
	return nil
}

func (q *Queue) parentIsDispatchableLocked(item *Item) bool {
	if item.ParentID == common.NoParent {
		return true
	}
	parent, ok := q.items[item.ParentID]
	if !ok {
		return true
	}
	return parent.State == EItemState.Delayed()
}

// WaitForWork blocks until getNextWaitingItem would return non-nil or the
// queue is told to wake (used by a worker in lookingForWork/sleeping,
// §4.5.1/§4.5.2).
func (q *Queue) WaitForWork() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if item := q.getNextWaitingItemLocked(); item != nil {
			return item
		}
		q.newWorkCond.Wait()
	}
}

// Wake broadcasts to any worker parked in WaitForWork, used by stop/cancel
// paths that need sleeping workers to notice a state change with no new
// item added.
func (q *Queue) Wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.newWorkCond.Broadcast()
}

// returnToWaitingItems reverses processing -> waiting when a worker
// cannot process the item after all (§4.2).
func (q *Queue) returnToWaitingItems(uid common.ItemUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[uid]
	if !ok {
		return common.NewItemError(common.EProblem.OK(), "returnToWaitingItems: unknown uid", nil)
	}
	prev := item.State
	item.State = EItemState.Waiting()
	q.accountStateDeltaLocked(prev, item.State, item)
	if idx := q.indexOfLocked(uid); idx >= 0 && idx < q.firstWaitingItemIndex {
		q.firstWaitingItemIndex = idx
	}
	q.newWorkCond.Broadcast()
	return nil
}

func (q *Queue) indexOfLocked(uid common.ItemUID) int {
	for i, u := range q.order {
		if u == uid {
			return i
		}
	}
	return -1
}

// updateItemState is the canonical state mutator (§4.2): it records the
// problem, replaces the prior error description, stamps
// errorOccurrenceTime per §3.2 invariant 4, updates global counters, and
// propagates to the parent chain via addToNotDoneSkippedFailed when the
// item has a parent dir.
func (q *Queue) updateItemState(uid common.ItemUID, state ItemState, problem common.ProblemID, osErrNo int, errDescr string) error {
	q.mu.Lock()
	item, ok := q.items[uid]
	if !ok {
		q.mu.Unlock()
		return common.NewItemError(common.EProblem.OK(), "updateItemState: unknown uid", nil)
	}

	prev := item.State
	item.State = state
	item.ProblemID = problem
	item.OSErrNo = osErrNo
	item.ErrDescr = errDescr

	if state.IsError() {
		item.ErrorOccurrenceTime = q.tick()
	} else {
		item.ErrorOccurrenceTime = 0
	}

	q.accountStateDeltaLocked(prev, state, item)

	if prev != EItemState.Done() && state == EItemState.Done() {
		if size, inBytes, known := itemSizeInfo(item); known && size != common.UnknownSize {
			if inBytes {
				q.CompletedBytes += size
			} else {
				q.CompletedBlocks += size
			}
		}
	}

	if item.Type.IsExploreOrResolve() && !prev.IsTerminalDone() && state.IsTerminalDone() {
		q.ExploreAndResolveCount--
		if q.ExploreAndResolveCount == 0 {
			q.getOnlyExploreAndResolveItems = false
		}
	}

	parentUID := item.ParentID
	dNotDone, dSkipped, dFailed, dUINeeded := dirStateTransitionDelta(prev, state)

	q.mu.Unlock()

	if parentUID != common.NoParent && (dNotDone != 0 || dSkipped != 0 || dFailed != 0 || dUINeeded != 0) {
		q.addToNotDoneSkippedFailed(parentUID, dNotDone, dSkipped, dFailed, dUINeeded)
	}
	q.Wake()
	return nil
}

// Get returns a copy-free pointer to the item for read-only snapshot
// rendering; callers must not mutate the returned item outside the
// queue's own methods.
func (q *Queue) Get(uid common.ItemUID) (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[uid]
	return item, ok
}

// Snapshot returns visible fields for every item in display order, for
// listview rendering under lock (§4.2 "Readers for listview rendering").
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.order))
	for _, uid := range q.order {
		out = append(out, *q.items[uid])
	}
	return out
}

// NextErrorForUI is the error-search of §4.2: the UID of the item whose
// errorOccurrenceTime is earliest among items needing UI intervention and
// exceeds the last-shown watermark, so "Solve Error" walks errors in time
// order. Call AdvanceErrorWatermark after presenting it.
func (q *Queue) NextErrorForUI() (common.ItemUID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	type candidate struct {
		uid  common.ItemUID
		time int64
	}
	var found []candidate
	for uid, item := range q.items {
		if !item.State.IsError() {
			continue
		}
		if item.ErrorOccurrenceTime <= q.lastShownErrorTime {
			continue
		}
		found = append(found, candidate{uid, item.ErrorOccurrenceTime})
	}
	if len(found) == 0 {
		return 0, false
	}
	sort.Slice(found, func(i, j int) bool { return found[i].time < found[j].time })
	return found[0].uid, true
}

// AdvanceErrorWatermark moves the "last shown" watermark forward past an
// error the UI has just presented to the user.
func (q *Queue) AdvanceErrorWatermark(uid common.ItemUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item, ok := q.items[uid]; ok && item.ErrorOccurrenceTime > q.lastShownErrorTime {
		q.lastShownErrorTime = item.ErrorOccurrenceTime
	}
}
