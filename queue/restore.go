package queue

import "github.com/twopanel/ftpcore/common"

// RestoreItems re-admits journaled items into a freshly constructed
// Queue, preserving their original uids, states, and parent/child
// relationships (§4.7's crash-recovery replay). Unlike addItem it does
// not mint a new uid or reset state to Waiting: a resumed operation's
// items keep the identity and progress the journal persisted them
// under, so a child that already finished before the crash doesn't get
// replayed as pending work.
//
// items must be supplied in ascending uid order — LoadItems already
// returns them this way — so a child's restore always finds its
// already-restored parent when applying dir-counter deltas.
func (q *Queue) RestoreItems(items []*Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range items {
		if item.UID >= q.nextUID {
			q.nextUID = item.UID + 1
		}
		if item.Counters != nil {
			// the journaled counters were a snapshot derived from this
			// dir's children; replaying those same children below
			// recomputes them from scratch, so starting from zero here
			// avoids double-counting.
			*item.Counters = DirCounters{}
		}
		q.items[item.UID] = item
		q.order = append(q.order, item.UID)
		q.accountNewItemLocked(item)

		if item.State == EItemState.Done() {
			if size, inBytes, known := itemSizeInfo(item); known && size != common.UnknownSize {
				if inBytes {
					q.CompletedBytes += size
				} else {
					q.CompletedBlocks += size
				}
			}
		}

		if item.Type.IsExploreOrResolve() && item.State.IsTerminalDone() {
			// accountNewItemLocked always counts a fresh explore/resolve
			// item as pending; undo that since the journal shows it
			// already finished before the crash.
			q.ExploreAndResolveCount--
			if q.ExploreAndResolveCount == 0 {
				q.getOnlyExploreAndResolveItems = false
			}
		}

		q.restoreDirCounterDeltaLocked(item)
	}
	q.newWorkCond.Broadcast()
}

// restoreDirCounterDeltaLocked applies the same delta updateItemState
// would have produced for a None -> item.State transition, propagated up
// item's parent chain, so a restored dir item's counters (and therefore
// its own cascaded state) match what they were the moment before the
// crash.
func (q *Queue) restoreDirCounterDeltaLocked(item *Item) {
	if item.ParentID == common.NoParent {
		return
	}
	var dNotDone, dSkipped, dFailed, dUINeeded int
	if !item.State.IsTerminalDone() {
		dNotDone = 1
	}
	switch item.State {
	case EItemState.Skipped():
		dSkipped = 1
	case EItemState.Failed(), EItemState.ForcedToFail():
		dFailed = 1
	case EItemState.UserInputNeeded():
		dUINeeded = 1
	}
	if dNotDone != 0 || dSkipped != 0 || dFailed != 0 || dUINeeded != 0 {
		q.addToNotDoneSkippedFailedLocked(item.ParentID, dNotDone, dSkipped, dFailed, dUINeeded)
	}
}
