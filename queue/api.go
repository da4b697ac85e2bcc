package queue

import "github.com/twopanel/ftpcore/common"

// This file is the Queue's public surface for callers outside the
// package (worker, operation): thin exported wrappers over the
// unexported mutators above, which stay unexported so the invariants
// they maintain are only ever touched under this package's own lock
// discipline.

// AddItem appends a new item and returns its minted uid (§4.2 addItem).
func (q *Queue) AddItem(item *Item) common.ItemUID {
	return q.addItem(item)
}

// ReplaceItemWithList swaps one item for a sequence of children (§4.2),
// used when an explore/resolve item finishes and produces its results.
func (q *Queue) ReplaceItemWithList(uid common.ItemUID, items []*Item) error {
	return q.replaceItemWithList(uid, items)
}

// SkipItem is the user-driven transition to skipped (§4.2).
func (q *Queue) SkipItem(uid common.ItemUID) error {
	return q.skipItem(uid)
}

// RetryItem resets an error-state item back to waiting (§4.2).
func (q *Queue) RetryItem(uid common.ItemUID) error {
	return q.retryItem(uid)
}

// SolveErrorOnItem records the forced-action hint a policy decision
// produced for an item (§4.2/§6.3).
func (q *Queue) SolveErrorOnItem(uid common.ItemUID, action ForcedAction) error {
	return q.solveErrorOnItem(uid, action)
}

// GetNextWaitingItem hands a worker the next dispatchable item, or nil if
// none is currently available (§4.2/§4.5.2).
func (q *Queue) GetNextWaitingItem() *Item {
	return q.getNextWaitingItem()
}

// ReturnToWaitingItems reverses processing -> waiting when a worker
// cannot carry the item through after all (§4.2).
func (q *Queue) ReturnToWaitingItems(uid common.ItemUID) error {
	return q.returnToWaitingItems(uid)
}

// UpdateItemState is the canonical state mutator (§4.2).
func (q *Queue) UpdateItemState(uid common.ItemUID, state ItemState, problem common.ProblemID, osErrNo int, errDescr string) error {
	return q.updateItemState(uid, state, problem, osErrNo, errDescr)
}

// Totals is a consistent snapshot of the progress counters an Operation
// aggregates into its byte-based and count-based progress (§4.6).
type Totals struct {
	ExploreAndResolveCount        int
	DoneOrSkippedCount            int
	WaitingProcessingDelayedCount int
	SumBytes                      int64
	SumBlocks                     int64
	UnknownSizeCount              int
	CompletedBytes                int64
	CompletedBlocks               int64
	ItemCount                     int
}

// ErrorCount scans for items currently in an error state, for the
// getCopyProgress/getCopyUploadProgress "errorsCount" field (§6.1). A
// linear scan under lock is acceptable here: it only runs on the ~1s
// status-refresh timer, not the hot item-dispatch path.
func (q *Queue) ErrorCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.State.IsError() {
			n++
		}
	}
	return n
}

func (q *Queue) Totals() Totals {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Totals{
		ExploreAndResolveCount:        q.ExploreAndResolveCount,
		DoneOrSkippedCount:            q.DoneOrSkippedCount,
		WaitingProcessingDelayedCount: q.WaitingProcessingDelayedCount,
		SumBytes:                      q.SumBytes,
		SumBlocks:                     q.SumBlocks,
		UnknownSizeCount:              q.UnknownSizeCount,
		CompletedBytes:                q.CompletedBytes,
		CompletedBlocks:               q.CompletedBlocks,
		ItemCount:                     len(q.items),
	}
}
