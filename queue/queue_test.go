package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/twopanel/ftpcore/common"
)

func newDirItem(parent common.ItemUID, typ ItemType) *Item {
	return &Item{ParentID: parent, Type: typ, Counters: &DirCounters{}}
}

func TestAddItemUpdatesCountersAndWakesWorkers(t *testing.T) {
	a := assert.New(t)
	q := New()

	uid := q.addItem(&Item{ParentID: common.NoParent, Type: CopyFileOrFileLink})
	a.NotEqual(common.ItemUID(0), uid)
	a.Equal(1, q.WaitingProcessingDelayedCount)

	item, ok := q.Get(uid)
	a.True(ok)
	a.Equal(EItemState.Waiting(), item.State)
}

func TestAddItemOnExploreTypeSetsLatch(t *testing.T) {
	a := assert.New(t)
	q := New()

	q.addItem(&Item{Type: CopyExploreDir, Counters: &DirCounters{}})
	a.Equal(1, q.ExploreAndResolveCount)
	a.True(q.getOnlyExploreAndResolveItems)
}

func TestGetNextWaitingItemRestrictsToExploreResolveWhileLatched(t *testing.T) {
	a := assert.New(t)
	q := New()

	q.addItem(&Item{Type: CopyExploreDir, Counters: &DirCounters{}})
	terminalUID := q.addItem(&Item{Type: CopyFileOrFileLink})

	next := q.getNextWaitingItem()
	a.NotNil(next)
	a.Equal(CopyExploreDir, next.Type)

	// the terminal item must not be dispatchable yet
	terminal, ok := q.Get(terminalUID)
	a.True(ok)
	a.Equal(EItemState.Waiting(), terminal.State)
}

func TestReplaceItemWithListMovesParentage(t *testing.T) {
	a := assert.New(t)
	q := New()

	exploreUID := q.addItem(&Item{Type: CopyExploreDir, Counters: &DirCounters{}})

	child1 := &Item{Type: CopyFileOrFileLink}
	child2 := &Item{Type: CopyFileOrFileLink}
	err := q.replaceItemWithList(exploreUID, []*Item{child1, child2})
	a.NoError(err)

	_, stillThere := q.Get(exploreUID)
	a.False(stillThere)

	a.Equal(child1.UID, q.order[0])
	a.NotEqual(common.ItemUID(0), child1.UID)
	a.NotEqual(child1.UID, child2.UID)
	a.Equal(0, q.ExploreAndResolveCount)
	a.False(q.getOnlyExploreAndResolveItems)
}

func TestDispatchBlockedUntilParentDelayed(t *testing.T) {
	a := assert.New(t)
	q := New()

	dirUID := q.addItem(newDirItem(common.NoParent, DeleteDir))
	dir, _ := q.Get(dirUID)
	dir.State = EItemState.Processing() // simulate: not yet delayed

	childUID := q.addItem(&Item{ParentID: dirUID, Type: DeleteFile})

	next := q.getNextWaitingItem()
	a.Nil(next)

	dir.State = EItemState.Delayed()
	next = q.getNextWaitingItem()
	a.NotNil(next)
	a.Equal(childUID, next.UID)
}

func TestAddToNotDoneSkippedFailedCascadesParentState(t *testing.T) {
	a := assert.New(t)
	q := New()

	dirUID := q.addItem(newDirItem(common.NoParent, DeleteDir))
	dir, _ := q.Get(dirUID)
	dir.State = EItemState.Delayed()
	dir.Counters.ChildItemsNotDone = 2

	q.addToNotDoneSkippedFailed(dirUID, -1, 0, 0, 0)
	a.Equal(1, dir.Counters.ChildItemsNotDone)
	a.Equal(EItemState.Delayed(), dir.State)

	q.addToNotDoneSkippedFailed(dirUID, -1, 0, 0, 0)
	a.Equal(0, dir.Counters.ChildItemsNotDone)
	a.Equal(EItemState.Waiting(), dir.State)
}

func TestAddToNotDoneSkippedFailedForcesFailOnSkippedChild(t *testing.T) {
	a := assert.New(t)
	q := New()

	dirUID := q.addItem(newDirItem(common.NoParent, DeleteDir))
	dir, _ := q.Get(dirUID)
	dir.State = EItemState.Delayed()

	q.addToNotDoneSkippedFailed(dirUID, -1, 1, 0, 0)
	a.Equal(EItemState.ForcedToFail(), dir.State)
}

func TestUpdateItemStateStampsErrorOccurrenceTime(t *testing.T) {
	a := assert.New(t)
	q := New()

	uid := q.addItem(&Item{Type: CopyFileOrFileLink})
	item, _ := q.Get(uid)
	a.Equal(int64(0), item.ErrorOccurrenceTime)

	err := q.updateItemState(uid, EItemState.Failed(), common.EProblem.TgtFileReadError(), 5, "disk full")
	a.NoError(err)
	a.NotEqual(int64(0), item.ErrorOccurrenceTime)
	a.Equal(common.EProblem.TgtFileReadError(), item.ProblemID)

	err = q.updateItemState(uid, EItemState.Waiting(), common.EProblem.OK(), 0, "")
	a.NoError(err)
	a.Equal(int64(0), item.ErrorOccurrenceTime)
}

func TestUpdateItemStatePropagatesToParentCounters(t *testing.T) {
	a := assert.New(t)
	q := New()

	dirUID := q.addItem(newDirItem(common.NoParent, DeleteDir))
	dir, _ := q.Get(dirUID)
	dir.State = EItemState.Delayed()
	dir.Counters.ChildItemsNotDone = 1

	childUID := q.addItem(&Item{ParentID: dirUID, Type: DeleteFile})
	dir.Counters.ChildItemsNotDone = 1 // addItem on a non-dir item doesn't touch parent counters

	err := q.updateItemState(childUID, EItemState.Done(), common.EProblem.OK(), 0, "")
	a.NoError(err)
	a.Equal(0, dir.Counters.ChildItemsNotDone)
	a.Equal(EItemState.Waiting(), dir.State)
}

func TestSkipItemThenRetryItemRoundTrips(t *testing.T) {
	a := assert.New(t)
	q := New()

	uid := q.addItem(&Item{Type: CopyFileOrFileLink})

	a.NoError(q.skipItem(uid))
	item, _ := q.Get(uid)
	a.Equal(EItemState.Skipped(), item.State)
	a.Equal(common.EProblem.SkippedByUser(), item.ProblemID)
	a.NotEqual(int64(0), item.ErrorOccurrenceTime)

	a.NoError(q.retryItem(uid))
	a.Equal(EItemState.Waiting(), item.State)
	a.Equal(int64(0), item.ErrorOccurrenceTime)
}

func TestRetryItemIsNoopOnNonErrorItem(t *testing.T) {
	a := assert.New(t)
	q := New()

	uid := q.addItem(&Item{Type: CopyFileOrFileLink})
	item, _ := q.Get(uid)
	item.State = EItemState.Processing()

	a.NoError(q.retryItem(uid))
	a.Equal(EItemState.Processing(), item.State)
}

func TestReturnToWaitingItemsResetsCursor(t *testing.T) {
	a := assert.New(t)
	q := New()

	q.addItem(&Item{Type: CopyFileOrFileLink})
	uid2 := q.addItem(&Item{Type: CopyFileOrFileLink})

	first := q.getNextWaitingItem()
	a.NotNil(first)
	second := q.getNextWaitingItem()
	a.NotNil(second)
	a.Equal(uid2, second.UID)

	a.NoError(q.returnToWaitingItems(uid2))
	item, _ := q.Get(uid2)
	a.Equal(EItemState.Waiting(), item.State)

	next := q.getNextWaitingItem()
	a.NotNil(next)
	a.Equal(uid2, next.UID)
}

func TestNextErrorForUIOrdersByOccurrenceTime(t *testing.T) {
	a := assert.New(t)
	q := New()

	uidA := q.addItem(&Item{Type: CopyFileOrFileLink})
	uidB := q.addItem(&Item{Type: CopyFileOrFileLink})

	a.NoError(q.updateItemState(uidA, EItemState.Failed(), common.EProblem.TgtFileReadError(), 0, ""))
	a.NoError(q.updateItemState(uidB, EItemState.Failed(), common.EProblem.SrcFileReadError(), 0, ""))

	first, ok := q.NextErrorForUI()
	a.True(ok)
	a.Equal(uidA, first)

	q.AdvanceErrorWatermark(first)

	second, ok := q.NextErrorForUI()
	a.True(ok)
	a.Equal(uidB, second)

	q.AdvanceErrorWatermark(second)

	_, ok = q.NextErrorForUI()
	a.False(ok)
}

func TestSolveErrorOnItemSetsForcedAction(t *testing.T) {
	a := assert.New(t)
	q := New()

	uid := q.addItem(&Item{Type: UploadCopyFile})
	a.NoError(q.solveErrorOnItem(uid, ForceOverwrite))

	item, _ := q.Get(uid)
	a.Equal(ForceOverwrite, item.ForcedAction)
}

func TestTotalsAccumulateKnownSizesAndCompletion(t *testing.T) {
	a := assert.New(t)
	q := New()

	byteUID := q.addItem(&Item{Type: CopyFileOrFileLink, Download: &DownloadFields{Size: 1000, SizeInBytes: true}})
	q.addItem(&Item{Type: MoveFileOrFileLink, Download: &DownloadFields{Size: common.UnknownSize, SizeInBytes: true}})
	q.addItem(&Item{Type: UploadCopyFile, Upload: &UploadFields{Size: 500}})

	totals := q.Totals()
	a.Equal(int64(1500), totals.SumBytes)
	a.Equal(1, totals.UnknownSizeCount)
	a.Equal(int64(0), totals.CompletedBytes)
	a.Equal(3, totals.ItemCount)

	a.NoError(q.updateItemState(byteUID, EItemState.Done(), common.EProblem.OK(), 0, ""))
	totals = q.Totals()
	a.Equal(int64(1000), totals.CompletedBytes)
}

func TestErrorCountCountsItemsInErrorStates(t *testing.T) {
	a := assert.New(t)
	q := New()

	okUID := q.addItem(&Item{Type: CopyFileOrFileLink})
	failedUID := q.addItem(&Item{Type: CopyFileOrFileLink})
	a.NoError(q.updateItemState(failedUID, EItemState.Failed(), common.EProblem.TgtFileReadError(), 0, ""))

	a.Equal(1, q.ErrorCount())

	a.NoError(q.updateItemState(okUID, EItemState.Done(), common.EProblem.OK(), 0, ""))
	a.Equal(1, q.ErrorCount())
}

// TestUpdateItemStatePropagatesDepthTwoWithoutDoubleCounting builds a
// grandparent/parent/leaf tree and fails the leaf, checking that the
// grandparent's counters reflect only its direct child (the parent dir
// going ForcedToFail), not the leaf's delta applied a second time.
func TestUpdateItemStatePropagatesDepthTwoWithoutDoubleCounting(t *testing.T) {
	a := assert.New(t)
	q := New()

	grandparentUID := q.addItem(newDirItem(common.NoParent, DeleteDir))
	parentUID := q.addItem(newDirItem(grandparentUID, DeleteDir))
	leafUID := q.addItem(&Item{ParentID: parentUID, Type: DeleteFile})

	a.NoError(q.updateItemState(leafUID, EItemState.Failed(), common.EProblem.TgtFileReadError(), 0, ""))

	parent, _ := q.Get(parentUID)
	a.Equal(1, parent.Counters.ChildItemsFailed)
	a.Equal(1, parent.Counters.ChildItemsNotDone)
	a.Equal(EItemState.ForcedToFail(), parent.State)

	grandparent, _ := q.Get(grandparentUID)
	a.Equal(1, grandparent.Counters.ChildItemsFailed, "grandparent counts the failing parent dir once, not the leaf delta again")
	a.Equal(1, grandparent.Counters.ChildItemsNotDone)
	a.Equal(EItemState.ForcedToFail(), grandparent.State)

	a.NoError(q.updateItemState(leafUID, EItemState.Done(), common.EProblem.OK(), 0, ""))

	parent, _ = q.Get(parentUID)
	a.Equal(0, parent.Counters.ChildItemsFailed)
	a.Equal(EItemState.Waiting(), parent.State)

	grandparent, _ = q.Get(grandparentUID)
	a.Equal(0, grandparent.Counters.ChildItemsFailed)
	a.Equal(0, grandparent.Counters.ChildItemsNotDone)
	a.Equal(EItemState.Waiting(), grandparent.State)
}
