package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/twopanel/ftpcore/common"
)

// buildJournaledTree mimics what journal.LoadItems hands back after a
// crash mid-download: a dir with three children, one already Done, one
// Skipped, one still Waiting, with the dir's own counters and state
// reflecting that mix exactly as they stood before the crash.
func buildJournaledTree() []*Item {
	dir := &Item{
		UID:      10,
		ParentID: common.NoParent,
		Type:     DeleteExploreDir,
		State:    EItemState.Delayed(),
		Counters: &DirCounters{},
	}
	done := &Item{
		UID:      11,
		ParentID: 10,
		Type:     CopyFileOrFileLink,
		State:    EItemState.Done(),
		Download: &DownloadFields{Size: 2048, SizeInBytes: true},
	}
	skipped := &Item{
		UID:      12,
		ParentID: 10,
		Type:     CopyFileOrFileLink,
		State:    EItemState.Skipped(),
		Download: &DownloadFields{Size: 1024, SizeInBytes: true},
	}
	waiting := &Item{
		UID:      13,
		ParentID: 10,
		Type:     CopyFileOrFileLink,
		State:    EItemState.Waiting(),
		Download: &DownloadFields{Size: 4096, SizeInBytes: true},
	}
	return []*Item{dir, done, skipped, waiting}
}

func TestRestoreItemsPreservesUIDsAndStates(t *testing.T) {
	a := assert.New(t)
	q := New()

	q.RestoreItems(buildJournaledTree())

	for _, uid := range []common.ItemUID{10, 11, 12, 13} {
		_, ok := q.Get(uid)
		a.True(ok, "uid %d should be present", uid)
	}
	done, _ := q.Get(11)
	a.Equal(EItemState.Done(), done.State)
	waiting, _ := q.Get(13)
	a.Equal(EItemState.Waiting(), waiting.State)
}

func TestRestoreItemsRecomputesParentCounters(t *testing.T) {
	a := assert.New(t)
	q := New()

	q.RestoreItems(buildJournaledTree())

	dir, ok := q.Get(10)
	a.True(ok)
	// done and skipped are both terminal so neither counts as "not done";
	// only the still-waiting child does. Skipped still bumps its own
	// counter, which forces the dir into ForcedToFail.
	a.Equal(1, dir.Counters.ChildItemsSkipped)
	a.Equal(1, dir.Counters.ChildItemsNotDone)
	a.Equal(EItemState.ForcedToFail(), dir.State)
}

func TestRestoreItemsAccumulatesByteTotals(t *testing.T) {
	a := assert.New(t)
	q := New()

	q.RestoreItems(buildJournaledTree())

	totals := q.Totals()
	a.Equal(int64(2048+1024+4096), totals.SumBytes)
	a.Equal(int64(2048), totals.CompletedBytes)
	// done and skipped are both terminal from the global counter's
	// perspective; only skipped (and the dir it forces to failure) count
	// as errors.
	a.Equal(2, totals.DoneOrSkippedCount)
	a.Equal(2, q.ErrorCount())
}

func TestRestoreItemsAssignsNextUIDPastHighestRestored(t *testing.T) {
	a := assert.New(t)
	q := New()

	q.RestoreItems(buildJournaledTree())

	newUID := q.addItem(&Item{ParentID: common.NoParent, Type: CopyFileOrFileLink})
	a.Equal(common.ItemUID(14), newUID)
}

func TestRestoreItemsUndoesExploreLatchForFinishedExploreItems(t *testing.T) {
	a := assert.New(t)
	q := New()

	finishedExplore := &Item{
		UID:      1,
		ParentID: common.NoParent,
		Type:     CopyExploreDir,
		State:    EItemState.Done(),
		Counters: &DirCounters{},
	}
	q.RestoreItems([]*Item{finishedExplore})

	a.Equal(0, q.ExploreAndResolveCount)
	a.False(q.getOnlyExploreAndResolveItems)
}
