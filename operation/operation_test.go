package operation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/diskio"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/openedfiles"
	"github.com/twopanel/ftpcore/queue"
	"github.com/twopanel/ftpcore/worker"
)

// fakePersister is an in-memory stand-in for a *journal.Store, recording
// every save/delete so tests can assert on what the operation journaled
// without standing up a real database.
type fakePersister struct {
	mu      sync.Mutex
	saved   map[common.ItemUID]*queue.Item
	deleted []common.ItemUID
}

func newFakePersister() *fakePersister {
	return &fakePersister{saved: make(map[common.ItemUID]*queue.Item)}
}

func (f *fakePersister) SaveItem(_ common.OperationUID, item *queue.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[item.UID] = item
	return nil
}

func (f *fakePersister) DeleteItem(_ common.OperationUID, uid common.ItemUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, uid)
	f.deleted = append(f.deleted, uid)
	return nil
}

func newTestOperation(typ worker.OperationType) *Operation {
	shared := SharedDeps{
		Disk:   diskio.New(),
		Cache:  listingcache.New(),
		Opened: openedfiles.New(),
	}
	params := Params{
		ConnectionProfile: common.ConnectionProfile{Host: "ftp.example.test", Port: 21, User: "alice"},
		Type:              typ,
		SourcePath:        "/home/alice/src",
		TargetPath:        "/home/alice/dst",
		WorkerCount:       2,
	}
	return New(common.NewOperationUID(), nil, shared, params)
}

func TestNewOperationSeedsEmptyQueue(t *testing.T) {
	a := assert.New(t)
	op := newTestOperation(worker.OpCopyDownload)
	a.Equal(0, op.Queue().Totals().ItemCount)
	a.Equal(StateNone, op.GetOperationState())
}

func TestOwnsPathMatchesOnServerAndOverlappingPath(t *testing.T) {
	a := assert.New(t)
	op := newTestOperation(worker.OpCopyDownload)

	a.True(op.OwnsPath("alice", "ftp.example.test", 21, "/home/alice/src", listingcache.PathUnix))
	a.True(op.OwnsPath("alice", "ftp.example.test", 21, "/home/alice/src/sub/file.txt", listingcache.PathUnix))
	a.False(op.OwnsPath("bob", "ftp.example.test", 21, "/home/alice/src", listingcache.PathUnix))
	a.False(op.OwnsPath("alice", "ftp.example.test", 21, "/home/alice/other", listingcache.PathUnix))
}

func TestIsUploadingOnlyTrueForUploadTypesWhileRunning(t *testing.T) {
	a := assert.New(t)
	download := newTestOperation(worker.OpCopyDownload)
	a.False(download.IsUploading("alice", "ftp.example.test", 21))

	upload := newTestOperation(worker.OpCopyUpload)
	a.False(upload.IsUploading("alice", "ftp.example.test", 21))
	upload.mu.Lock()
	upload.running = true
	upload.mu.Unlock()
	a.True(upload.IsUploading("alice", "ftp.example.test", 21))
	a.False(upload.IsUploading("alice", "ftp.example.test", 990))
}

func TestOnChangeCoalescesPairThenFallsBackToRefreshAll(t *testing.T) {
	a := assert.New(t)
	op := newTestOperation(worker.OpCopyDownload)

	op.onChange(common.ItemUID(1), common.NoParent)
	changed := op.GetChangedItems()
	a.Equal(common.ItemUID(1), changed.UID1)
	a.False(changed.Refresh)

	// draining resets the accumulator; nothing changed since, so neither
	// a pair nor a refresh-all is reported
	drained := op.GetChangedItems()
	a.False(drained.Refresh)
	a.Equal(common.NoParent, drained.UID1)

	op.onChange(common.ItemUID(1), common.NoParent)
	op.onChange(common.ItemUID(2), common.NoParent)
	op.onChange(common.ItemUID(3), common.NoParent)
	changed = op.GetChangedItems()
	a.True(changed.Refresh)
}

func TestOnBytesAndBlocksFeedsEstimatorAndThroughput(t *testing.T) {
	a := assert.New(t)
	op := newTestOperation(worker.OpCopyDownload)

	op.onBytesAndBlocks(4096, 8)
	// ratio moves from its seed of 1.0 toward the 512 bytes/block sample
	// by the estimator's 0.2 exponential-moving-average step.
	a.InDelta(103.2, op.estimator.BytesPerBlock(), 0.001)
	a.True(op.throughput.LatestRate() >= 0)
}

func TestOnChangeJournalsTheChangedItem(t *testing.T) {
	a := assert.New(t)
	op := newTestOperation(worker.OpCopyDownload)
	persister := newFakePersister()
	op.shared.Persist = persister

	uid := op.queue.AddItem(&queue.Item{ParentID: common.NoParent, Type: queue.CopyFileOrFileLink})
	op.onChange(uid, common.NoParent)

	persister.mu.Lock()
	defer persister.mu.Unlock()
	_, ok := persister.saved[uid]
	a.True(ok)
}

func TestOnItemsReplacedDeletesParentAndSavesChildren(t *testing.T) {
	a := assert.New(t)
	op := newTestOperation(worker.OpCopyDownload)
	persister := newFakePersister()
	op.shared.Persist = persister

	parentUID := op.queue.AddItem(&queue.Item{ParentID: common.NoParent, Type: queue.CopyExploreDir, Counters: &queue.DirCounters{}})
	children := []*queue.Item{
		{UID: 100, ParentID: parentUID, Type: queue.CopyFileOrFileLink},
		{UID: 101, ParentID: parentUID, Type: queue.CopyFileOrFileLink},
	}
	op.onItemsReplaced(parentUID, children)

	persister.mu.Lock()
	defer persister.mu.Unlock()
	a.Contains(persister.deleted, parentUID)
	a.Len(persister.saved, 2)
}

func TestWorkerStatusesReflectsSpawnedCount(t *testing.T) {
	a := assert.New(t)
	op := newTestOperation(worker.OpCopyDownload)
	op.mu.Lock()
	_, w := op.newWorker()
	op.workers[common.NewWorkerUID()] = w
	op.mu.Unlock()

	statuses := op.WorkerStatuses()
	a.Len(statuses, 1)
}
