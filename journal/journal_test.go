package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/operation"
	"github.com/twopanel/ftpcore/queue"
	"github.com/twopanel/ftpcore/worker"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	store, err := Open(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testParams() operation.Params {
	return operation.Params{
		ConnectionProfile: common.ConnectionProfile{Host: "ftp.example.test", Port: 21, User: "alice"},
		Type:              worker.OpCopyDownload,
		SourcePath:        "/home/alice/src",
		TargetPath:        "/home/alice/dst",
	}
}

func TestSaveOperationRoundTripsThroughRecoverOperations(t *testing.T) {
	a := assert.New(t)
	store := newTestStore(t)

	uid := common.NewOperationUID()
	a.NoError(store.SaveOperation(uid, testParams(), 1000))

	pending, err := store.RecoverOperations()
	a.NoError(err)
	if a.Len(pending, 1) {
		a.Equal(uid, pending[0].UID)
		a.Equal(testParams().SourcePath, pending[0].Params.SourcePath)
		a.Equal(testParams().Type, pending[0].Params.Type)
	}
}

func TestSaveOperationUpsertsOnConflict(t *testing.T) {
	a := assert.New(t)
	store := newTestStore(t)

	uid := common.NewOperationUID()
	a.NoError(store.SaveOperation(uid, testParams(), 1000))

	updated := testParams()
	updated.TargetPath = "/home/alice/other-dst"
	a.NoError(store.SaveOperation(uid, updated, 1000))

	pending, err := store.RecoverOperations()
	a.NoError(err)
	if a.Len(pending, 1) {
		a.Equal("/home/alice/other-dst", pending[0].Params.TargetPath)
	}
}

func TestDeleteOperationCascadesToItems(t *testing.T) {
	a := assert.New(t)
	store := newTestStore(t)

	uid := common.NewOperationUID()
	a.NoError(store.SaveOperation(uid, testParams(), 1000))
	a.NoError(store.SaveItem(uid, &queue.Item{UID: 1, ParentID: common.NoParent, Type: queue.CopyFileOrFileLink, State: queue.EItemState.Waiting()}))

	a.NoError(store.DeleteOperation(uid))

	items, err := store.LoadItems(uid)
	a.NoError(err)
	a.Empty(items)
}

func TestSaveItemRoundTripsOptionalFieldsThroughLoadItems(t *testing.T) {
	a := assert.New(t)
	store := newTestStore(t)

	uid := common.NewOperationUID()
	a.NoError(store.SaveOperation(uid, testParams(), 1000))

	item := &queue.Item{
		UID:        5,
		ParentID:   common.NoParent,
		Type:       queue.CopyFileOrFileLink,
		State:      queue.EItemState.Done(),
		SourcePath: "/home/alice/src/report.csv",
		SourceName: "report.csv",
		Download:   &queue.DownloadFields{TargetPath: "/home/alice/dst/report.csv", Size: 2048, SizeInBytes: true},
	}
	a.NoError(store.SaveItem(uid, item))

	loaded, err := store.LoadItems(uid)
	a.NoError(err)
	if a.Len(loaded, 1) {
		a.Equal(common.ItemUID(5), loaded[0].UID)
		a.Equal(queue.EItemState.Done(), loaded[0].State)
		if a.NotNil(loaded[0].Download) {
			a.Equal(int64(2048), loaded[0].Download.Size)
			a.True(loaded[0].Download.SizeInBytes)
		}
		a.Nil(loaded[0].Upload)
	}
}

func TestSaveItemUpsertsOnConflict(t *testing.T) {
	a := assert.New(t)
	store := newTestStore(t)

	uid := common.NewOperationUID()
	a.NoError(store.SaveOperation(uid, testParams(), 1000))

	item := &queue.Item{UID: 1, ParentID: common.NoParent, Type: queue.CopyFileOrFileLink, State: queue.EItemState.Waiting()}
	a.NoError(store.SaveItem(uid, item))

	item.State = queue.EItemState.Done()
	a.NoError(store.SaveItem(uid, item))

	loaded, err := store.LoadItems(uid)
	a.NoError(err)
	if a.Len(loaded, 1) {
		a.Equal(queue.EItemState.Done(), loaded[0].State)
	}
}

func TestRestoreQueueReplaysJournaledItemsIntoLiveQueue(t *testing.T) {
	a := assert.New(t)
	store := newTestStore(t)

	uid := common.NewOperationUID()
	a.NoError(store.SaveOperation(uid, testParams(), 1000))

	dir := &queue.Item{UID: 1, ParentID: common.NoParent, Type: queue.DeleteExploreDir, State: queue.EItemState.Delayed(), Counters: &queue.DirCounters{}}
	child := &queue.Item{UID: 2, ParentID: 1, Type: queue.CopyFileOrFileLink, State: queue.EItemState.Waiting()}
	a.NoError(store.SaveItem(uid, dir))
	a.NoError(store.SaveItem(uid, child))

	q := queue.New()
	a.NoError(store.RestoreQueue(uid, q))

	restoredDir, ok := q.Get(1)
	a.True(ok)
	a.Equal(1, restoredDir.Counters.ChildItemsNotDone)

	restoredChild, ok := q.Get(2)
	a.True(ok)
	a.Equal(queue.EItemState.Waiting(), restoredChild.State)
}
