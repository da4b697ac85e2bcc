package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/queue"
)

func TestTranslateListingToChildrenDeleteExploreDirParentsChildrenToWrapper(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	parent := &queue.Item{UID: 1, ParentID: common.NoParent, Type: queue.DeleteExploreDir, SourcePath: "/a", SourceName: "b"}
	entries := []listingcache.ListingItem{
		{Name: "sub", Kind: listingcache.KindDirectory},
		{Name: "file.txt", Kind: listingcache.KindFile, Size: 42},
		{Name: "link", Kind: listingcache.KindLink},
	}

	children := w.translateListingToChildren(parent, "/a/b", entries)

	// Wrapper dir comes first, parented to the original parent's own
	// parent and counting every discovered child as not-yet-done.
	require.Len(t, children, 4)
	wrapper := children[0]
	a.Equal(queue.DeleteDir, wrapper.Type)
	a.Equal(common.NoParent, wrapper.ParentID)
	require.NotNil(t, wrapper.Counters)
	a.Equal(3, wrapper.Counters.ChildItemsNotDone)

	for _, c := range children[1:] {
		a.Equal(parent.UID, c.ParentID)
	}
	a.Equal(queue.DeleteExploreDir, children[1].Type)
	a.Equal("sub", children[1].SourceName)
	a.Equal(queue.DeleteFile, children[2].Type)
	a.Equal("file.txt", children[2].SourceName)
	a.Equal(queue.DeleteLink, children[3].Type)
	a.Equal("link", children[3].SourceName)
}

func TestTranslateListingToChildrenCopyExploreDirHasNoWrapper(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	parent := &queue.Item{UID: 7, ParentID: common.NoParent, Type: queue.CopyExploreDir, SourcePath: "/a", SourceName: "b"}
	entries := []listingcache.ListingItem{
		{Name: "sub", Kind: listingcache.KindDirectory},
		{Name: "file.txt", Kind: listingcache.KindFile, Size: 99},
	}

	children := w.translateListingToChildren(parent, "/a/b", entries)

	// No terminal dir action means no wrapper: children keep the explore
	// item's own parent directly.
	require.Len(t, children, 2)
	a.Equal(queue.CopyExploreDir, children[0].Type)
	a.Equal(parent.ParentID, children[0].ParentID)
	a.Equal(queue.CopyFileOrFileLink, children[1].Type)
	require.NotNil(t, children[1].Download)
	a.EqualValues(99, children[1].Download.Size)
	a.True(children[1].Download.SizeInBytes)
}

func TestTranslateListingToChildrenChAttrsCarriesFieldsToChildren(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	attrs := &queue.ChAttrsFields{RequestedMode: 0o755}
	parent := &queue.Item{UID: 3, ParentID: common.NoParent, Type: queue.ChAttrsExploreDir, SourcePath: "/a", SourceName: "b", ChAttrs: attrs}
	entries := []listingcache.ListingItem{{Name: "sub", Kind: listingcache.KindDirectory}}

	children := w.translateListingToChildren(parent, "/a/b", entries)

	require.Len(t, children, 2)
	wrapper := children[0]
	a.Equal(queue.ChAttrsDir, wrapper.Type)
	a.Same(attrs, wrapper.ChAttrs)
	a.Same(attrs, children[1].ChAttrs)
}

func TestRunExploreDirUploadSideBuildsMoveWrapperAndFanOut(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello"), 0o644))

	item := &queue.Item{UID: 5, ParentID: common.NoParent, Type: queue.UploadMoveExploreDir, SourcePath: dir, SourceName: ""}
	w.deps.Queue.AddItem(item)

	w.runExploreDirUploadSide(item)

	snap := w.deps.Queue.Snapshot()
	var wrapper *queue.Item
	var file *queue.Item
	var subdir *queue.Item
	for i := range snap {
		switch snap[i].Type {
		case queue.UploadMoveDeleteDir:
			wrapper = &snap[i]
		case queue.UploadMoveFile:
			file = &snap[i]
		case queue.UploadMoveExploreDir:
			subdir = &snap[i]
		}
	}
	require.NotNil(t, wrapper)
	require.NotNil(t, file)
	require.NotNil(t, subdir)

	a.Equal(common.NoParent, wrapper.ParentID)
	require.NotNil(t, wrapper.Counters)
	a.Equal(2, wrapper.Counters.ChildItemsNotDone)
	a.Equal(wrapper.UID, file.ParentID)
	a.Equal(wrapper.UID, subdir.ParentID)
	a.Equal("file.txt", file.SourceName)
	require.NotNil(t, file.Upload)
	a.EqualValues(5, file.Upload.Size)
}

func TestRunExploreDirUploadSideCopyHasNoWrapper(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hi"), 0o644))

	item := &queue.Item{UID: 9, ParentID: common.NoParent, Type: queue.UploadCopyExploreDir, SourcePath: dir, SourceName: ""}
	w.deps.Queue.AddItem(item)

	w.runExploreDirUploadSide(item)

	snap := w.deps.Queue.Snapshot()
	require.Len(t, snap, 1)
	a.Equal(queue.UploadCopyFile, snap[0].Type)
	a.Equal(common.NoParent, snap[0].ParentID)
}

func TestRunDeleteLocalDirRemovesDirectoryAndMarksItemDone(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	dir := t.TempDir()
	empty := filepath.Join(dir, "emptied")
	require.NoError(t, os.Mkdir(empty, 0o755))

	item := &queue.Item{UID: 1, ParentID: common.NoParent, Type: queue.UploadMoveDeleteDir, SourcePath: dir, SourceName: "emptied"}
	w.deps.Queue.AddItem(item)

	w.runDeleteLocalDir(item)

	_, err := os.Stat(empty)
	a.True(os.IsNotExist(err))

	got, ok := w.deps.Queue.Get(item.UID)
	require.True(t, ok)
	a.Equal(queue.EItemState.Done(), got.State)
}

func TestRunDeleteLocalDirFailsItemOnOSError(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	dir := t.TempDir()
	nonEmpty := filepath.Join(dir, "hasstuff")
	require.NoError(t, os.Mkdir(nonEmpty, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nonEmpty, "leftover"), []byte("x"), 0o644))

	item := &queue.Item{UID: 1, ParentID: common.NoParent, Type: queue.UploadMoveDeleteDir, SourcePath: dir, SourceName: "hasstuff"}
	w.deps.Queue.AddItem(item)

	w.runDeleteLocalDir(item)

	got, ok := w.deps.Queue.Get(item.UID)
	require.True(t, ok)
	a.Equal(queue.EItemState.Failed(), got.State)
	a.Equal(common.EProblem.UnableToDeleteDiskDir(), got.ProblemID)
}

func TestRunDeleteDirDispatchesUploadMoveDeleteDirToLocalDisk(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	dir := t.TempDir()
	empty := filepath.Join(dir, "emptied")
	require.NoError(t, os.Mkdir(empty, 0o755))

	item := &queue.Item{UID: 1, ParentID: common.NoParent, Type: queue.UploadMoveDeleteDir, SourcePath: dir, SourceName: "emptied"}
	w.deps.Queue.AddItem(item)

	w.runDeleteDir(item)

	_, err := os.Stat(empty)
	a.True(os.IsNotExist(err))
	got, ok := w.deps.Queue.Get(item.UID)
	require.True(t, ok)
	a.Equal(queue.EItemState.Done(), got.State)
}
