package worker

import (
	"context"
	"path"
	"strconv"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/openedfiles"
	"github.com/twopanel/ftpcore/queue"
)

// runItemSequence dispatches to the scripted command sequence for the
// item's type (§4.5.3). Every branch is responsible for leaving the item
// in a terminal state (via itemDone/itemFailed/ReturnToWaitingItems) or,
// for explore/resolve items, replacing it with its children.
func (w *Worker) runItemSequence(ctx context.Context, item *queue.Item) {
	w.setSubState(SubRunningItemCommands)

	switch item.Type {
	case queue.DeleteLink, queue.DeleteFile:
		w.runDeleteFile(item)
	case queue.DeleteDir:
		w.runDeleteDir(item)
	case queue.MoveDeleteDir, queue.MoveDeleteDirLink, queue.UploadMoveDeleteDir:
		w.runDeleteDir(item)
	case queue.ChAttrsFile, queue.ChAttrsDir:
		w.runChAttrs(item)
	case queue.CopyFileOrFileLink, queue.MoveFileOrFileLink:
		w.runDownload(ctx, item)
	case queue.UploadCopyFile, queue.UploadMoveFile:
		w.runUpload(ctx, item)
	case queue.DeleteExploreDir, queue.ChAttrsExploreDir:
		w.runExploreDirDownloadSide(item)
	case queue.CopyExploreDir, queue.MoveExploreDir:
		w.runExploreDirDownloadSide(item)
	case queue.UploadCopyExploreDir, queue.UploadMoveExploreDir:
		w.runExploreDirUploadSide(item)
	case queue.CopyResolveLink, queue.MoveResolveLink, queue.MoveExploreDirLink, queue.ChAttrsResolveLink, queue.ChAttrsExploreDirLink:
		w.runResolveLink(item)
	default:
		w.itemFailed(item, common.EProblem.OK(), "unhandled item type "+item.Type.String())
	}
}

// runDeleteFile implements §4.5.3's "Delete file/link": CWD (already done
// in prepareWorkingDirectory) -> DELE, then unlocks OpenedFiles.
func (w *Worker) runDeleteFile(item *queue.Item) {
	uid, err := w.deps.Opened.OpenFile(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, item.SourcePath, 0, item.SourceName, openedfiles.AccessDelete)
	if err != nil {
		w.itemFailed(item, common.EProblem.SrcFileInUse(), err.Error())
		return
	}
	defer w.deps.Opened.CloseFile(uid)

	code, text, err := w.sendCommand("DELE", item.SourceName)
	if err != nil {
		w.reconnectAfterLoss()
		return
	}
	if code/100 != 2 {
		w.itemFailed(item, common.EProblem.UnableToDeleteFile(), text)
		return
	}
	w.deps.Cache.ReportDelete(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, item.SourcePath, listingcache.PathUnix, item.SourceName)
	w.itemDone(item)
}

// runDeleteDir implements "Delete dir": the queue only dispatches this
// once all children are terminal (§3.2 invariant 3), so RMD is safe.
// UploadMoveDeleteDir is the one dir-wrapper type whose source lives on
// disk rather than the server (the leftover empty directory after an
// upload-move finished with its contents), so it goes through DiskIO
// instead of RMD.
func (w *Worker) runDeleteDir(item *queue.Item) {
	if item.Type == queue.UploadMoveDeleteDir {
		w.runDeleteLocalDir(item)
		return
	}
	code, text, err := w.sendCommand("RMD", item.SourceName)
	if err != nil {
		w.reconnectAfterLoss()
		return
	}
	if code/100 != 2 {
		if item.ForcedAction == queue.ForceDeleteNonEmpty {
			w.itemFailed(item, common.EProblem.UnableToDeleteDir(), text)
			return
		}
		w.itemFailed(item, common.EProblem.UnableToDeleteDir(), text)
		return
	}
	w.deps.Cache.ReportDelete(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, item.SourcePath, listingcache.PathUnix, item.SourceName)
	w.itemDone(item)
}

func (w *Worker) runDeleteLocalDir(item *queue.Item) {
	res := w.deps.Disk.DeleteDir(context.Background(), item.SourcePath, item.SourceName)
	if res.ProblemID != common.EProblem.OK() {
		w.itemFailed(item, res.ProblemID, "local directory cleanup failed")
		return
	}
	w.itemDone(item)
}

// runChAttrs implements "Change attrs": CWD -> SITE CHMOD nnn name.
func (w *Worker) runChAttrs(item *queue.Item) {
	if item.ChAttrs == nil {
		w.itemFailed(item, common.EProblem.OK(), "chattrs item missing ChAttrs fields")
		return
	}
	if item.ChAttrs.UnknownAttrs && item.ForcedAction != queue.ForceIgnoreUnknownAttrs {
		_ = w.deps.Queue.UpdateItemState(item.UID, queue.EItemState.UserInputNeeded(), common.EProblem.UnknownAttrs(), 0, "source has attribute bits that cannot be represented remotely")
		return
	}
	mode := strconv.FormatUint(uint64(item.ChAttrs.RequestedMode), 8)
	code, text, err := w.sendCommand("SITE", "CHMOD", mode, item.SourceName)
	if err != nil {
		w.reconnectAfterLoss()
		return
	}
	if code/100 != 2 {
		w.itemFailed(item, common.EProblem.UnableToChangeAttrs(), text)
		return
	}
	w.itemDone(item)
}

// runResolveLink implements "Resolve link": CWD into the link name;
// success means it's a directory link, replaced with an explore item;
// failure means a file link, replaced with a copy, move or chattrs file
// item matching the link item's own kind.
func (w *Worker) runResolveLink(item *queue.Item) {
	code, _, err := w.conn.SendCommand("CWD", path.Join(item.SourcePath, item.SourceName))
	if err != nil {
		w.reconnectAfterLoss()
		return
	}
	w.workDir = ""

	isDir := code/100 == 2
	var children []*queue.Item
	switch item.Type {
	case queue.CopyResolveLink:
		if isDir {
			children = []*queue.Item{{Type: queue.CopyExploreDir, SourcePath: path.Join(item.SourcePath, item.SourceName), SourceName: item.SourceName}}
		} else {
			children = []*queue.Item{{Type: queue.CopyFileOrFileLink, SourcePath: item.SourcePath, SourceName: item.SourceName, Download: &queue.DownloadFields{Size: common.UnknownSize}}}
		}
	case queue.MoveResolveLink, queue.MoveExploreDirLink:
		if isDir {
			children = []*queue.Item{{Type: queue.MoveExploreDir, SourcePath: path.Join(item.SourcePath, item.SourceName), SourceName: item.SourceName}}
		} else {
			children = []*queue.Item{{Type: queue.MoveFileOrFileLink, SourcePath: item.SourcePath, SourceName: item.SourceName, Download: &queue.DownloadFields{Size: common.UnknownSize}}}
		}
	case queue.ChAttrsResolveLink, queue.ChAttrsExploreDirLink:
		if isDir {
			children = []*queue.Item{{Type: queue.ChAttrsExploreDir, SourcePath: path.Join(item.SourcePath, item.SourceName), SourceName: item.SourceName, ChAttrs: item.ChAttrs}}
		} else {
			children = []*queue.Item{{Type: queue.ChAttrsFile, SourcePath: item.SourcePath, SourceName: item.SourceName, ChAttrs: item.ChAttrs}}
		}
	}
	// a resolved link always replaces item 1-for-1, so its single child
	// takes over item's own slot in the tree rather than ever needing a
	// dir-wrapper forward reference.
	children[0].ParentID = item.ParentID
	if err := w.deps.Queue.ReplaceItemWithList(item.UID, children); err != nil {
		w.itemFailed(item, common.EProblem.OK(), err.Error())
	} else if w.deps.OnItemsReplaced != nil {
		w.deps.OnItemsReplaced(item.UID, children)
	}
}

// runExploreDirDownloadSide implements the download-side "Explore dir":
// CWD -> open a listing data connection -> TYPE A -> LIST -> parse ->
// replace with children. No PWD is sent; the children's paths are built
// from the item's own path as given.
func (w *Worker) runExploreDirDownloadSide(item *queue.Item) {
	fullPath := item.SourcePath
	if item.SourceName != "" {
		fullPath = path.Join(item.SourcePath, item.SourceName)
	}
	if !w.explorePathOnce(item, fullPath) {
		return
	}

	code, _, err := w.sendCommand("CWD", fullPath)
	if err != nil {
		w.reconnectAfterLoss()
		return
	}
	if code/100 != 2 {
		w.itemFailed(item, common.EProblem.UnableToChangeDir(), "cannot enter directory")
		return
	}
	w.workDir = fullPath

	data, err := w.conn.OpenPassive(context.Background(), w.deps.Params.Proxy)
	if err != nil {
		w.itemFailed(item, common.EProblem.ListenFailure(), err.Error())
		return
	}
	defer data.Close()

	if err := w.ensureTransferMode(transferASCII); err != nil {
		w.reconnectAfterLoss()
		return
	}
	code, _, err = w.conn.SendCommand("LIST")
	if err != nil || code/100 != 1 {
		w.itemFailed(item, common.EProblem.ListenFailure(), "LIST rejected")
		return
	}
	raw := readAllFromDataConn(data)
	final, err := w.conn.ReadReply()
	if err != nil || final.Code/100 != 2 {
		w.itemFailed(item, common.EProblem.ListenFailure(), "LIST did not complete cleanly")
		return
	}

	entries, err := w.deps.ParseListing(raw, w.deps.Params.ServerSystemHint, 0)
	if err != nil {
		w.itemFailed(item, common.EProblem.UnableToParseListing(), err.Error())
		return
	}

	children := w.translateListingToChildren(item, fullPath, entries)
	if err := w.deps.Queue.ReplaceItemWithList(item.UID, children); err != nil {
		w.itemFailed(item, common.EProblem.OK(), err.Error())
	} else if w.deps.OnItemsReplaced != nil {
		w.deps.OnItemsReplaced(item.UID, children)
	}
}

// explorePathOnce enforces the explorePathsSet loop-breaking rule of
// §4.6: a path is stored verbatim before exploring it; revisiting a
// stored path fails the item instead of looping forever on a symlink
// cycle. The set itself lives on the operation; a worker only consults it
// through VisitExplorePath, supplied at construction.
func (w *Worker) explorePathOnce(item *queue.Item, fullPath string) bool {
	if w.deps.VisitExplorePath == nil {
		return true
	}
	if w.deps.VisitExplorePath(fullPath) {
		w.itemFailed(item, common.EProblem.DirExploreEndlessLoop(), "path already explored: "+fullPath)
		return false
	}
	return true
}

// translateListingToChildren turns one LIST response into the items that
// replace item (§4.2's explore fan-out). When item's family needs a
// terminal dir action (Delete/Move/ChAttrs), every child is parented to
// a new dir-wrapper item carried as children[0], its counters seeded to
// the discovered child count so it starts in the correct
// waiting/delayed state immediately (§3.2 invariant 2); a plain copy has
// no such wrapper and the children keep item's own parent.
func (w *Worker) translateListingToChildren(item *queue.Item, dirPath string, entries []listingcache.ListingItem) []*queue.Item {
	wrapperType, needsWrapper := dirWrapperType(item.Type)

	children := make([]*queue.Item, 0, len(entries))
	for _, e := range entries {
		var child *queue.Item
		switch e.Kind {
		case listingcache.KindDirectory:
			child = &queue.Item{
				Type:       downloadExploreChildType(item.Type),
				SourcePath: dirPath,
				SourceName: e.Name,
			}
		case listingcache.KindLink:
			child = &queue.Item{
				Type:       downloadResolveChildType(item.Type),
				SourcePath: dirPath,
				SourceName: e.Name,
			}
		default:
			child = &queue.Item{
				Type:       downloadFileChildType(item.Type),
				SourcePath: dirPath,
				SourceName: e.Name,
				Download:   &queue.DownloadFields{Size: e.Size, SizeInBytes: true},
			}
		}
		// item.ChAttrs is nil outside the ChAttrs family, so this is a
		// no-op for Delete/Move/Copy children; within it, every
		// rediscovered file and subdirectory needs the same requested
		// mode carried forward to be applied once it is itself processed.
		child.ChAttrs = item.ChAttrs
		if needsWrapper {
			// forward reference resolved by ReplaceItemWithList: item.UID
			// is about to be freed, so reusing it here means "parent is
			// the wrapper item this same batch is about to create".
			child.ParentID = item.UID
		} else {
			child.ParentID = item.ParentID
		}
		children = append(children, child)
	}

	if !needsWrapper {
		return children
	}

	dir := &queue.Item{
		Type:       wrapperType,
		ParentID:   item.ParentID,
		SourcePath: item.SourcePath,
		SourceName: item.SourceName,
		ChAttrs:    item.ChAttrs,
		Counters:   &queue.DirCounters{ChildItemsNotDone: len(children)},
	}
	return append([]*queue.Item{dir}, children...)
}

func downloadExploreChildType(parent queue.ItemType) queue.ItemType {
	switch parent {
	case queue.DeleteExploreDir:
		return queue.DeleteExploreDir
	case queue.MoveExploreDir:
		return queue.MoveExploreDir
	case queue.ChAttrsExploreDir:
		return queue.ChAttrsExploreDir
	default:
		return queue.CopyExploreDir
	}
}

func downloadResolveChildType(parent queue.ItemType) queue.ItemType {
	switch parent {
	case queue.DeleteExploreDir:
		// DELE removes a symlink the same way it removes a file, so a
		// deleted link never needs resolving against its target.
		return queue.DeleteLink
	case queue.MoveExploreDir:
		return queue.MoveResolveLink
	case queue.ChAttrsExploreDir:
		return queue.ChAttrsResolveLink
	default:
		return queue.CopyResolveLink
	}
}

func downloadFileChildType(parent queue.ItemType) queue.ItemType {
	switch parent {
	case queue.DeleteExploreDir:
		return queue.DeleteFile
	case queue.MoveExploreDir:
		return queue.MoveFileOrFileLink
	case queue.ChAttrsExploreDir:
		return queue.ChAttrsFile
	default:
		return queue.CopyFileOrFileLink
	}
}

// dirWrapperType reports the terminal dir item that must run after every
// child discovered under exploreType finishes (§4.5.3's "after all
// children done" rule): Delete needs RMD, Move needs the source dir
// removed once its contents are gone, ChAttrs needs the dir's own mode
// set. A plain copy never touches the source directory, so it has none.
func dirWrapperType(exploreType queue.ItemType) (queue.ItemType, bool) {
	switch exploreType {
	case queue.DeleteExploreDir:
		return queue.DeleteDir, true
	case queue.MoveExploreDir:
		return queue.MoveDeleteDir, true
	case queue.ChAttrsExploreDir:
		return queue.ChAttrsDir, true
	default:
		return 0, false
	}
}

// runExploreDirUploadSide implements the upload-side "Explore dir":
// list the local directory via DiskIO and translate into upload items.
// UploadMoveExploreDir needs the same dir-wrapper treatment as the
// download side's Delete/Move/ChAttrs families: once every discovered
// file and subdirectory has been moved, the now-empty local directory
// itself must be removed (UploadMoveDeleteDir, §4.5.3). UploadCopyExploreDir
// never touches the source, so its children stay parented to item's own
// parent.
func (w *Worker) runExploreDirUploadSide(item *queue.Item) {
	res := w.deps.Disk.ListDir(context.Background(), path.Join(item.SourcePath, item.SourceName))
	if res.ProblemID != common.EProblem.OK() {
		w.itemFailed(item, res.ProblemID, "local listing failed")
		return
	}
	localPath := path.Join(item.SourcePath, item.SourceName)
	needsWrapper := item.Type == queue.UploadMoveExploreDir

	children := make([]*queue.Item, 0, len(res.Entries))
	for _, e := range res.Entries {
		var child *queue.Item
		if e.IsDir {
			child = &queue.Item{Type: item.Type, SourcePath: localPath, SourceName: e.Name}
		} else {
			fileType := queue.UploadCopyFile
			if item.Type == queue.UploadMoveExploreDir {
				fileType = queue.UploadMoveFile
			}
			child = &queue.Item{
				Type:       fileType,
				SourcePath: localPath,
				SourceName: e.Name,
				Upload:     &queue.UploadFields{Size: e.Size},
			}
		}
		if needsWrapper {
			child.ParentID = item.UID
		} else {
			child.ParentID = item.ParentID
		}
		children = append(children, child)
	}

	if needsWrapper {
		dir := &queue.Item{
			Type:       queue.UploadMoveDeleteDir,
			ParentID:   item.ParentID,
			SourcePath: item.SourcePath,
			SourceName: item.SourceName,
			Counters:   &queue.DirCounters{ChildItemsNotDone: len(children)},
		}
		children = append([]*queue.Item{dir}, children...)
	}

	if err := w.deps.Queue.ReplaceItemWithList(item.UID, children); err != nil {
		w.itemFailed(item, common.EProblem.OK(), err.Error())
	} else if w.deps.OnItemsReplaced != nil {
		w.deps.OnItemsReplaced(item.UID, children)
	}
}

func readAllFromDataConn(conn interface{ Read([]byte) (int, error) }) []byte {
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf
}
