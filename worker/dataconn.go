package worker

import (
	"context"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/diskio"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/openedfiles"
	"github.com/twopanel/ftpcore/queue"
)

const (
	dataConnListenTimeout = 20 * time.Second
	dataConnStartTimeout  = 30 * time.Second
	flushChunkSize        = 64 * 1024
)

// openDataConnection implements §4.5.4's lifecycle up to
// transferingData: passive dials immediately; active opens a listen
// socket and waits (bounded by dataConnListenTimeout) for the server to
// connect.
func (w *Worker) openDataConnection(ctx context.Context) (net.Conn, error) {
	w.setSubState(SubDataConOnlyAllocated)
	if w.deps.Params.UsePassiveMode {
		w.setSubState(SubDataConWaitingForConnection)
		conn, err := w.conn.OpenPassive(ctx, w.deps.Params.Proxy)
		if err != nil {
			return nil, err
		}
		w.setSubState(SubDataConTransferingData)
		return conn, nil
	}

	ln, err := w.conn.OpenActive(ctx, localIPFromAddr(w.conn.LocalAddr()))
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	w.setSubState(SubDataConWaitingForConnection)
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	ch := make(chan acceptResult, 1)
	go func() {
		c, err := ln.Accept()
		ch <- acceptResult{c, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		w.setSubState(SubDataConTransferingData)
		return r.conn, nil
	case <-time.After(dataConnListenTimeout):
		return nil, common.NewItemError(common.EProblem.ListenFailure(), "timed out waiting for data connection", nil)
	}
}

// localIPFromAddr extracts the IP a listen socket should bind to from the
// control connection's local address, falling back to the loopback
// address for non-TCP addr types (e.g. in tests using net.Pipe).
func localIPFromAddr(addr net.Addr) net.IP {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP
	}
	return net.IPv4(127, 0, 0, 1)
}

// runDownload implements §4.5.3's "Download copy/move" sequence: TYPE,
// open data connection, RETR, stream into DiskIO from offset 0, and on
// Move, delete the source afterward. No REST is sent, so the transfer
// always starts at the source's first byte, also when the target was
// opened for resume.
func (w *Worker) runDownload(ctx context.Context, item *queue.Item) {
	if item.Download == nil {
		w.itemFailed(item, common.EProblem.OK(), "download item missing Download fields")
		return
	}
	d := item.Download

	uid, err := w.deps.Opened.OpenFile(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, item.SourcePath, 0, item.SourceName, openedfiles.AccessRead)
	if err != nil {
		w.itemFailed(item, common.EProblem.SrcFileInUse(), err.Error())
		return
	}
	defer w.deps.Opened.CloseFile(uid)

	forceAction := translateForcedAction(item.ForcedAction)
	createRes := w.deps.Disk.CreateFile(ctx, d.TargetPath, d.TargetName, forceAction, false)
	if createRes.ProblemID != common.EProblem.OK() {
		w.itemFailed(item, createRes.ProblemID, "cannot create target file")
		return
	}
	handle := createRes.Handle

	wantMode := transferBinary
	if d.AsciiMode {
		wantMode = transferASCII
	}
	if err := w.ensureTransferMode(wantMode); err != nil {
		w.reconnectAfterLoss()
		return
	}

	data, err := w.openDataConnection(ctx)
	if err != nil {
		w.itemFailed(item, common.EProblem.ListenFailure(), err.Error())
		return
	}
	defer data.Close()

	code, text, err := w.sendCommand("RETR", item.SourceName)
	if err != nil {
		w.reconnectAfterLoss()
		return
	}
	if code/100 != 1 {
		w.itemFailed(item, common.EProblem.TgtFileReadError(), text)
		return
	}

	var offset int64
	buf := make([]byte, flushChunkSize)
	for {
		n, readErr := data.Read(buf)
		if n > 0 {
			writeRes := w.deps.Disk.CreateAndWriteFile(ctx, d.TargetPath, d.TargetName, offset, buf[:n], n)
			if writeRes.ProblemID != common.EProblem.OK() {
				w.itemFailed(item, writeRes.ProblemID, "write to target failed")
				return
			}
			offset += int64(n)
			w.bytesTransferred.Add(int64(n))
			w.sampleSpeed()
		}
		if readErr != nil {
			break
		}
	}
	w.setSubState(SubDataConTransferFinished)

	final, err := w.conn.ReadReply()
	if err != nil || final.Code/100 != 2 {
		w.itemFailed(item, common.EProblem.IncompleteDownload(), "transfer did not finish cleanly")
		return
	}

	w.deps.Disk.EnqueueClose(handle, diskio.CloseOptions{SetModTime: d.HasSourceTime, ModTime: d.SourceTime})

	if d.SizeInBytes && d.Size >= 0 && w.deps.OnBytesAndBlocks != nil {
		w.deps.OnBytesAndBlocks(offset, 0)
	}

	if item.Type == queue.MoveFileOrFileLink {
		w.deleteSourceAfterMove(item)
		return
	}
	w.itemDone(item)
}

func (w *Worker) deleteSourceAfterMove(item *queue.Item) {
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

// runUpload implements §4.5.3's "Upload copy/move" sequence: resolve the
// target listing through the cache, decide the action, open a data
// connection, STOR/APPE, stream the file from disk, and on Move delete
// the local source afterward. The local file is always read in binary:
// no CRLF conversion is done on upload.
func (w *Worker) runUpload(ctx context.Context, item *queue.Item) {
	if item.Upload == nil {
		w.itemFailed(item, common.EProblem.OK(), "upload item missing Upload fields")
		return
	}
	u := item.Upload

	lookup, existing, waitCh := w.deps.Cache.GetListing(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, u.TargetPath, listingcache.PathUnix, w.uid, u.TargetName)
	if lookup == listingcache.LookupWait || lookup == listingcache.LookupMustFetch {
		if lookup == listingcache.LookupMustFetch {
			w.fetchUploadTargetListing(item, u.TargetPath)
		}
		select {
		case <-waitCh:
		case <-time.After(dataConnStartTimeout):
		}
		lookup, existing, _ = w.deps.Cache.GetListing(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, u.TargetPath, listingcache.PathUnix, w.uid, u.TargetName)
	}

	targetName := u.TargetName
	appendMode := false
	switch lookup {
	case listingcache.LookupItemPresent:
		switch item.ForcedAction {
		case queue.ForceAutoRename:
			u.AutorenamePhase++
			targetName = autorenameUploadTarget(u.TargetName, u.AutorenamePhase)
		case queue.ForceResume, queue.ForceResumeOrOverwrite:
			appendMode = true
		case queue.ForceOverwrite:
			// fallthrough to STOR, which truncates on most servers.
		default:
			_ = w.deps.Queue.UpdateItemState(item.UID, queue.EItemState.UserInputNeeded(), common.EProblem.UploadTgtFileAlreadyExists(), 0, "target file already exists")
			return
		}
	case listingcache.LookupNotAccessible:
		w.itemFailed(item, common.EProblem.UploadCannotListTgtPath(), "target directory not accessible")
		return
	}
	_ = existing

	srcHandle := w.deps.Disk.OpenFileForReading(ctx, item.SourcePath, item.SourceName)
	if srcHandle.ProblemID != common.EProblem.OK() {
		w.itemFailed(item, common.EProblem.UploadCannotOpenSrcFile(), "cannot open local source file")
		return
	}

	if _, _, err := w.conn.SendCommand("CWD", u.TargetPath); err != nil {
		w.reconnectAfterLoss()
		return
	}

	data, err := w.openDataConnection(ctx)
	if err != nil {
		w.itemFailed(item, common.EProblem.ListenFailure(), err.Error())
		return
	}
	defer data.Close()

	verb := "STOR"
	if appendMode {
		verb = "APPE"
	}
	code, text, err := w.sendCommand(verb, targetName)
	if err != nil {
		w.reconnectAfterLoss()
		return
	}
	if code/100 != 1 {
		w.itemFailed(item, common.EProblem.UploadCannotCreateTgtFile(), text)
		return
	}

	var offset int64
	buf := make([]byte, flushChunkSize)
	for {
		readRes := w.deps.Disk.ReadFile(ctx, srcHandle.Handle, offset, buf, false)
		if readRes.ProblemID != common.EProblem.OK() {
			w.itemFailed(item, common.EProblem.SrcFileReadError(), "local read failed")
			return
		}
		if readRes.BytesTransferred == 0 {
			break
		}
		if _, werr := data.Write(buf[:readRes.BytesTransferred]); werr != nil {
			w.itemFailed(item, common.EProblem.TgtFileWriteError(), werr.Error())
			return
		}
		offset += int64(readRes.BytesTransferred)
		w.bytesTransferred.Add(int64(readRes.BytesTransferred))
		w.sampleSpeed()
	}
	data.Close()

	final, err := w.conn.ReadReply()
	if err != nil || final.Code/100 != 2 {
		w.itemFailed(item, common.EProblem.IncompleteUpload(), "transfer did not finish cleanly")
		return
	}

	w.deps.Cache.ReportFileUploaded(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, u.TargetPath, listingcache.PathUnix, targetName, offset)

	if item.Type == queue.UploadMoveFile {
		delRes := w.deps.Disk.DeleteFile(ctx, item.SourcePath, item.SourceName)
		if delRes.ProblemID != common.EProblem.OK() {
			w.itemFailed(item, delRes.ProblemID, "cannot delete local source after move")
			return
		}
	}
	w.itemDone(item)
}

// fetchUploadTargetListing runs the explore-dir-on-demand LIST needed
// before an upload can decide its conflict action, marking the cache
// finished (or failed) when done.
func (w *Worker) fetchUploadTargetListing(item *queue.Item, targetPath string) {
	if _, _, err := w.conn.SendCommand("CWD", targetPath); err != nil {
		w.deps.Cache.ListingFailed(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, targetPath, true)
		return
	}
	data, err := w.conn.OpenPassive(context.Background(), w.deps.Params.Proxy)
	if err != nil {
		w.deps.Cache.ListingFailed(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, targetPath, false)
		return
	}
	defer data.Close()

	if err := w.ensureTransferMode(transferASCII); err != nil {
		w.deps.Cache.ListingFailed(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, targetPath, false)
		return
	}
	code, _, err := w.conn.SendCommand("LIST")
	if err != nil || code/100 != 1 {
		w.deps.Cache.ListingFailed(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, targetPath, false)
		return
	}
	raw := readAllFromDataConn(data)
	final, err := w.conn.ReadReply()
	if err != nil || final.Code/100 != 2 {
		w.deps.Cache.ListingFailed(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, targetPath, false)
		return
	}
	entries, err := w.deps.ParseListing(raw, w.deps.Params.ServerSystemHint, 0)
	if err != nil {
		w.deps.Cache.ListingFailed(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, targetPath, false)
		return
	}
	w.deps.Cache.ListingFinished(w.deps.Params.User, w.deps.Params.Host, w.deps.Params.Port, targetPath, entries)
}

func autorenameUploadTarget(name string, attempt int) string {
	ext := path.Ext(name)
	base := name[:len(name)-len(ext)]
	return base + "_" + strconv.Itoa(attempt) + ext
}

func translateForcedAction(action queue.ForcedAction) int {
	switch action {
	case queue.ForceAutoRename:
		return 3
	case queue.ForceOverwrite:
		return 4
	case queue.ForceResume:
		return 5
	case queue.ForceResumeOrOverwrite:
		return 6
	case queue.ForceRetry:
		return 2
	case queue.ForceSkip:
		return 1
	default:
		return 0
	}
}
