package main

import (
	"fmt"
	"path"
	"strconv"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/queue"
	"github.com/twopanel/ftpcore/worker"
)

// parseOperationType maps the --type flag to worker.OperationType, the
// same small enumeration azcopy's copy.go selects between "upload",
// "download", "s2s" via FromToValue, narrowed to the six actions this
// engine's worker implements (§3.4).
func parseOperationType(s string) (worker.OperationType, error) {
	switch s {
	case "delete":
		return worker.OpDelete, nil
	case "copy-download":
		return worker.OpCopyDownload, nil
	case "move-download":
		return worker.OpMoveDownload, nil
	case "chattrs":
		return worker.OpChangeAttrs, nil
	case "copy-upload":
		return worker.OpCopyUpload, nil
	case "move-upload":
		return worker.OpMoveUpload, nil
	default:
		return worker.OpNone, fmt.Errorf("invalid --type %q: expected delete, copy-download, move-download, chattrs, copy-upload or move-upload", s)
	}
}

// topLevelItemType picks the single root item type for one operation
// (§4.2's queue always starts from exactly one top-level item per source
// path): the explore/resolve variant when recursive covers a directory,
// the matching terminal type for a single file. Upload types additionally
// need the UploadCopy/UploadMove split the queue carries as two distinct
// type groups rather than one Upload flag (§3.1).
func topLevelItemType(t worker.OperationType, isDir bool) (queue.ItemType, error) {
	switch t {
	case worker.OpDelete:
		if isDir {
			return queue.DeleteExploreDir, nil
		}
		return queue.DeleteFile, nil
	case worker.OpCopyDownload:
		if isDir {
			return queue.CopyExploreDir, nil
		}
		return queue.CopyFileOrFileLink, nil
	case worker.OpMoveDownload:
		if isDir {
			return queue.MoveExploreDir, nil
		}
		return queue.MoveFileOrFileLink, nil
	case worker.OpChangeAttrs:
		if isDir {
			return queue.ChAttrsExploreDir, nil
		}
		return queue.ChAttrsFile, nil
	case worker.OpCopyUpload:
		if isDir {
			return queue.UploadCopyExploreDir, nil
		}
		return queue.UploadCopyFile, nil
	case worker.OpMoveUpload:
		if isDir {
			return queue.UploadMoveExploreDir, nil
		}
		return queue.UploadMoveFile, nil
	default:
		return 0, fmt.Errorf("unsupported operation type %v", t)
	}
}

// buildTopLevelItem constructs the one item seeded into a freshly created
// Operation's queue (§2 "the host creates an Operation, seeds its Queue
// with the top-level item(s)"). mode is the requested permission bits for
// a chattrs operation and is ignored otherwise.
func buildTopLevelItem(t worker.OperationType, sourcePath string, isDir bool, mode string) (*queue.Item, error) {
	itemType, err := topLevelItemType(t, isDir)
	if err != nil {
		return nil, err
	}

	dir, name := path.Split(path.Clean(sourcePath))
	if dir == "" {
		dir = "/"
	}

	item := &queue.Item{
		Type:          itemType,
		ParentID:      common.NoParent,
		SourcePath:    dir,
		SourceName:    name,
		IsTopLevelDir: isDir,
	}

	switch {
	case t == worker.OpCopyDownload || t == worker.OpMoveDownload:
		if !isDir {
			item.Download = &queue.DownloadFields{Size: common.UnknownSize, SizeInBytes: true}
		}
	case t == worker.OpCopyUpload || t == worker.OpMoveUpload:
		if !isDir {
			item.Upload = &queue.UploadFields{Size: common.UnknownSize}
		}
	case t == worker.OpChangeAttrs:
		bits, err := strconv.ParseUint(mode, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --mode %q: expected an octal permission string like 755: %w", mode, err)
		}
		item.ChAttrs = &queue.ChAttrsFields{RequestedMode: uint32(bits)}
	}

	return item, nil
}
