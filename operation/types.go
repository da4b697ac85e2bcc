// Package operation implements §4.6/§4.7: the Operation that owns a
// Queue plus its worker pool and aggregates progress, and the
// OperationsList registry that tracks every live Operation and answers
// cross-operation conflict queries.
//
// Grounded on azcopy's ste/mgr-JobMgr.go for the owns-a-worker-list,
// atomic-counter-aggregation shape and common/CountPerSecond.go for the
// throughput meter, adapted from one job-manager-per-whole-CLI-invocation
// to one Operation per two-panel transfer/delete/chattrs action (§2's
// "the host creates an Operation, seeds its Queue ... and spawns N
// Workers").
package operation

import (
	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/diskio"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/openedfiles"
	"github.com/twopanel/ftpcore/queue"
	"github.com/twopanel/ftpcore/worker"
)

// ItemPersister is the journal's write side, as seen from this package:
// a *journal.Store satisfies it without operation needing to import
// journal (journal already imports operation for Params), avoiding an
// import cycle the same way worker.Deps's callbacks avoid a
// worker->operation cycle.
type ItemPersister interface {
	SaveItem(opUID common.OperationUID, item *queue.Item) error
	DeleteItem(opUID common.OperationUID, uid common.ItemUID) error
}

// SharedDeps are the process-wide subsystems every Operation shares
// (§5's "DiskIO thread (one)" and §3.3's UploadListingCache/OpenedFiles
// being keyed by (user,host,port) rather than per-operation): one Disk,
// one Cache, one Registry for the whole OperationsList, injected here
// rather than constructed per Operation.
type SharedDeps struct {
	Disk         *diskio.Disk
	Cache        *listingcache.Cache
	Opened       *openedfiles.Registry
	ParseListing func(data []byte, systemHint string, pathType int) ([]listingcache.ListingItem, error)

	// Persist journals every item add/change/removal (§4.7); nil disables
	// journaling, which is how tests construct an Operation without
	// standing up a database.
	Persist ItemPersister
}

// Params is the host-supplied configuration for one Operation (§3.4).
type Params struct {
	common.ConnectionProfile
	Type           worker.OperationType
	SourcePath     string
	TargetPath     string
	WorkerCount    int
	TransferMode   common.TransferModeConfig
	DownloadPolicy common.PolicyDefaults
	UploadPolicy   common.PolicyDefaults
}

// State is §6.1's getOperationState result.
type State int

const (
	StateNone State = iota
	StateInProgress
	StateSuccessfullyFinished
	StateFinishedWithSkips
	StateFinishedWithErrors
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateInProgress:
		return "InProgress"
	case StateSuccessfullyFinished:
		return "SuccessfullyFinished"
	case StateFinishedWithSkips:
		return "FinishedWithSkips"
	case StateFinishedWithErrors:
		return "FinishedWithErrors"
	default:
		return "Unknown"
	}
}

// isUploadType reports whether t is one of the upload-family operation
// types, used by IsUploadingToServer (§4.6).
func isUploadType(t worker.OperationType) bool {
	return t == worker.OpCopyUpload || t == worker.OpMoveUpload
}
