// Package queue implements §4.2's Queue: the hierarchical task graph of
// file/dir items plus explore/resolve-link meta-items, with parent↔child
// counters and per-item error state (§3.1/§3.2).
//
// Grounded on §9's "Ownership migration from raw-pointer trees" note and
// azcopy's own index-addressed JobPartPlanTransfer array
// (ste/JobPartPlan.go): items live in one arena keyed by common.ItemUID,
// parents are referenced by uid (not pointer), and a dir item's four
// counters are fields on the item itself rather than recomputed by walking
// children.
package queue

import (
	"time"

	"github.com/twopanel/ftpcore/common"
)

// ItemType tags every item. The two groups of §3.1 are separated by the
// sentinel firstTerminalType: anything below it is an explore/resolve item
// and is always drained first (§4.2 scheduling policy).
type ItemType int

const (
	// Explore/resolve items (higher priority).
	DeleteExploreDir ItemType = iota
	CopyResolveLink
	MoveResolveLink
	CopyExploreDir
	MoveExploreDir
	MoveExploreDirLink
	ChAttrsExploreDir
	ChAttrsResolveLink
	ChAttrsExploreDirLink
	UploadCopyExploreDir
	UploadMoveExploreDir

	firstTerminalType // sentinel: not a real item type

	// Terminal items.
	DeleteLink
	DeleteFile
	DeleteDir
	CopyFileOrFileLink
	MoveFileOrFileLink
	MoveDeleteDir
	MoveDeleteDirLink
	ChAttrsFile
	ChAttrsDir
	UploadCopyFile
	UploadMoveFile
	UploadMoveDeleteDir
)

// IsExploreOrResolve reports whether t belongs to the higher-priority
// group that the getOnlyExploreAndResolveItems latch (§4.2) restricts to.
func (t ItemType) IsExploreOrResolve() bool { return t < firstTerminalType }

// IsDir reports whether items of this type carry the four child counters
// of §3.1 ("Dir items ... carry four counters").
func (t ItemType) IsDir() bool {
	switch t {
	case DeleteDir, MoveDeleteDir, MoveDeleteDirLink, ChAttrsDir, UploadMoveDeleteDir:
		return true
	default:
		return false
	}
}

func (t ItemType) String() string {
	switch t {
	case DeleteExploreDir:
		return "DeleteExploreDir"
	case CopyResolveLink:
		return "CopyResolveLink"
	case MoveResolveLink:
		return "MoveResolveLink"
	case CopyExploreDir:
		return "CopyExploreDir"
	case MoveExploreDir:
		return "MoveExploreDir"
	case MoveExploreDirLink:
		return "MoveExploreDirLink"
	case ChAttrsExploreDir:
		return "ChAttrsExploreDir"
	case ChAttrsResolveLink:
		return "ChAttrsResolveLink"
	case ChAttrsExploreDirLink:
		return "ChAttrsExploreDirLink"
	case UploadCopyExploreDir:
		return "UploadCopyExploreDir"
	case UploadMoveExploreDir:
		return "UploadMoveExploreDir"
	case DeleteLink:
		return "DeleteLink"
	case DeleteFile:
		return "DeleteFile"
	case DeleteDir:
		return "DeleteDir"
	case CopyFileOrFileLink:
		return "CopyFileOrFileLink"
	case MoveFileOrFileLink:
		return "MoveFileOrFileLink"
	case MoveDeleteDir:
		return "MoveDeleteDir"
	case MoveDeleteDirLink:
		return "MoveDeleteDirLink"
	case ChAttrsFile:
		return "ChAttrsFile"
	case ChAttrsDir:
		return "ChAttrsDir"
	case UploadCopyFile:
		return "UploadCopyFile"
	case UploadMoveFile:
		return "UploadMoveFile"
	case UploadMoveDeleteDir:
		return "UploadMoveDeleteDir"
	default:
		return "Unknown"
	}
}

// ItemState is the runtime state of §3.1.
type ItemState int

var EItemState = ItemState(0)

func (ItemState) None() ItemState             { return ItemState(0) }
func (ItemState) Done() ItemState             { return ItemState(1) }
func (ItemState) Waiting() ItemState          { return ItemState(2) }
func (ItemState) Processing() ItemState       { return ItemState(3) }
func (ItemState) Delayed() ItemState          { return ItemState(4) }
func (ItemState) Skipped() ItemState          { return ItemState(5) }
func (ItemState) Failed() ItemState           { return ItemState(6) }
func (ItemState) UserInputNeeded() ItemState  { return ItemState(7) }
func (ItemState) ForcedToFail() ItemState     { return ItemState(8) }

var itemStateNames = [...]string{"None", "Done", "Waiting", "Processing", "Delayed", "Skipped", "Failed", "UserInputNeeded", "ForcedToFail"}

func (s ItemState) String() string {
	if int(s) >= 0 && int(s) < len(itemStateNames) {
		return itemStateNames[s]
	}
	return "Unknown"
}

// IsError reports membership in the error-state group of §3.2 invariant 4.
func (s ItemState) IsError() bool {
	switch s {
	case EItemState.Skipped(), EItemState.Failed(), EItemState.UserInputNeeded(), EItemState.ForcedToFail():
		return true
	default:
		return false
	}
}

// IsTerminalDone reports membership in the "done" group dir counters track
// (§3.1 "childItemsNotDone" is everything NOT in this group).
func (s ItemState) IsTerminalDone() bool {
	return s == EItemState.Done() || s.IsError()
}

// ForcedAction is the "forced-action hint" of §3.1/§4.2 —
// solveErrorOnItem uses this to tell the worker what the user (or a
// policy default) decided to do the next time the item is dispatched.
type ForcedAction int

const (
	ForceNone ForcedAction = iota
	ForceSkip
	ForceRetry
	ForceAutoRename
	ForceOverwrite
	ForceResume
	ForceResumeOrOverwrite
	ForceJoinExisting
	ForceIgnoreAscii
	ForceRestartBinary
	ForceDeleteNonEmpty
	ForceIgnoreUnknownAttrs
)

// TgtFileState is the download/upload item's "tgtFileState" of §3.1.
type TgtFileState int

const (
	TgtUnknown TgtFileState = iota
	TgtTransferred
	TgtCreated
	TgtResumed
)

// Item is the single tagged-variant struct every queue entry uses. Common
// fields come first (§3.1's first paragraph); variant-specific fields
// follow as named groups, only some of which are populated depending on
// Type -- the Go expression of the C++ source's polymorphic item hierarchy
// without resorting to an interface-per-type, since every operation in §4.2
// (addToNotDoneSkippedFailed, updateItemState, ...) needs to touch the
// common fields regardless of type.
type Item struct {
	UID      common.ItemUID
	ParentID common.ItemUID // common.NoParent if top-level
	Type     ItemType
	State    ItemState

	ProblemID           common.ProblemID
	OSErrNo             int
	ErrDescr            string
	ErrorOccurrenceTime int64 // monotonic tick; 0 means never errored (§3.2 invariant 4)
	ForcedAction        ForcedAction

	SourcePath string
	SourceName string

	// Delete-family directory items (§3.1).
	IsTopLevelDir bool
	IsHiddenDir   bool
	IsHiddenFile  bool

	// Copy/Move download items.
	Download *DownloadFields

	// Copy/Move upload items.
	Upload *UploadFields

	// Dir items: DeleteDir, MoveDeleteDir*, ChAttrsDir, UploadMoveDeleteDir.
	Counters *DirCounters

	// ChAttrs items.
	ChAttrs *ChAttrsFields

	createdAt time.Time
}

type DownloadFields struct {
	TargetPath  string
	TargetName  string
	Size        int64 // common.UnknownSize sentinel when unknown
	SourceTime  time.Time
	HasSourceTime bool
	AsciiMode            bool
	IgnoreAsciiForBinary bool
	SizeInBytes          bool // false => size is in blocks (§3.3 MVS/VMS)
	TgtFileState         TgtFileState
}

type UploadFields struct {
	TargetPath  string
	TargetName  string
	Size        int64
	AutorenamePhase int
	RenamedName     string
	SizeWithCRLFEOLs int64
	NumberOfEOLs     int64
	TgtFileState     TgtFileState
}

type DirCounters struct {
	ChildItemsNotDone  int
	ChildItemsSkipped  int
	ChildItemsFailed   int
	ChildItemsUINeeded int
}

type ChAttrsFields struct {
	RequestedMode  uint32
	UnknownAttrs   bool
	OriginalRights string
}
