// Package listingcache implements the UploadListingCache of §4.3: a
// per-(user,host,port) store of directory listings that upload workers
// consult before deciding whether a target name is new, needs
// auto-renaming, or can be resumed.
//
// Grounded on azcopy's common.folderDeletionManager (map-of-path-state
// behind one mutex, pending work recorded against a key and drained on a
// trigger) and common.LFUCache (owned, sorted in-memory entries with an
// eviction/update discipline), generalized from folder-emptiness counting
// and cache eviction to listing freshness tracking.
package listingcache

import "github.com/twopanel/ftpcore/common"

// PathType mirrors §3.3's path-type enumeration: which remote filesystem
// convention a path string follows, since entry ordering and segment
// syntax both depend on it.
type PathType int

const (
	PathUnix PathType = iota
	PathVMS
	PathWindows
	PathMVS
	PathIBMzVM
	PathOpenVMS
	PathTandem
)

// ListingState is §3.3's per-path state.
type ListingState int

const (
	ListingReady ListingState = iota
	ListingInProgress
	ListingInProgressButObsolete
	ListingInProgressButMayBeOutdated
	ListingNotAccessible
)

// ItemKind distinguishes a ListingItem's remote entry type.
type ItemKind int

const (
	KindFile ItemKind = iota
	KindDirectory
	KindLink
)

// Size sentinels for ListingItem.Size, per §3.3.
const (
	SizeUnknown     int64 = -1
	SizeNeedsUpdate int64 = -2
)

// ListingItem is one sorted entry of a PathListing.
type ListingItem struct {
	Name string
	Kind ItemKind
	Size int64
}

// ChangeKind enumerates §3.3's ListingChange variants.
type ChangeKind int

const (
	ChangeDeleteName ChangeKind = iota
	ChangeCreateDir
	ChangeStoreFileStart
	ChangeStoreFileUploaded
)

// ListingChange is one queued mutation applied once a listing that was
// in-progress when the mutation arrived finally completes.
type ListingChange struct {
	Kind       ChangeKind
	Name       string
	Size       int64
	ChangeTime int64
}

// listingWaiter is one entry of §4.3's "singly linked list of
// (workerMsg, workerUID)"; a channel stands in for the host-socket-thread
// post the original uses, since within this process a channel send is the
// natural way to wake a blocked worker goroutine.
type listingWaiter struct {
	workerUID common.WorkerUID
	notify    chan WaitOutcome
}

// WaitOutcome is what a waiting worker receives once the listing it is
// blocked on resolves.
type WaitOutcome int

const (
	OutcomeFinished WaitOutcome = iota
	OutcomeNotAccessible
	OutcomeRetryLater
)

// PathListing is one server-relative path's cached directory contents.
type PathListing struct {
	Path             string
	PathType         PathType
	State            ListingState
	ListingStartTime int64
	ChangeLog        []ListingChange
	LatestChangeTime int64
	FromPanel        bool
	Items            []ListingItem // sorted by Name, case-sensitive (§4.3 step 6)

	waiters []listingWaiter
}

// ServerListings is the per-(user,host,port) listing store.
type ServerListings struct {
	User string
	Host string
	Port int

	paths map[string]*PathListing
}

func newServerListings(user, host string, port int) *ServerListings {
	return &ServerListings{User: user, Host: host, Port: port, paths: make(map[string]*PathListing)}
}

// LookupResult is getListing's outcome (§4.3 step 1-6).
type LookupResult int

const (
	LookupMustFetch LookupResult = iota
	LookupWait
	LookupNotAccessible
	LookupItemPresent
	LookupItemAbsent
)
