package listingcache

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/twopanel/ftpcore/common"
)

// normalizeName applies NFC normalization before any name comparison or
// sorted-array insertion, so a server that sends decomposed Unicode
// (e.g. an HFS+-backed FTP daemon) doesn't produce duplicate entries that
// differ only in combining-character order from what the worker asks
// getListing to look up.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// Cache owns every ServerListings keyed by (user, host, port), plus the
// shared monotonic "listing counter" that stamps listingStartTime and
// ListingChange.ChangeTime (§3.3).
type Cache struct {
	mu      sync.Mutex
	servers map[string]*ServerListings
	tick    int64
}

func New() *Cache {
	return &Cache{servers: make(map[string]*ServerListings)}
}

func serverKey(user, host string, port int) string {
	var b strings.Builder
	b.WriteString(user)
	b.WriteByte('\x00')
	b.WriteString(host)
	b.WriteByte('\x00')
	b.WriteString(strconv.Itoa(port))
	return b.String()
}

func (c *Cache) getOrCreateServerLocked(user, host string, port int) *ServerListings {
	key := serverKey(user, host, port)
	s, ok := c.servers[key]
	if !ok {
		s = newServerListings(user, host, port)
		c.servers[key] = s
	}
	return s
}

func (c *Cache) nextTick() int64 {
	c.tick++
	return c.tick
}

// GetListing is §4.3's getListing: acquire a listing for a target name.
func (c *Cache) GetListing(user, host string, port int, path string, pathType PathType, workerUID common.WorkerUID, name string) (LookupResult, ListingItem, chan WaitOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	server := c.getOrCreateServerLocked(user, host, port)
	listing, ok := server.paths[path]

	if !ok {
		listing = &PathListing{
			Path:             path,
			PathType:         pathType,
			State:            ListingInProgress,
			ListingStartTime: c.nextTick(),
		}
		server.paths[path] = listing
		ch := c.registerWaiterLocked(listing, workerUID)
		return LookupMustFetch, ListingItem{}, ch
	}

	switch listing.State {
	case ListingInProgress, ListingInProgressButObsolete, ListingInProgressButMayBeOutdated:
		ch := c.registerWaiterLocked(listing, workerUID)
		return LookupWait, ListingItem{}, ch
	case ListingNotAccessible:
		return LookupNotAccessible, ListingItem{}, nil
	default: // ListingReady
		if idx, found := findItem(listing.Items, name); found {
			return LookupItemPresent, listing.Items[idx], nil
		}
		return LookupItemAbsent, ListingItem{}, nil
	}
}

func (c *Cache) registerWaiterLocked(listing *PathListing, workerUID common.WorkerUID) chan WaitOutcome {
	ch := make(chan WaitOutcome, 1)
	listing.waiters = append(listing.waiters, listingWaiter{workerUID: workerUID, notify: ch})
	return ch
}

func drainWaiters(listing *PathListing, outcome WaitOutcome) {
	for _, w := range listing.waiters {
		w.notify <- outcome
	}
	listing.waiters = nil
}

// findItem binary-searches the sorted, case-sensitive Items array (§4.3
// step 6: "case-sensitive because some servers distinguish case"). Names
// are compared post-normalization; Items always holds normalized names
// because insertSorted and ListingFinished normalize on the way in.
func findItem(items []ListingItem, name string) (int, bool) {
	name = normalizeName(name)
	i := sort.Search(len(items), func(i int) bool { return items[i].Name >= name })
	if i < len(items) && items[i].Name == name {
		return i, true
	}
	return i, false
}

func insertSorted(items []ListingItem, item ListingItem) []ListingItem {
	item.Name = normalizeName(item.Name)
	i, found := findItem(items, item.Name)
	if found {
		items[i] = item
		return items
	}
	items = append(items, ListingItem{})
	copy(items[i+1:], items[i:])
	items[i] = item
	return items
}

func removeSorted(items []ListingItem, name string) []ListingItem {
	i, found := findItem(items, name)
	if !found {
		return items
	}
	return append(items[:i], items[i+1:]...)
}

// ListingFinished is §4.3's listingFinished: apply the freshly parsed
// entries (already produced by the caller's parse_listing step) according
// to the path's state when the fetch was started.
func (c *Cache) ListingFinished(user, host string, port int, path string, items []ListingItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	server := c.getOrCreateServerLocked(user, host, port)
	listing, ok := server.paths[path]
	if !ok {
		return
	}

	switch listing.State {
	case ListingInProgress, ListingInProgressButMayBeOutdated:
		sorted := append([]ListingItem(nil), items...)
		for i := range sorted {
			sorted[i].Name = normalizeName(sorted[i].Name)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		listing.Items = sorted
		for _, change := range listing.ChangeLog {
			if change.ChangeTime <= listing.ListingStartTime {
				continue
			}
			applyChangeLocked(listing, change)
		}
		listing.ChangeLog = nil
		listing.State = ListingReady
		drainWaiters(listing, OutcomeFinished)
	case ListingInProgressButObsolete:
		listing.ChangeLog = nil
		drainWaiters(listing, OutcomeFinished)
	}
}

// ListingFailed is §4.3's listingFailed.
func (c *Cache) ListingFailed(user, host string, port int, path string, listingIsNotAccessible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	server := c.getOrCreateServerLocked(user, host, port)
	listing, ok := server.paths[path]
	if !ok {
		return
	}

	if listingIsNotAccessible {
		listing.State = ListingNotAccessible
		drainWaiters(listing, OutcomeNotAccessible)
		return
	}
	delete(server.paths, path)
	drainWaiters(listing, OutcomeRetryLater)
}

func applyChangeLocked(listing *PathListing, change ListingChange) {
	switch change.Kind {
	case ChangeDeleteName:
		listing.Items = removeSorted(listing.Items, change.Name)
	case ChangeCreateDir:
		listing.Items = insertSorted(listing.Items, ListingItem{Name: change.Name, Kind: KindDirectory, Size: SizeUnknown})
	case ChangeStoreFileStart:
		listing.Items = insertSorted(listing.Items, ListingItem{Name: change.Name, Kind: KindFile, Size: SizeNeedsUpdate})
	case ChangeStoreFileUploaded:
		listing.Items = insertSorted(listing.Items, ListingItem{Name: change.Name, Kind: KindFile, Size: change.Size})
	}
	listing.LatestChangeTime = change.ChangeTime
}

// resolveForReportLocked looks up the cached path record a report*
// mutation applies to (§4.3's "Report mutations" dispatch). It returns nil
// when path is not cached and never creates a record; callers check the
// returned listing's State to choose between committing the change in
// place and queueing it.
func (c *Cache) resolveForReportLocked(user, host string, port int, path string, pathType PathType) *PathListing {
	server := c.getOrCreateServerLocked(user, host, port)
	listing, ok := server.paths[path]
	if !ok {
		return nil // not cached: no record needs updating
	}
	_ = pathType
	return listing
}

// appendChangeLocked queues a ListingChange against an in-progress path
// and escalates its state to inProgressButMayBeOutdated when
// unknownResult is set (§4.3: "state escalates ... on unknownChange or
// when the low-level call reports unknownResult = true").
func (c *Cache) appendChangeLocked(listing *PathListing, kind ChangeKind, name string, size int64, unknownResult bool) {
	listing.ChangeLog = append(listing.ChangeLog, ListingChange{Kind: kind, Name: name, Size: size, ChangeTime: c.nextTick()})
	if unknownResult {
		listing.State = ListingInProgressButMayBeOutdated
	}
}

// ReportCreateDirs implements reportCreateDirs: each entry of names is
// recorded as a new directory in path's own listing. Names are used as
// given; a name is not split into nested segments.
func (c *Cache) ReportCreateDirs(user, host string, port int, path string, pathType PathType, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	listing := c.resolveForReportLocked(user, host, port, path, pathType)
	if listing == nil {
		return
	}
	for _, name := range names {
		if listing.State == ListingReady {
			listing.Items = insertSorted(listing.Items, ListingItem{Name: name, Kind: KindDirectory, Size: SizeUnknown})
		} else {
			c.appendChangeLocked(listing, ChangeCreateDir, name, SizeUnknown, false)
		}
	}
}

// ReportRename implements reportRename: if newName is relative and
// carries no path separator, just renames in place; otherwise the source
// listing drops the old name and, if the destination path is itself
// cached, gets the new entry (§4.3 last bullet).
func (c *Cache) ReportRename(user, host string, port int, path string, pathType PathType, oldName, newName string, kind ItemKind, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	listing := c.resolveForReportLocked(user, host, port, path, pathType)
	if listing == nil {
		return
	}

	destPath, destName, crossesPath := splitDestination(path, newName)

	if listing.State == ListingReady {
		listing.Items = removeSorted(listing.Items, oldName)
	} else {
		c.appendChangeLocked(listing, ChangeDeleteName, oldName, SizeUnknown, false)
	}

	if !crossesPath {
		if listing.State == ListingReady {
			listing.Items = insertSorted(listing.Items, ListingItem{Name: destName, Kind: kind, Size: size})
		} else {
			c.appendChangeLocked(listing, ChangeCreateDir, destName, size, false)
		}
		return
	}

	server := c.getOrCreateServerLocked(user, host, port)
	if destListing, ok := server.paths[destPath]; ok {
		if destListing.State == ListingReady {
			destListing.Items = insertSorted(destListing.Items, ListingItem{Name: destName, Kind: kind, Size: size})
		} else {
			c.appendChangeLocked(destListing, ChangeCreateDir, destName, size, false)
		}
	}
}

// splitDestination reports whether newName is a relative name within the
// same directory (path) or names a different directory.
func splitDestination(sourcePath, newName string) (destPath, destName string, crossesPath bool) {
	idx := strings.LastIndexByte(newName, '/')
	if idx < 0 {
		return sourcePath, newName, false
	}
	return newName[:idx], newName[idx+1:], true
}

// ReportDelete implements reportDelete.
func (c *Cache) ReportDelete(user, host string, port int, path string, pathType PathType, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	listing := c.resolveForReportLocked(user, host, port, path, pathType)
	if listing == nil {
		return
	}
	if listing.State == ListingReady {
		listing.Items = removeSorted(listing.Items, name)
	} else {
		c.appendChangeLocked(listing, ChangeDeleteName, name, SizeUnknown, false)
	}
}

// ReportStoreFile implements reportStoreFile: a file upload has begun,
// size is not yet known ("needsUpdate" per §4.3).
func (c *Cache) ReportStoreFile(user, host string, port int, path string, pathType PathType, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	listing := c.resolveForReportLocked(user, host, port, path, pathType)
	if listing == nil {
		return
	}
	if listing.State == ListingReady {
		listing.Items = insertSorted(listing.Items, ListingItem{Name: name, Kind: KindFile, Size: SizeNeedsUpdate})
	} else {
		c.appendChangeLocked(listing, ChangeStoreFileStart, name, SizeNeedsUpdate, false)
	}
}

// ReportFileUploaded implements reportFileUploaded: writes the real size
// once the upload finishes.
func (c *Cache) ReportFileUploaded(user, host string, port int, path string, pathType PathType, name string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	listing := c.resolveForReportLocked(user, host, port, path, pathType)
	if listing == nil {
		return
	}
	if listing.State == ListingReady {
		listing.Items = insertSorted(listing.Items, ListingItem{Name: name, Kind: KindFile, Size: size})
	} else {
		c.appendChangeLocked(listing, ChangeStoreFileUploaded, name, size, false)
	}
}

// ReportUnknownChange implements reportUnknownChange: the engine cannot
// characterize the mutation precisely (e.g. a low-level FTP call returned
// unknownResult=true, or cross-operation admission control forces
// invalidation per §4.3's last paragraph before this one). A ready
// listing is dropped outright; an in-progress one escalates.
func (c *Cache) ReportUnknownChange(user, host string, port int, path string, pathType PathType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	listing := c.resolveForReportLocked(user, host, port, path, pathType)
	if listing == nil {
		return
	}
	switch listing.State {
	case ListingReady:
		server := c.getOrCreateServerLocked(user, host, port)
		delete(server.paths, path)
	case ListingInProgress:
		listing.State = ListingInProgressButMayBeOutdated
	default:
		// already in-progress-and-degraded or not-accessible; nothing to escalate further
	}
}

// InvalidateForUpload drops a cached ready listing before an upload
// begins writing to path, when OperationsList.canMakeChangesOnPath found
// another active operation already mutating it (§4.3's cross-operation
// invalidation paragraph).
func (c *Cache) InvalidateForUpload(user, host string, port int, path string, pathType PathType) {
	c.ReportUnknownChange(user, host, port, path, pathType)
}

// MarkObsolete transitions an in-progress listing to
// inProgressButObsolete when a newer ready listing arrives from the panel
// meanwhile (§4.3 step "If the path was in inProgressButObsolete").
func (c *Cache) MarkObsolete(user, host string, port int, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	server := c.getOrCreateServerLocked(user, host, port)
	if listing, ok := server.paths[path]; ok && listing.State == ListingInProgress {
		listing.State = ListingInProgressButObsolete
	}
}
