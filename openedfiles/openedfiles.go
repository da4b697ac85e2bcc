// Package openedfiles implements the OpenedFiles registry of §3.4/§4.4:
// a conflict-detection table workers consult before touching a remote
// file, so two workers never race on the same path from the same server.
//
// Grounded on azcopy's common.ExclusiveStringMap (key collision map
// behind one mutex) generalized from a single case-(in)sensitive key set
// to the access-type conflict matrix of §4.4, and from a plain
// add/remove pair to a minted-uid free-list so closeFile can release by
// uid without a second key lookup.
package openedfiles

import (
	"sync"

	"github.com/twopanel/ftpcore/common"
)

// AccessType is one of §3.4's four access kinds.
type AccessType int

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessDelete
	AccessRename
)

// conflicts reports whether a new request of kind `want` collides with an
// existing open of kind `have`, per §4.4's rule table: read‖read is
// allowed; read‖write denied; write‖write denied; delete conflicts with
// all; rename conflicts with all.
func conflicts(have, want AccessType) bool {
	if have == AccessDelete || want == AccessDelete {
		return true
	}
	if have == AccessRename || want == AccessRename {
		return true
	}
	if have == AccessRead && want == AccessRead {
		return false
	}
	return true // read/write, write/write
}

type openEntry struct {
	uid        common.OpenUID
	accessType AccessType
	user       string
	host       string
	port       int
	path       string
	pathType   int
	name       string
	inUse      bool
}

// Registry is the OpenedFiles table of §3.4.
type Registry struct {
	mu      sync.Mutex
	entries []openEntry // reclaimed free-list: inUse=false slots are reused
	freeIdx []int
	nextUID common.OpenUID
}

func New() *Registry {
	return &Registry{}
}

var ErrConflict = common.NewItemError(common.EProblem.SrcFileInUse(), "file already opened with a conflicting access type", nil)

// OpenFile implements §4.4's openFile: a linear scan for an existing
// entry on the same (user,host,port,path,pathType,name); a conflicting
// access type fails the call, otherwise a new uid is minted.
func (r *Registry) OpenFile(user, host string, port int, path string, pathType int, name string, accessType AccessType) (common.OpenUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		e := &r.entries[i]
		if !e.inUse {
			continue
		}
		if e.user == user && e.host == host && e.port == port && e.path == path && e.pathType == pathType && e.name == name {
			if conflicts(e.accessType, accessType) {
				return 0, ErrConflict
			}
		}
	}

	r.nextUID++
	uid := r.nextUID
	entry := openEntry{uid: uid, accessType: accessType, user: user, host: host, port: port, path: path, pathType: pathType, name: name, inUse: true}

	if len(r.freeIdx) > 0 {
		idx := r.freeIdx[len(r.freeIdx)-1]
		r.freeIdx = r.freeIdx[:len(r.freeIdx)-1]
		r.entries[idx] = entry
	} else {
		r.entries = append(r.entries, entry)
	}
	return uid, nil
}

// CloseFile releases a uid minted by OpenFile, recycling its slot.
func (r *Registry) CloseFile(uid common.OpenUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].inUse && r.entries[i].uid == uid {
			r.entries[i] = openEntry{}
			r.freeIdx = append(r.freeIdx, i)
			return
		}
	}
}

// Count reports the number of currently-open entries, for tests and
// diagnostics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries) - len(r.freeIdx)
}
