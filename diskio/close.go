package diskio

import (
	"context"
	"os"
	"time"
)

// closeRequest is one entry of the pending-close queue of §4.1: "submit
// 'close this handle eventually, optionally set mtime/atime, optionally
// delete if empty, optionally truncate' without waiting."
type closeRequest struct {
	idx             int64
	handle          *OpenHandle
	setModTime      bool
	modTime         time.Time
	deleteIfEmpty   bool
	truncateToSize  int64
	truncate        bool
	done            chan struct{}
}

// CloseOptions configures one EnqueueClose call.
type CloseOptions struct {
	SetModTime    bool
	ModTime       time.Time
	DeleteIfEmpty bool
	Truncate      bool
	TruncateSize  int64
}

// EnqueueClose submits a close without blocking the caller; it returns a
// monotonic index the caller can later hand to WaitForClose.
func (d *Disk) EnqueueClose(handle *OpenHandle, opts CloseOptions) int64 {
	d.mu.Lock()
	d.nextCloseIdx++
	idx := d.nextCloseIdx
	d.mu.Unlock()

	d.closes <- closeRequest{
		idx:            idx,
		handle:         handle,
		setModTime:     opts.SetModTime,
		modTime:        opts.ModTime,
		deleteIfEmpty:  opts.DeleteIfEmpty,
		truncate:       opts.Truncate,
		truncateToSize: opts.TruncateSize,
	}
	return idx
}

// WaitForClose blocks until the close at idx (or a later one) has been
// processed, or ctx is done.
func (d *Disk) WaitForClose(ctx context.Context, idx int64) bool {
	d.mu.Lock()
	if d.lastFinishedCloseIdx >= idx {
		d.mu.Unlock()
		return true
	}
	ch := make(chan struct{})
	d.closeWaiters[idx] = append(d.closeWaiters[idx], ch)
	d.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Disk) executeClose(cr closeRequest) {
	if cr.handle != nil && cr.handle.file != nil {
		f := cr.handle.file

		if cr.truncate {
			f.Truncate(cr.truncateToSize)
		}
		if cr.setModTime {
			os.Chtimes(cr.handle.path, cr.modTime, cr.modTime)
		}
		f.Close()

		if cr.deleteIfEmpty {
			if fi, err := os.Stat(cr.handle.path); err == nil && fi.Size() == 0 {
				os.Remove(cr.handle.path)
			}
		}
	}

	d.mu.Lock()
	d.lastFinishedCloseIdx = cr.idx
	waiters := d.closeWaiters[cr.idx]
	delete(d.closeWaiters, cr.idx)
	d.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}
