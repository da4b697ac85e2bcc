package operation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/diskio"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/openedfiles"
	"github.com/twopanel/ftpcore/worker"
)

func newListedOperation(l *OperationsList, typ worker.OperationType, source, target string) *Operation {
	shared := SharedDeps{
		Disk:   diskio.New(),
		Cache:  listingcache.New(),
		Opened: openedfiles.New(),
	}
	params := Params{
		ConnectionProfile: common.ConnectionProfile{Host: "ftp.example.test", Port: 21, User: "alice"},
		Type:              typ,
		SourcePath:        source,
		TargetPath:        target,
	}
	op := New(common.NewOperationUID(), l, shared, params)
	l.Add(op)
	return op
}

func TestCanMakeChangesOnPathFailsOnOverlapWithRegisteredOperation(t *testing.T) {
	a := assert.New(t)
	l := NewOperationsList()
	newListedOperation(l, worker.OpCopyDownload, "/home/alice/src", "/home/alice/dst")

	ok, err := l.CanMakeChangesOnPath("alice", "ftp.example.test", 21, "/home/alice/src/file.txt", listingcache.PathUnix)
	a.False(ok)
	a.Error(err)

	ok, err = l.CanMakeChangesOnPath("alice", "ftp.example.test", 21, "/home/alice/unrelated", listingcache.PathUnix)
	a.True(ok)
	a.NoError(err)
}

func TestIsUploadingToServerReflectsRunningUploadOperations(t *testing.T) {
	a := assert.New(t)
	l := NewOperationsList()
	op := newListedOperation(l, worker.OpCopyUpload, "/local/src", "/remote/dst")

	a.False(l.IsUploadingToServer("alice", "ftp.example.test", 21))

	op.mu.Lock()
	op.running = true
	op.mu.Unlock()
	a.True(l.IsUploadingToServer("alice", "ftp.example.test", 21))
}

func TestAcquireAndReleaseConnectionRoundTrip(t *testing.T) {
	a := assert.New(t)
	l := NewOperationsList()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	a.NoError(l.AcquireConnection(ctx))
	l.ReleaseConnection()
}

func TestWaitForCompletionReturnsImmediatelyWhenNoneInProgress(t *testing.T) {
	a := assert.New(t)
	l := NewOperationsList()
	newListedOperation(l, worker.OpCopyDownload, "/home/alice/src", "/home/alice/dst")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.NoError(l.WaitForCompletion(ctx))
}

func TestOperationCloseDeregistersFromList(t *testing.T) {
	a := assert.New(t)
	l := NewOperationsList()
	op := newListedOperation(l, worker.OpCopyDownload, "/home/alice/src", "/home/alice/dst")

	_, ok := l.Get(op.UID())
	a.True(ok)

	op.Close()
	_, ok = l.Get(op.UID())
	a.False(ok)
}

func TestDeletePulsesClosedChannel(t *testing.T) {
	a := assert.New(t)
	l := NewOperationsList()
	op := newListedOperation(l, worker.OpCopyDownload, "/home/alice/src", "/home/alice/dst")

	l.mu.Lock()
	ch := l.closedCh
	l.mu.Unlock()

	l.Delete(op.UID())
	select {
	case <-ch:
	default:
		t.Fatal("expected closedCh to be closed after Delete")
	}
}
