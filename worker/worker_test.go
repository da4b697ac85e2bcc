package worker

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/diskio"
	"github.com/twopanel/ftpcore/ftpproto"
	"github.com/twopanel/ftpcore/listingcache"
	"github.com/twopanel/ftpcore/openedfiles"
	"github.com/twopanel/ftpcore/queue"
)

func newTestWorker() *Worker {
	deps := Deps{
		Queue:  queue.New(),
		Disk:   diskio.New(),
		Cache:  listingcache.New(),
		Opened: openedfiles.New(),
		Params: ConnParams{ConnectionProfile: common.ConnectionProfile{Host: "ftp.example.test", Port: 21}},
	}
	return New(common.NewWorkerUID(), deps)
}

func TestNewWorkerStartsLookingForWork(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()
	a.Equal(StateLookingForWork, w.GetStatus().State)
	a.False(w.GetStatus().IsPaused)
}

func TestStopIsMonotoneAndWakesQueue(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	w.Stop()
	a.True(w.checkStop())

	// A second Stop must not panic or block despite the control channel
	// already holding a pending signal.
	w.Stop()
	a.True(w.checkStop())
}

func TestPauseBlocksAtSuspensionPointUntilResume(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()
	w.Pause()

	done := make(chan struct{})
	go func() {
		w.waitWhilePaused()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("waitWhilePaused returned before Resume")
	case <-time.After(50 * time.Millisecond):
	}

	a.True(w.GetStatus().IsPaused)
	w.Resume()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not return after Resume")
	}
	a.False(w.GetStatus().IsPaused)
}

func TestPauseReleasedByStop(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()
	w.Pause()

	done := make(chan struct{})
	go func() {
		w.waitWhilePaused()
		close(done)
	}()

	w.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not return after Stop")
	}
	a.True(w.checkStop())
}

func TestGetStatusReportsCurrentItem(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()
	a.False(w.GetStatus().HasCurrentItem)

	item := &queue.Item{UID: 42}
	w.cur = currentItem{uid: item.UID, item: item}
	status := w.GetStatus()
	a.True(status.HasCurrentItem)
	a.Equal(common.ItemUID(42), status.CurrentItemUID)
}

func TestSampleSpeedComputesRollingThroughput(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	w.bytesTransferred.Store(0)
	w.sampleSpeed() // first call just seeds the window
	a.Equal(0.0, w.currentSpeed)

	w.mu.Lock()
	w.lastSpeedSample = time.Now().Add(-time.Second)
	w.mu.Unlock()
	w.bytesTransferred.Store(1000)
	w.sampleSpeed()

	a.InDelta(1000.0, w.currentSpeed, 50.0)
}

func TestReconnectDelayIsCappedAndMonotonicallyBounded(t *testing.T) {
	a := assert.New(t)
	a.Equal(time.Second, reconnectDelay(0))
	a.Equal(2*time.Second, reconnectDelay(1))
	a.Equal(30*time.Second, reconnectDelay(100))
}

func TestSplitCommandLineSeparatesVerbAndArgs(t *testing.T) {
	a := assert.New(t)
	verb, args := splitCommandLine("SITE CHMOD 644")
	a.Equal("SITE", verb)
	a.Equal([]string{"CHMOD", "644"}, args)

	verb, args = splitCommandLine("")
	a.Equal("", verb)
	a.Nil(args)
}

func TestPrepareWorkingDirectorySkipsRedundantCWD(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()
	w.workDir = "/already/here"

	ok := w.prepareWorkingDirectory(&queue.Item{SourcePath: "/already/here"})
	a.True(ok)
}

func TestEnsureTransferModeOnlyIssuesTypeOnChange(t *testing.T) {
	a := assert.New(t)
	w := newTestWorker()

	server, client := net.Pipe()
	defer server.Close()
	w.conn = ftpproto.NewConn(client)

	// The first call issues TYPE against the raw pipe peer below; the
	// second (same mode) must not write anything further.
	done := make(chan error, 1)
	go func() {
		done <- w.ensureTransferMode(transferASCII)
	}()

	buf := make([]byte, 64)
	n, err := server.Read(buf)
	a.NoError(err)
	a.Contains(string(buf[:n]), "TYPE A")

	_, werr := server.Write([]byte("200 Type set to A.\r\n"))
	a.NoError(werr)

	a.NoError(<-done)
	a.Equal(transferASCII, w.mode)

	// Second call with the same mode must not write anything further.
	a.NoError(w.ensureTransferMode(transferASCII))
}
