// Package worker implements the per-connection driver of §4.5: a state
// machine that logs in, picks up queue items, runs each item's scripted
// command sequence, and orchestrates a data connection when a transfer
// needs one.
//
// Grounded on azcopy's ste/mgr-JobPartTransferMgr.go for the
// one-driver-per-transfer shape and ste/downloader.go / ste/Uploader.go
// for the per-item-type source/sink split, adapted from a
// re-entered-on-a-shared-thread model to one goroutine per worker
// draining a typed event channel -- the natural Go expression of a
// coroutine-like state machine, since a goroutine already gives what the
// source had to simulate on a single sockets thread.
package worker

import (
	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/queue"
)

// State is the worker's high-level state (§3.4).
type State int

const (
	StateLookingForWork State = iota
	StateSleeping
	StatePreparing
	StateConnecting
	StateWaitingForReconnect
	StateConnectionError
	StateWorking
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateLookingForWork:
		return "lookingForWork"
	case StateSleeping:
		return "sleeping"
	case StatePreparing:
		return "preparing"
	case StateConnecting:
		return "connecting"
	case StateWaitingForReconnect:
		return "waitingForReconnect"
	case StateConnectionError:
		return "connectionError"
	case StateWorking:
		return "working"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SubState refines Connecting and Working with the sub-phase in progress
// (§4.5.1/§4.5.4).
type SubState int

const (
	SubNone SubState = iota
	SubResolvingIP
	SubOpeningTCP
	SubWaitingGreeting
	SubNegotiatingTLS
	SubRunningProxyScript
	SubNegotiatingCompression
	SubRunningInitCommands
	SubSendingSyst
	SubVerifyingWorkDir
	SubRunningItemCommands
	SubDataConDoesNotExist
	SubDataConOnlyAllocated
	SubDataConWaitingForConnection
	SubDataConTransferingData
	SubDataConTransferFinished
	SubAwaitingDelayedRetry
)

// EventKind enumerates the control signals a worker's Run goroutine can
// receive from the outside while it blocks at a suspension point
// (pause/resume, stop, or a refreshed login after connectionError).
// Everything else a worker reacts to -- command replies, data-connection
// state, disk results -- happens as a direct, synchronous call within
// Run's own goroutine, since that goroutine already gives Go what a
// posted-event dispatch loop exists to simulate on a shared thread.
type EventKind int

const (
	EventShouldStop EventKind = iota
	EventShouldResume
	EventNewLoginParams
)

// LoginParams carries user-refreshed credentials for EventNewLoginParams
// (§4.5.1's "worker stops in connectionError until the user supplies new
// credentials").
type LoginParams struct {
	User     string
	Password string
	Account  string
}

// transferMode is the active FTP TYPE setting.
type transferMode int

const (
	transferBinary transferMode = iota
	transferASCII
)

// currentItem is the worker's view of the queue item it is driving
// through a command sequence.
type currentItem struct {
	uid  common.ItemUID
	item *queue.Item
}
