package common

import "github.com/google/uuid"

// OperationUID identifies one live Operation within an OperationsList.
type OperationUID uuid.UUID

func NewOperationUID() OperationUID { return OperationUID(uuid.New()) }

func (u OperationUID) String() string { return uuid.UUID(u).String() }

// ParseOperationUID reparses the string form (journal.Store round-trips
// an OperationUID through its database TEXT column this way).
func ParseOperationUID(s string) (OperationUID, error) {
	id, err := uuid.Parse(s)
	return OperationUID(id), err
}

// WorkerUID identifies one Worker within an Operation's worker list.
type WorkerUID uuid.UUID

func NewWorkerUID() WorkerUID { return WorkerUID(uuid.New()) }

func (u WorkerUID) String() string { return uuid.UUID(u).String() }

// ItemUID identifies one queue item within a Queue's arena. Unlike
// OperationUID/WorkerUID this is a small monotonic integer, not a UUID:
// §9 asks for "weak parent-uid references" cheap enough to store on every
// item and compare in the hot counter-propagation path.
type ItemUID int64

const NoParent ItemUID = -1

// OpenUID identifies one entry minted by the OpenedFiles registry.
type OpenUID int64
