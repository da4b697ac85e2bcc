package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// ItemError is the allocated, owned error description of §3.1
// ("errAllocDescr"): a ProblemID plus the verbatim protocol/OS detail and,
// when the chain has one, the underlying cause. Queue.updateItemState owns
// the prior ItemError's lifetime exactly as the spec's "owns the freed
// prior errDescr" phrasing describes, which in Go just means replacing the
// pointer and letting the GC do it.
type ItemError struct {
	ProblemID ProblemID
	OSErrNo   int
	Descr     string
	cause     error
}

func NewItemError(problem ProblemID, descr string, cause error) *ItemError {
	return &ItemError{ProblemID: problem, Descr: descr, cause: cause}
}

func (e *ItemError) Error() string {
	if e.Descr != "" {
		return fmt.Sprintf("%s: %s", e.ProblemID, e.Descr)
	}
	return e.ProblemID.String()
}

func (e *ItemError) Cause() error { return e.cause }
func (e *ItemError) Unwrap() error { return e.cause }

// Wrap mirrors azcopy's reliance on github.com/pkg/errors: every boundary
// (FTP reply, disk OS error) wraps with context so Cause() below can walk
// back to the root error for display while the log keeps the whole chain.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}

// Cause walks the causer chain to the root error, used when a problem
// resolution needs the original OS/protocol error rather than this
// engine's wrapping.
func Cause(err error) error {
	return errors.Cause(err)
}
