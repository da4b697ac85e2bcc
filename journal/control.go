package journal

import (
	"context"
	"fmt"

	"github.com/twopanel/ftpcore/common"
)

// Control actions a cmd/ftpcore invocation can request of an operation
// that is running in another process (§4.5.6's pause/resume/cancel,
// driven here by the only channel two separate CLI invocations share: the
// journal database), mirroring tonimelisma-onedrive-go's pause.go writing
// a flag a running daemon polls for rather than signalling it directly.
const (
	ControlNone   = ""
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlCancel = "cancel"
)

// RequestControl records action against uid for the operation's run loop
// to pick up at its next poll.
func (s *Store) RequestControl(uid common.OperationUID, action string) error {
	_, err := s.db.ExecContext(context.Background(),
		`UPDATE operations SET control = ?, control_requested_at = strftime('%s','now') WHERE uid = ?`,
		action, uid.String())
	if err != nil {
		return fmt.Errorf("journal: request control %q on operation %s: %w", action, uid, err)
	}
	return nil
}

// PollControl reads and clears the pending control action for uid, so the
// run loop applies each request exactly once.
func (s *Store) PollControl(uid common.OperationUID) (string, error) {
	var action string
	err := s.db.QueryRowContext(context.Background(),
		`SELECT control FROM operations WHERE uid = ?`, uid.String()).Scan(&action)
	if err != nil {
		return "", fmt.Errorf("journal: poll control for operation %s: %w", uid, err)
	}
	if action == ControlNone {
		return ControlNone, nil
	}
	if _, err := s.db.ExecContext(context.Background(),
		`UPDATE operations SET control = '' WHERE uid = ?`, uid.String()); err != nil {
		return "", fmt.Errorf("journal: clear control for operation %s: %w", uid, err)
	}
	return action, nil
}
