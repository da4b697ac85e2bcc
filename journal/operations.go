package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/operation"
)

// SaveOperation persists the operation.Params needed to rebuild an
// Operation after a restart (§4.7). Rather than give every Params field
// its own column, the whole struct round-trips through params_json;
// uid/type/host/port/user/paths are also written to their own columns on
// insert, and an upsert rewrites only params_json. RecoverOperations
// reads params_json back and orders on created_at.
func (s *Store) SaveOperation(uid common.OperationUID, p operation.Params, createdAt int64) error {
	paramsJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("journal: marshal operation params: %w", err)
	}

	_, err = s.db.ExecContext(context.Background(),
		`INSERT INTO operations
			(uid, type, host, port, user, source_path, target_path, params_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(uid) DO UPDATE SET params_json = excluded.params_json`,
		uid.String(), int(p.Type), p.Host, p.Port, p.User, p.SourcePath, p.TargetPath,
		string(paramsJSON), createdAt,
	)
	if err != nil {
		return fmt.Errorf("journal: save operation %s: %w", uid, err)
	}
	return nil
}

// DeleteOperation removes an operation and every item journaled under it
// (ON DELETE CASCADE), called once the operation reaches a terminal
// state and the host no longer needs to recover it.
func (s *Store) DeleteOperation(uid common.OperationUID) error {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM operations WHERE uid = ?`, uid.String())
	if err != nil {
		return fmt.Errorf("journal: delete operation %s: %w", uid, err)
	}
	return nil
}

// PendingOperation is one row RecoverOperations hands back: enough to
// reconstruct the Operation's Params and then replay its items.
type PendingOperation struct {
	UID    common.OperationUID
	Params operation.Params
}

// RecoverOperations lists every operation still journaled, for the host
// to offer "resume interrupted transfer?" at startup (§4.7).
func (s *Store) RecoverOperations() ([]PendingOperation, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT uid, params_json FROM operations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("journal: recover operations: %w", err)
	}
	defer rows.Close()

	var out []PendingOperation
	for rows.Next() {
		var uidStr, paramsJSON string
		if err := rows.Scan(&uidStr, &paramsJSON); err != nil {
			return nil, fmt.Errorf("journal: scan operation row: %w", err)
		}
		uid, err := common.ParseOperationUID(uidStr)
		if err != nil {
			return nil, fmt.Errorf("journal: parse operation uid %q: %w", uidStr, err)
		}
		var p operation.Params
		if err := json.Unmarshal([]byte(paramsJSON), &p); err != nil {
			return nil, fmt.Errorf("journal: unmarshal operation %s params: %w", uidStr, err)
		}
		out = append(out, PendingOperation{UID: uid, Params: p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating operation rows: %w", err)
	}
	s.logf("journal: found %d operation(s) to recover", len(out))
	return out, nil
}
