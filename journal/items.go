package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/twopanel/ftpcore/common"
	"github.com/twopanel/ftpcore/queue"
)

// SaveItem upserts one queue item's current state (§4.7): called from
// the same call sites that call queue.Queue.AddItem/UpdateItemState, so
// the journal never lags the in-memory queue by more than one write.
func (s *Store) SaveItem(opUID common.OperationUID, item *queue.Item) error {
	downloadJSON, err := marshalOptional(item.Download)
	if err != nil {
		return fmt.Errorf("journal: marshal download fields: %w", err)
	}
	uploadJSON, err := marshalOptional(item.Upload)
	if err != nil {
		return fmt.Errorf("journal: marshal upload fields: %w", err)
	}
	countersJSON, err := marshalOptional(item.Counters)
	if err != nil {
		return fmt.Errorf("journal: marshal counters: %w", err)
	}
	chAttrsJSON, err := marshalOptional(item.ChAttrs)
	if err != nil {
		return fmt.Errorf("journal: marshal chattrs fields: %w", err)
	}

	_, err = s.db.ExecContext(context.Background(),
		`INSERT INTO items
			(uid, operation_uid, parent_id, type, state, problem_id, os_err_no,
			 err_descr, error_occurrence_time, forced_action, source_path, source_name,
			 is_top_level_dir, is_hidden_dir, is_hidden_file,
			 download_json, upload_json, counters_json, chattrs_json, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s','now'))
			ON CONFLICT(operation_uid, uid) DO UPDATE SET
				parent_id             = excluded.parent_id,
				type                  = excluded.type,
				state                 = excluded.state,
				problem_id            = excluded.problem_id,
				os_err_no             = excluded.os_err_no,
				err_descr             = excluded.err_descr,
				error_occurrence_time = excluded.error_occurrence_time,
				forced_action         = excluded.forced_action,
				source_path           = excluded.source_path,
				source_name           = excluded.source_name,
				is_top_level_dir      = excluded.is_top_level_dir,
				is_hidden_dir         = excluded.is_hidden_dir,
				is_hidden_file        = excluded.is_hidden_file,
				download_json         = excluded.download_json,
				upload_json           = excluded.upload_json,
				counters_json         = excluded.counters_json,
				chattrs_json          = excluded.chattrs_json,
				updated_at            = excluded.updated_at`,
		int64(item.UID), opUID.String(), int64(item.ParentID), int(item.Type), int(item.State),
		uint32(item.ProblemID), item.OSErrNo, item.ErrDescr, item.ErrorOccurrenceTime,
		int(item.ForcedAction), item.SourcePath, item.SourceName,
		item.IsTopLevelDir, item.IsHiddenDir, item.IsHiddenFile,
		downloadJSON, uploadJSON, countersJSON, chAttrsJSON,
	)
	if err != nil {
		return fmt.Errorf("journal: save item %d for operation %s: %w", item.UID, opUID, err)
	}
	return nil
}

// DeleteItem removes one journaled item, used when replaceItemWithList
// fans an explore item out into its children (§4.2): the explore row is
// gone from the in-memory queue, so it should be gone from the journal
// too rather than resurrected as a phantom item on recovery.
func (s *Store) DeleteItem(opUID common.OperationUID, uid common.ItemUID) error {
	_, err := s.db.ExecContext(context.Background(),
		`DELETE FROM items WHERE operation_uid = ? AND uid = ?`, opUID.String(), int64(uid))
	if err != nil {
		return fmt.Errorf("journal: delete item %d for operation %s: %w", uid, opUID, err)
	}
	return nil
}

// LoadItems replays every journaled item for opUID back into Item
// values, in ascending uid order, so the host can feed them through
// queue.Queue.RestoreItems to rebuild the in-memory queue after a
// restart (§4.7). Unlike queue.Queue.AddItem, RestoreItems preserves the
// uid/state/parent links read back here instead of minting new ones, so
// an item that already finished before the crash isn't replayed as
// pending work.
func (s *Store) LoadItems(opUID common.OperationUID) ([]*queue.Item, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT uid, parent_id, type, state, problem_id, os_err_no, err_descr,
			error_occurrence_time, forced_action, source_path, source_name,
			is_top_level_dir, is_hidden_dir, is_hidden_file,
			download_json, upload_json, counters_json, chattrs_json
		 FROM items WHERE operation_uid = ? ORDER BY uid`, opUID.String())
	if err != nil {
		return nil, fmt.Errorf("journal: load items for operation %s: %w", opUID, err)
	}
	defer rows.Close()

	var out []*queue.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating items for operation %s: %w", opUID, err)
	}
	return out, nil
}

// RestoreQueue loads every journaled item for opUID and replays it into
// q via queue.Queue.RestoreItems, the glue between this package's
// storage and the in-memory reconstruction a resumed Operation needs
// (§4.7).
func (s *Store) RestoreQueue(opUID common.OperationUID, q *queue.Queue) error {
	items, err := s.LoadItems(opUID)
	if err != nil {
		return err
	}
	q.RestoreItems(items)
	s.logf("journal: restored %d item(s) for operation %s", len(items), opUID)
	return nil
}

func scanItem(rows *sql.Rows) (*queue.Item, error) {
	var (
		item                      queue.Item
		uid, parentID             int64
		typ, state, forcedAction  int
		problemID                 uint32
		downloadJSON, uploadJSON  sql.NullString
		countersJSON, chAttrsJSON sql.NullString
	)

	if err := rows.Scan(
		&uid, &parentID, &typ, &state, &problemID, &item.OSErrNo, &item.ErrDescr,
		&item.ErrorOccurrenceTime, &forcedAction, &item.SourcePath, &item.SourceName,
		&item.IsTopLevelDir, &item.IsHiddenDir, &item.IsHiddenFile,
		&downloadJSON, &uploadJSON, &countersJSON, &chAttrsJSON,
	); err != nil {
		return nil, fmt.Errorf("journal: scan item row: %w", err)
	}

	item.UID = common.ItemUID(uid)
	item.ParentID = common.ItemUID(parentID)
	item.Type = queue.ItemType(typ)
	item.State = queue.ItemState(state)
	item.ProblemID = common.ProblemID(problemID)
	item.ForcedAction = queue.ForcedAction(forcedAction)

	if downloadJSON.Valid {
		item.Download = &queue.DownloadFields{}
		if err := json.Unmarshal([]byte(downloadJSON.String), item.Download); err != nil {
			return nil, fmt.Errorf("journal: unmarshal download fields for item %d: %w", uid, err)
		}
	}
	if uploadJSON.Valid {
		item.Upload = &queue.UploadFields{}
		if err := json.Unmarshal([]byte(uploadJSON.String), item.Upload); err != nil {
			return nil, fmt.Errorf("journal: unmarshal upload fields for item %d: %w", uid, err)
		}
	}
	if countersJSON.Valid {
		item.Counters = &queue.DirCounters{}
		if err := json.Unmarshal([]byte(countersJSON.String), item.Counters); err != nil {
			return nil, fmt.Errorf("journal: unmarshal counters for item %d: %w", uid, err)
		}
	}
	if chAttrsJSON.Valid {
		item.ChAttrs = &queue.ChAttrsFields{}
		if err := json.Unmarshal([]byte(chAttrsJSON.String), item.ChAttrs); err != nil {
			return nil, fmt.Errorf("journal: unmarshal chattrs fields for item %d: %w", uid, err)
		}
	}

	return &item, nil
}

// marshalOptional JSON-encodes v, returning a NULL-valued arg when v is a
// nil pointer so the corresponding column stays NULL instead of storing
// the literal string "null".
func marshalOptional(v any) (any, error) {
	switch val := v.(type) {
	case *queue.DownloadFields:
		if val == nil {
			return nil, nil
		}
	case *queue.UploadFields:
		if val == nil {
			return nil, nil
		}
	case *queue.DirCounters:
		if val == nil {
			return nil, nil
		}
	case *queue.ChAttrsFields:
		if val == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
