// Package audit appends entries to the append-only audit log. Entries are
// written inside the caller's transaction so a rolled-back transition leaves
// no trace.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	Now func() time.Time
}

type Metadata map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, actorID, action, entityType, entityID string, meta Metadata) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if meta == nil {
		meta = Metadata{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_log(ts,actor_id,action,entity_type,entity_id,metadata_json) VALUES (?,?,?,?,?,?)`,
		ts, actorID, action, entityType, entityID, string(data))
	return err
}
