package repo

import (
	"context"
	"strings"

	"expertline/internal/domain"
)

type AuditFilters struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Limit      int
	Cursor     int64
}

// ListAuditLog returns audit entries newest first. Cursor pages by entry ID.
func (r Repo) ListAuditLog(ctx context.Context, f AuditFilters) ([]domain.AuditLogEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.EntityType != "" {
		clauses = append(clauses, "entity_type=?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,ts,actor_id,action,entity_type,entity_id,metadata_json FROM audit_log ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &e.Metadata); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
