package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"expertline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// querier lets the same query run on *sql.DB or *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const requestCols = `id,creator_id,title,raw_description,refined_summary,constraints,desired_outcome,urgency,budget_cents,currency,suggested_duration_mins,is_public,status,created_at,updated_at`

func scanRequest(scan func(dest ...any) error) (domain.Request, error) {
	var rq domain.Request
	var refined, constraints, outcome sql.NullString
	var budget sql.NullInt64
	var duration sql.NullInt64
	err := scan(&rq.ID, &rq.CreatorID, &rq.Title, &rq.RawDescription, &refined, &constraints, &outcome,
		&rq.Urgency, &budget, &rq.Currency, &duration, &rq.IsPublic, &rq.Status, &rq.CreatedAt, &rq.UpdatedAt)
	if err == sql.ErrNoRows {
		return rq, ErrNotFound
	}
	if err != nil {
		return rq, err
	}
	if refined.Valid {
		rq.RefinedSummary = &refined.String
	}
	if constraints.Valid {
		rq.Constraints = &constraints.String
	}
	if outcome.Valid {
		rq.DesiredOutcome = &outcome.String
	}
	if budget.Valid {
		rq.BudgetCents = &budget.Int64
	}
	if duration.Valid {
		d := int(duration.Int64)
		rq.SuggestedDurationMins = &d
	}
	return rq, nil
}

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, rq domain.Request) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO requests(`+requestCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rq.ID, rq.CreatorID, rq.Title, rq.RawDescription, nullableStringPtr(rq.RefinedSummary),
		nullableStringPtr(rq.Constraints), nullableStringPtr(rq.DesiredOutcome), rq.Urgency,
		nullableInt64Ptr(rq.BudgetCents), rq.Currency, nullableIntPtr(rq.SuggestedDurationMins),
		rq.IsPublic, rq.Status, rq.CreatedAt, rq.UpdatedAt)
	return err
}

func (r Repo) getRequest(ctx context.Context, q querier, id string) (domain.Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestCols+` FROM requests WHERE id=?`, id)
	rq, err := scanRequest(row.Scan)
	if err != nil {
		return rq, err
	}
	skills, err := r.listRequestSkills(ctx, q, id)
	if err != nil {
		return rq, err
	}
	rq.Skills = skills
	return rq, nil
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	return r.getRequest(ctx, r.DB, id)
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.Request, error) {
	return r.getRequest(ctx, tx, id)
}

func (r Repo) UpdateRequest(ctx context.Context, tx *sql.Tx, rq domain.Request) error {
	res, err := tx.ExecContext(ctx, `UPDATE requests SET title=?, raw_description=?, refined_summary=?, constraints=?, desired_outcome=?, urgency=?, budget_cents=?, currency=?, suggested_duration_mins=?, is_public=?, status=?, updated_at=? WHERE id=?`,
		rq.Title, rq.RawDescription, nullableStringPtr(rq.RefinedSummary), nullableStringPtr(rq.Constraints),
		nullableStringPtr(rq.DesiredOutcome), rq.Urgency, nullableInt64Ptr(rq.BudgetCents), rq.Currency,
		nullableIntPtr(rq.SuggestedDurationMins), rq.IsPublic, rq.Status, rq.UpdatedAt, rq.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateRequestStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE requests SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetRefinedSummary(ctx context.Context, tx *sql.Tx, id, summary, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE requests SET refined_summary=?, updated_at=? WHERE id=?`, summary, updatedAt, id)
	return err
}

type RequestFilters struct {
	CreatorID       string
	Status          string
	PublicOnly      bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.Request, error) {
	var clauses []string
	var args []any
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.PublicOnly {
		clauses = append(clauses, "is_public=1")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + requestCols + ` FROM requests ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Request
	for rows.Next() {
		rq, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		skills, err := r.listRequestSkills(ctx, r.DB, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Skills = skills
	}
	return res, nil
}

func (r Repo) listRequestSkills(ctx context.Context, q querier, requestID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT s.slug FROM request_skills rs JOIN skills s ON s.id=rs.skill_id WHERE rs.request_id=? ORDER BY s.slug`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// ReplaceRequestSkills rewrites the skill links for a request. Skills are
// resolved (and created on first use) by slug.
func (r Repo) ReplaceRequestSkills(ctx context.Context, tx *sql.Tx, requestID string, slugs []string, newSkillID func() string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM request_skills WHERE request_id=?`, requestID); err != nil {
		return err
	}
	for _, slug := range slugs {
		skillID, err := r.ensureSkill(ctx, tx, slug, newSkillID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO request_skills(request_id,skill_id) VALUES (?,?)`, requestID, skillID); err != nil {
			return err
		}
	}
	return nil
}
