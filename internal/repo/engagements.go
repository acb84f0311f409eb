package repo

import (
	"context"
	"database/sql"

	"expertline/internal/domain"
)

const engagementCols = `id,booking_id,status,agenda,video_link,created_at,updated_at,ended_at`

func scanEngagement(scan func(dest ...any) error) (domain.Engagement, error) {
	var e domain.Engagement
	var agenda, video, ended sql.NullString
	err := scan(&e.ID, &e.BookingID, &e.Status, &agenda, &video, &e.CreatedAt, &e.UpdatedAt, &ended)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if agenda.Valid {
		e.Agenda = &agenda.String
	}
	if video.Valid {
		e.VideoLink = &video.String
	}
	if ended.Valid {
		e.EndedAt = &ended.String
	}
	return e, nil
}

func (r Repo) InsertEngagement(ctx context.Context, tx *sql.Tx, e domain.Engagement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO engagements(`+engagementCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.BookingID, e.Status, nullableStringPtr(e.Agenda), nullableStringPtr(e.VideoLink),
		e.CreatedAt, e.UpdatedAt, nullableStringPtr(e.EndedAt))
	return err
}

func (r Repo) GetEngagement(ctx context.Context, id string) (domain.Engagement, error) {
	return scanEngagement(r.DB.QueryRowContext(ctx, `SELECT `+engagementCols+` FROM engagements WHERE id=?`, id).Scan)
}

func (r Repo) GetEngagementTx(ctx context.Context, tx *sql.Tx, id string) (domain.Engagement, error) {
	return scanEngagement(tx.QueryRowContext(ctx, `SELECT `+engagementCols+` FROM engagements WHERE id=?`, id).Scan)
}

func (r Repo) GetEngagementByBooking(ctx context.Context, bookingID string) (domain.Engagement, error) {
	return scanEngagement(r.DB.QueryRowContext(ctx, `SELECT `+engagementCols+` FROM engagements WHERE booking_id=?`, bookingID).Scan)
}

func (r Repo) UpdateEngagement(ctx context.Context, tx *sql.Tx, e domain.Engagement) error {
	res, err := tx.ExecContext(ctx, `UPDATE engagements SET status=?, agenda=?, video_link=?, updated_at=?, ended_at=? WHERE id=?`,
		e.Status, nullableStringPtr(e.Agenda), nullableStringPtr(e.VideoLink), e.UpdatedAt, nullableStringPtr(e.EndedAt), e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListEngagementsForActor(ctx context.Context, actorID string) ([]domain.Engagement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT e.id,e.booking_id,e.status,e.agenda,e.video_link,e.created_at,e.updated_at,e.ended_at
FROM engagements e JOIN bookings b ON b.id=e.booking_id
WHERE b.client_id=? OR b.consultant_id=? ORDER BY e.created_at DESC, e.id DESC`, actorID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Engagement
	for rows.Next() {
		e, err := scanEngagement(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO engagement_messages(id,engagement_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.EngagementID, m.AuthorID, m.Body, m.CreatedAt)
	return err
}

func (r Repo) ListMessages(ctx context.Context, engagementID string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,engagement_id,author_id,body,created_at FROM engagement_messages WHERE engagement_id=? ORDER BY created_at ASC, id ASC`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.EngagementID, &m.AuthorID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO engagement_notes(id,engagement_id,author_id,title,content,is_private,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.EngagementID, n.AuthorID, nullableStringPtr(n.Title), n.Content, n.IsPrivate, n.CreatedAt, n.UpdatedAt)
	return err
}

// ListNotesVisibleTo returns shared notes plus the viewer's own private ones.
func (r Repo) ListNotesVisibleTo(ctx context.Context, engagementID, viewerID string) ([]domain.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,engagement_id,author_id,title,content,is_private,created_at,updated_at
FROM engagement_notes WHERE engagement_id=? AND (is_private=0 OR author_id=?) ORDER BY created_at ASC, id ASC`, engagementID, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		var title sql.NullString
		if err := rows.Scan(&n.ID, &n.EngagementID, &n.AuthorID, &title, &n.Content, &n.IsPrivate, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		if title.Valid {
			n.Title = &title.String
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// ListSharedNotes returns only non-private notes, in insertion order.
func (r Repo) ListSharedNotes(ctx context.Context, engagementID string) ([]domain.Note, error) {
	return r.ListNotesVisibleTo(ctx, engagementID, "")
}

// InsertChecklistItem appends an item at the next free position within the
// caller's transaction.
func (r Repo) InsertChecklistItem(ctx context.Context, tx *sql.Tx, item domain.ChecklistItem) (domain.ChecklistItem, error) {
	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(ord)+1,0) FROM checklist_items WHERE engagement_id=?`, item.EngagementID).Scan(&next); err != nil {
		return item, err
	}
	item.Order = next
	_, err := tx.ExecContext(ctx, `INSERT INTO checklist_items(id,engagement_id,text,is_completed,ord,created_at) VALUES (?,?,?,?,?,?)`,
		item.ID, item.EngagementID, item.Text, item.IsCompleted, item.Order, item.CreatedAt)
	return item, err
}

func (r Repo) GetChecklistItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.ChecklistItem, error) {
	var item domain.ChecklistItem
	err := tx.QueryRowContext(ctx, `SELECT id,engagement_id,text,is_completed,ord,created_at FROM checklist_items WHERE id=?`, id).
		Scan(&item.ID, &item.EngagementID, &item.Text, &item.IsCompleted, &item.Order, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return item, ErrNotFound
	}
	return item, err
}

func (r Repo) SetChecklistItemCompleted(ctx context.Context, tx *sql.Tx, id string, completed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE checklist_items SET is_completed=? WHERE id=?`, completed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListChecklistItems(ctx context.Context, engagementID string) ([]domain.ChecklistItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,engagement_id,text,is_completed,ord,created_at FROM checklist_items WHERE engagement_id=? ORDER BY ord ASC`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		var item domain.ChecklistItem
		if err := rows.Scan(&item.ID, &item.EngagementID, &item.Text, &item.IsCompleted, &item.Order, &item.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}
