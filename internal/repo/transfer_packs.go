package repo

import (
	"context"
	"database/sql"

	"expertline/internal/domain"
)

const packCols = `id,engagement_id,summary,key_decisions,runbook,next_steps,internalization_checklist,ai_generated,is_finalized,created_at,updated_at,finalized_at`

func scanPack(scan func(dest ...any) error) (domain.TransferPack, error) {
	var p domain.TransferPack
	var finalizedAt sql.NullString
	err := scan(&p.ID, &p.EngagementID, &p.Summary, &p.KeyDecisions, &p.Runbook, &p.NextSteps,
		&p.InternalizationChecklist, &p.AIGenerated, &p.IsFinalized, &p.CreatedAt, &p.UpdatedAt, &finalizedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if finalizedAt.Valid {
		p.FinalizedAt = &finalizedAt.String
	}
	return p, nil
}

func (r Repo) InsertTransferPack(ctx context.Context, tx *sql.Tx, p domain.TransferPack) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO transfer_packs(`+packCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.EngagementID, p.Summary, p.KeyDecisions, p.Runbook, p.NextSteps, p.InternalizationChecklist,
		p.AIGenerated, p.IsFinalized, p.CreatedAt, p.UpdatedAt, nullableStringPtr(p.FinalizedAt))
	return err
}

func (r Repo) GetTransferPackByEngagement(ctx context.Context, engagementID string) (domain.TransferPack, error) {
	return scanPack(r.DB.QueryRowContext(ctx, `SELECT `+packCols+` FROM transfer_packs WHERE engagement_id=?`, engagementID).Scan)
}

func (r Repo) GetTransferPackByEngagementTx(ctx context.Context, tx *sql.Tx, engagementID string) (domain.TransferPack, error) {
	return scanPack(tx.QueryRowContext(ctx, `SELECT `+packCols+` FROM transfer_packs WHERE engagement_id=?`, engagementID).Scan)
}

func (r Repo) UpdateTransferPack(ctx context.Context, tx *sql.Tx, p domain.TransferPack) error {
	res, err := tx.ExecContext(ctx, `UPDATE transfer_packs SET summary=?, key_decisions=?, runbook=?, next_steps=?, internalization_checklist=?, ai_generated=?, is_finalized=?, updated_at=?, finalized_at=? WHERE id=?`,
		p.Summary, p.KeyDecisions, p.Runbook, p.NextSteps, p.InternalizationChecklist,
		p.AIGenerated, p.IsFinalized, p.UpdatedAt, nullableStringPtr(p.FinalizedAt), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
