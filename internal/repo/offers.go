package repo

import (
	"context"
	"database/sql"

	"expertline/internal/domain"
)

const offerCols = `id,request_id,consultant_id,message,proposed_rate_cents,status,created_at,updated_at`

func scanOffer(scan func(dest ...any) error) (domain.Offer, error) {
	var o domain.Offer
	var message sql.NullString
	err := scan(&o.ID, &o.RequestID, &o.ConsultantID, &message, &o.ProposedRateCents, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if message.Valid {
		o.Message = &message.String
	}
	return o, nil
}

func (r Repo) InsertOffer(ctx context.Context, tx *sql.Tx, o domain.Offer) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO offers(`+offerCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		o.ID, o.RequestID, o.ConsultantID, nullableStringPtr(o.Message), o.ProposedRateCents, o.Status, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	return scanOffer(r.DB.QueryRowContext(ctx, `SELECT `+offerCols+` FROM offers WHERE id=?`, id).Scan)
}

func (r Repo) GetOfferTx(ctx context.Context, tx *sql.Tx, id string) (domain.Offer, error) {
	return scanOffer(tx.QueryRowContext(ctx, `SELECT `+offerCols+` FROM offers WHERE id=?`, id).Scan)
}

func (r Repo) UpdateOfferStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE offers SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeclineSiblingOffers declines every pending offer on the request except the
// accepted one. Returns the IDs of the offers that were declined.
func (r Repo) DeclineSiblingOffers(ctx context.Context, tx *sql.Tx, requestID, acceptedOfferID, updatedAt string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM offers WHERE request_id=? AND id != ? AND status=?`, requestID, acceptedOfferID, domain.OfferPending)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if _, err := tx.ExecContext(ctx, `UPDATE offers SET status=?, updated_at=? WHERE request_id=? AND id != ? AND status=?`,
		domain.OfferDeclined, updatedAt, requestID, acceptedOfferID, domain.OfferPending); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeclineOpenOffers declines every pending offer on the request, used when a
// request is cancelled.
func (r Repo) DeclineOpenOffers(ctx context.Context, tx *sql.Tx, requestID, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE offers SET status=?, updated_at=? WHERE request_id=? AND status=?`,
		domain.OfferDeclined, updatedAt, requestID, domain.OfferPending)
	return err
}

func (r Repo) ListOffersForRequest(ctx context.Context, requestID string) ([]domain.Offer, error) {
	return r.listOffers(ctx, `request_id=?`, requestID)
}

func (r Repo) ListOffersByConsultant(ctx context.Context, consultantID string) ([]domain.Offer, error) {
	return r.listOffers(ctx, `consultant_id=?`, consultantID)
}

func (r Repo) listOffers(ctx context.Context, clause string, arg any) ([]domain.Offer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+offerCols+` FROM offers WHERE `+clause+` ORDER BY created_at DESC, id DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// OfferExists reports whether the consultant already has an offer on the
// request, regardless of status.
func (r Repo) OfferExists(ctx context.Context, requestID, consultantID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM offers WHERE request_id=? AND consultant_id=?`, requestID, consultantID).Scan(&n)
	return n > 0, err
}
