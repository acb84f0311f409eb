package repo

import (
	"context"
	"database/sql"

	"expertline/internal/domain"
)

const bookingCols = `id,request_id,client_id,consultant_id,scheduled_start,duration_mins,status,created_at`

func scanBooking(scan func(dest ...any) error) (domain.Booking, error) {
	var b domain.Booking
	var requestID, start sql.NullString
	err := scan(&b.ID, &requestID, &b.ClientID, &b.ConsultantID, &start, &b.DurationMins, &b.Status, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if requestID.Valid {
		b.RequestID = &requestID.String
	}
	if start.Valid {
		b.ScheduledStart = &start.String
	}
	return b, nil
}

func (r Repo) InsertBooking(ctx context.Context, tx *sql.Tx, b domain.Booking) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bookings(`+bookingCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, nullableStringPtr(b.RequestID), b.ClientID, b.ConsultantID, nullableStringPtr(b.ScheduledStart),
		b.DurationMins, b.Status, b.CreatedAt)
	return err
}

func (r Repo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	return scanBooking(r.DB.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=?`, id).Scan)
}

func (r Repo) GetBookingTx(ctx context.Context, tx *sql.Tx, id string) (domain.Booking, error) {
	return scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=?`, id).Scan)
}

func (r Repo) UpdateBookingStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE bookings SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListBookingsForActor(ctx context.Context, actorID string) ([]domain.Booking, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE client_id=? OR consultant_id=? ORDER BY created_at DESC, id DESC`, actorID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

const paymentCols = `id,booking_id,status,amount_cents,currency,provider_ref,created_at,updated_at`

func scanPayment(scan func(dest ...any) error) (domain.Payment, error) {
	var p domain.Payment
	var ref sql.NullString
	err := scan(&p.ID, &p.BookingID, &p.Status, &p.AmountCents, &p.Currency, &ref, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if ref.Valid {
		p.ProviderRef = &ref.String
	}
	return p, nil
}

func (r Repo) InsertPayment(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payments(`+paymentCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.BookingID, p.Status, p.AmountCents, p.Currency, nullableStringPtr(p.ProviderRef), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPaymentByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	return scanPayment(r.DB.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE booking_id=?`, bookingID).Scan)
}

func (r Repo) GetPaymentByBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) (domain.Payment, error) {
	return scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE booking_id=?`, bookingID).Scan)
}

func (r Repo) UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, id, status string, providerRef *string, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE payments SET status=?, provider_ref=COALESCE(?, provider_ref), updated_at=? WHERE id=?`,
		status, nullableStringPtr(providerRef), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
