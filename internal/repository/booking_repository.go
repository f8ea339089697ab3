package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

// BookingRepo reads bookings and moves them between statuses that do not
// touch the quota. Creation and cancellation go through LedgerRepo.
type BookingRepo struct {
	db *sqlx.DB
}

func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, trainer_id, gym_id, session_date, status, quota_id, created_at`

func (r *BookingRepo) GetByID(ctx context.Context, id string) (model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	var b model.Booking
	if err := r.db.GetContext(ctx, &b, q, id); err != nil {
		return model.Booking{}, notFound(err)
	}
	return b, nil
}

// List filters by the first non-empty dimension of f.
func (r *BookingRepo) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	var col, arg string
	switch {
	case f.UserID != "":
		col, arg = "user_id", f.UserID
	case f.TrainerID != "":
		col, arg = "trainer_id", f.TrainerID
	case f.GymID != "":
		col, arg = "gym_id", f.GymID
	default:
		return nil, errors.New("booking filter is empty")
	}
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + col + ` = ? ORDER BY session_date DESC`
	out := []model.Booking{}
	if err := r.db.SelectContext(ctx, &out, q, arg); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus persists next.Status while the row still has status from.
func (r *BookingRepo) UpdateStatus(ctx context.Context, next model.Booking, from model.BookingStatus, events ...queue.Message) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const q = `UPDATE bookings SET status = ? WHERE id = ? AND status = ?`
		if err := expectOne(tx.ExecContext(ctx, q, next.Status, next.ID, from)); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, events...)
	})
}
