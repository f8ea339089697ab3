package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

// LedgerRepo applies the writes that must move a quota and a booking
// together.
type LedgerRepo struct {
	db *sqlx.DB
}

func NewLedgerRepo(db *sqlx.DB) *LedgerRepo { return &LedgerRepo{db: db} }

const casQuota = `UPDATE booking_quotas SET remaining = ? WHERE id = ? AND remaining = ?`

// ConsumeForBooking stores the decremented quota, inserts the pending booking
// and its event. ErrStale when remaining is no longer expectedRemaining.
func (r *LedgerRepo) ConsumeForBooking(ctx context.Context, next model.BookingQuota, expectedRemaining int, b model.Booking, ev queue.Message) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := expectOne(tx.ExecContext(ctx, casQuota, next.Remaining, next.ID, expectedRemaining)); err != nil {
			return err
		}
		const ins = `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, ins, b.ID, b.UserID, b.TrainerID, b.GymID, b.Date, b.Status, b.QuotaID, b.CreatedAt); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, ev)
	})
}

// RefundForCancellation moves the booking out of fromStatus and, when quota
// is not nil, gives the unit back. Either conditional update losing its race
// rolls back both with ErrStale.
func (r *LedgerRepo) RefundForCancellation(ctx context.Context, next model.Booking, fromStatus model.BookingStatus, quota *model.BookingQuota, expectedRemaining int, ev queue.Message) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const upd = `UPDATE bookings SET status = ? WHERE id = ? AND status = ?`
		if err := expectOne(tx.ExecContext(ctx, upd, next.Status, next.ID, fromStatus)); err != nil {
			return err
		}
		if quota != nil {
			if err := expectOne(tx.ExecContext(ctx, casQuota, quota.Remaining, quota.ID, expectedRemaining)); err != nil {
				return err
			}
		}
		return insertOutbox(ctx, tx, ev)
	})
}
