package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fitness-entitlements/internal/model"
)

// QuotaRepo persists booking quotas. payment_id is unique, which is what
// makes provisioning idempotent.
type QuotaRepo struct {
	db *sqlx.DB
}

func NewQuotaRepo(db *sqlx.DB) *QuotaRepo { return &QuotaRepo{db: db} }

const quotaColumns = `id, user_id, total, remaining, valid_from, valid_until, payment_id, created_at`

func (r *QuotaRepo) Create(ctx context.Context, q model.BookingQuota) error {
	const stmt = `INSERT INTO booking_quotas (` + quotaColumns + `) VALUES (:id, :user_id, :total, :remaining, :valid_from, :valid_until, :payment_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, stmt, q); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *QuotaRepo) GetByID(ctx context.Context, id string) (model.BookingQuota, error) {
	return r.getOne(ctx, `SELECT `+quotaColumns+` FROM booking_quotas WHERE id = ?`, id)
}

func (r *QuotaRepo) GetByPaymentID(ctx context.Context, paymentID string) (model.BookingQuota, error) {
	return r.getOne(ctx, `SELECT `+quotaColumns+` FROM booking_quotas WHERE payment_id = ?`, paymentID)
}

func (r *QuotaRepo) getOne(ctx context.Context, q string, arg any) (model.BookingQuota, error) {
	var out model.BookingQuota
	if err := r.db.GetContext(ctx, &out, q, arg); err != nil {
		return model.BookingQuota{}, notFound(err)
	}
	return out, nil
}

// ListByUser returns the user's quotas, newest first. With validAt set only
// quotas usable at that instant are returned.
func (r *QuotaRepo) ListByUser(ctx context.Context, userID string, validAt *time.Time) ([]model.BookingQuota, error) {
	out := []model.BookingQuota{}
	var err error
	if validAt == nil {
		const q = `SELECT ` + quotaColumns + ` FROM booking_quotas WHERE user_id = ? ORDER BY created_at DESC`
		err = r.db.SelectContext(ctx, &out, q, userID)
	} else {
		const q = `SELECT ` + quotaColumns + ` FROM booking_quotas WHERE user_id = ? AND remaining > 0 AND valid_from <= ? AND valid_until >= ? ORDER BY valid_until`
		at := validAt.UTC()
		err = r.db.SelectContext(ctx, &out, q, userID, at, at)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
