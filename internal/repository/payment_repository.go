package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

// PaymentRepo persists payments. Rows are never deleted.
type PaymentRepo struct {
	db *sqlx.DB
}

func NewPaymentRepo(db *sqlx.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, user_id, gym_id, amount, currency, provider, status, provider_ref, metadata, created_at, updated_at`

// Create inserts p and its events in one transaction.
func (r *PaymentRepo) Create(ctx context.Context, p model.Payment, events ...queue.Message) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const q = `INSERT INTO payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, q,
			p.ID, p.UserID, p.GymID, p.Amount, p.Currency, p.Provider, p.Status,
			p.ProviderRef, p.Metadata, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicate
			}
			return err
		}
		return insertOutbox(ctx, tx, events...)
	})
}

func (r *PaymentRepo) GetByID(ctx context.Context, id string) (model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	var p model.Payment
	if err := r.db.GetContext(ctx, &p, q, id); err != nil {
		return model.Payment{}, notFound(err)
	}
	return p, nil
}

// UpdateStatus persists next only while the row still has status from, and
// writes events in the same transaction. ErrStale means another writer moved
// the payment first.
func (r *PaymentRepo) UpdateStatus(ctx context.Context, next model.Payment, from model.PaymentStatus, events ...queue.Message) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const q = `UPDATE payments SET status = ?, provider_ref = ?, metadata = ?, updated_at = ? WHERE id = ? AND status = ?`
		if err := expectOne(tx.ExecContext(ctx, q, next.Status, next.ProviderRef, next.Metadata, next.UpdatedAt, next.ID, from)); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, events...)
	})
}

// SetProviderRef records the provider's reference on a pending payment.
func (r *PaymentRepo) SetProviderRef(ctx context.Context, id, ref string, now time.Time) error {
	const q = `UPDATE payments SET provider_ref = ?, updated_at = ? WHERE id = ? AND status = ?`
	return expectOne(r.db.ExecContext(ctx, q, ref, now, id, model.PaymentPending))
}

// List returns one page of payments matching f and the total match count.
func (r *PaymentRepo) List(ctx context.Context, f model.PaymentFilter) ([]model.Payment, int, error) {
	f = f.Normalize()
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC())
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM payments`+cond, args...); err != nil {
		return nil, 0, err
	}
	items := []model.Payment{}
	if total == 0 {
		return items, 0, nil
	}
	q := `SELECT ` + paymentColumns + ` FROM payments` + cond + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &items, q, append(args, f.Limit, f.Offset())...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
