package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

// SubscriptionRepo persists trainer subscriptions; payment_id is unique.
type SubscriptionRepo struct {
	db *sqlx.DB
}

func NewSubscriptionRepo(db *sqlx.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

const subscriptionColumns = `id, user_id, offert_id, valid_from, valid_until, status, payment_id, created_at`

// Create inserts s and its events in one transaction.
func (r *SubscriptionRepo) Create(ctx context.Context, s model.TrainerSubscription, events ...queue.Message) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const q = `INSERT INTO trainer_subscriptions (` + subscriptionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, q, s.ID, s.UserID, s.OffertID, s.ValidFrom, s.ValidUntil, s.Status, s.PaymentID, s.CreatedAt); err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicate
			}
			return err
		}
		return insertOutbox(ctx, tx, events...)
	})
}

func (r *SubscriptionRepo) GetByID(ctx context.Context, id string) (model.TrainerSubscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM trainer_subscriptions WHERE id = ?`, id)
}

func (r *SubscriptionRepo) GetByPaymentID(ctx context.Context, paymentID string) (model.TrainerSubscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM trainer_subscriptions WHERE payment_id = ?`, paymentID)
}

func (r *SubscriptionRepo) getOne(ctx context.Context, q string, arg any) (model.TrainerSubscription, error) {
	var s model.TrainerSubscription
	if err := r.db.GetContext(ctx, &s, q, arg); err != nil {
		return model.TrainerSubscription{}, notFound(err)
	}
	return s, nil
}

// ListByUser returns the user's subscriptions; activeAt narrows to active
// ones still inside their window.
func (r *SubscriptionRepo) ListByUser(ctx context.Context, userID string, activeAt *time.Time) ([]model.TrainerSubscription, error) {
	out := []model.TrainerSubscription{}
	var err error
	if activeAt == nil {
		const q = `SELECT ` + subscriptionColumns + ` FROM trainer_subscriptions WHERE user_id = ? ORDER BY created_at DESC`
		err = r.db.SelectContext(ctx, &out, q, userID)
	} else {
		const q = `SELECT ` + subscriptionColumns + ` FROM trainer_subscriptions WHERE user_id = ? AND status = ? AND valid_until >= ? ORDER BY valid_until`
		err = r.db.SelectContext(ctx, &out, q, userID, model.SubscriptionActive, activeAt.UTC())
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDue returns active subscriptions whose window closed before now.
func (r *SubscriptionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]model.TrainerSubscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM trainer_subscriptions WHERE status = ? AND valid_until < ? ORDER BY valid_until LIMIT ?`
	out := []model.TrainerSubscription{}
	if err := r.db.SelectContext(ctx, &out, q, model.SubscriptionActive, now.UTC(), limit); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus persists next.Status while the row still has status from.
func (r *SubscriptionRepo) UpdateStatus(ctx context.Context, next model.TrainerSubscription, from model.SubscriptionStatus, events ...queue.Message) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const q = `UPDATE trainer_subscriptions SET status = ? WHERE id = ? AND status = ?`
		if err := expectOne(tx.ExecContext(ctx, q, next.Status, next.ID, from)); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, events...)
	})
}
