package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fitness-entitlements/internal/model"
)

type OffertRepo struct {
	db *sqlx.DB
}

func NewOffertRepo(db *sqlx.DB) *OffertRepo { return &OffertRepo{db: db} }

const offertColumns = `id, trainer_id, title, description, price, currency, duration_in_days, includes_bookings, booking_quota, is_active, created_at`

func (r *OffertRepo) Create(ctx context.Context, o model.TrainerOffert) error {
	const q = `INSERT INTO trainer_offerts (` + offertColumns + `) VALUES (:id, :trainer_id, :title, :description, :price, :currency, :duration_in_days, :includes_bookings, :booking_quota, :is_active, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, o)
	return err
}

func (r *OffertRepo) GetByID(ctx context.Context, id string) (model.TrainerOffert, error) {
	const q = `SELECT ` + offertColumns + ` FROM trainer_offerts WHERE id = ?`
	var o model.TrainerOffert
	if err := r.db.GetContext(ctx, &o, q, id); err != nil {
		return model.TrainerOffert{}, notFound(err)
	}
	return o, nil
}

// Update overwrites the mutable columns of o by id.
func (r *OffertRepo) Update(ctx context.Context, o model.TrainerOffert) error {
	const q = `UPDATE trainer_offerts SET title = :title, description = :description, price = :price, currency = :currency, duration_in_days = :duration_in_days, includes_bookings = :includes_bookings, booking_quota = :booking_quota, is_active = :is_active WHERE id = :id`
	if err := expectOne(r.db.NamedExecContext(ctx, q, o)); err != nil {
		if errors.Is(err, ErrStale) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r *OffertRepo) ListByTrainer(ctx context.Context, trainerID string, activeOnly bool) ([]model.TrainerOffert, error) {
	q := `SELECT ` + offertColumns + ` FROM trainer_offerts WHERE trainer_id = ?`
	if activeOnly {
		q += ` AND is_active = TRUE`
	}
	q += ` ORDER BY created_at DESC`
	out := []model.TrainerOffert{}
	if err := r.db.SelectContext(ctx, &out, q, trainerID); err != nil {
		return nil, err
	}
	return out, nil
}
