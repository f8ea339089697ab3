package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

// OutboxRepo stores events next to the state change that produced them.
type OutboxRepo struct {
	db *sqlx.DB
}

func NewOutboxRepo(db *sqlx.DB) *OutboxRepo { return &OutboxRepo{db: db} }

type outboxRow struct {
	ID        string    `db:"id"`
	Pattern   string    `db:"pattern"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// InsertTx writes msgs inside tx.
func (r *OutboxRepo) InsertTx(ctx context.Context, tx sqlx.ExecerContext, msgs ...queue.Message) error {
	return insertOutbox(ctx, tx, msgs...)
}

func insertOutbox(ctx context.Context, tx sqlx.ExecerContext, msgs ...queue.Message) error {
	const q = `INSERT INTO outbox_events (id, pattern, payload, attempts, created_at) VALUES (?, ?, ?, 0, ?)`
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, q, m.ID, m.Pattern, []byte(m.Payload), m.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// FetchPending returns unpublished events oldest first.
func (r *OutboxRepo) FetchPending(ctx context.Context, limit int) ([]queue.Message, error) {
	const q = `SELECT id, pattern, payload, created_at FROM outbox_events WHERE published_at IS NULL ORDER BY created_at, id LIMIT ?`
	var rows []outboxRow
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, err
	}
	out := make([]queue.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, queue.Message{ID: row.ID, Pattern: row.Pattern, Payload: row.Payload, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE outbox_events SET published_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, at.UTC(), id)
	return err
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := cause.Error()
	if len(msg) > 512 {
		msg = msg[:512]
	}
	const q = `UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, msg, id)
	return err
}
