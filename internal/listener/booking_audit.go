package listener

import (
	"context"
	"log/slog"

	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

// BookingAudit writes one structured line per booking event.
type BookingAudit struct {
	log *slog.Logger
}

func NewBookingAudit(log *slog.Logger) *BookingAudit {
	return &BookingAudit{log: log.With(slog.String("component", "booking-audit"))}
}

func (l *BookingAudit) Binding() queue.Binding {
	return queue.Binding{
		Queue:    QueueBookingAudit,
		Patterns: []string{queue.PatternBookingAny},
		Handler:  l.Handle,
	}
}

func (l *BookingAudit) Handle(_ context.Context, d queue.Delivery) error {
	var ev queue.BookingEvent
	if err := decode(d, &ev); err != nil {
		return err
	}
	attrs := []any{
		slog.String("event", d.Pattern),
		slog.String("message_id", d.MessageID),
		slog.String("booking_id", ev.BookingID),
		slog.String("user_id", ev.UserID),
		slog.String("gym_id", ev.GymID),
		slog.String("quota_id", ev.QuotaID),
		slog.Time("date", ev.Date),
		slog.String("status", ev.Status),
	}
	if ev.TrainerID != nil {
		attrs = append(attrs, slog.String("trainer_id", *ev.TrainerID))
	}
	if ev.Remaining != nil {
		attrs = append(attrs, slog.Int("remaining", *ev.Remaining))
	}
	l.log.Info("booking event", attrs...)
	return nil
}
