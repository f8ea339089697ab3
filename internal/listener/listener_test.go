package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type generateCall struct {
	userID, paymentID string
	total             int
	from, until       time.Time
}

type fakeQuotas struct {
	calls []generateCall
	err   error
}

func (f *fakeQuotas) Generate(_ context.Context, userID, paymentID string, total int, from, until time.Time) (model.BookingQuota, error) {
	f.calls = append(f.calls, generateCall{userID, paymentID, total, from, until})
	return model.BookingQuota{}, f.err
}

type fakeSubs struct {
	offerts []string
	err     error
}

func (f *fakeSubs) CreateFromPayment(_ context.Context, _, offertID, _ string) (model.TrainerSubscription, error) {
	f.offerts = append(f.offerts, offertID)
	return model.TrainerSubscription{}, f.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func delivery(t *testing.T, pattern string, payload any) queue.Delivery {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Delivery{MessageID: "m1", Pattern: pattern, Body: body}
}

func statusEvent(status, purpose string, meta map[string]any) queue.PaymentStatusChangedEvent {
	return queue.PaymentStatusChangedEvent{PaymentID: "p1", UserID: "u1", GymID: "g1", Status: status, Purpose: purpose, Metadata: meta}
}

func TestPaymentCompleted_Handle(t *testing.T) {
	provisioned := model.NewError(model.ErrInvalidState, model.CodeAlreadyProvisioned, "already")

	tests := []struct {
		name        string
		event       any
		quotaErr    error
		subErr      error
		wantErr     bool
		recoverable bool
		wantQuotas  int
		wantSubs    int
	}{
		{
			name:  "not completed is ignored",
			event: statusEvent("failed", "booking_quota", map[string]any{"quotaTotal": 5, "quotaValidDays": 30}),
		},
		{
			name:       "booking quota",
			event:      statusEvent("completed", "booking_quota", map[string]any{"quotaTotal": 5, "quotaValidDays": 30}),
			wantQuotas: 1,
		},
		{
			name:       "already provisioned is acked",
			event:      statusEvent("completed", "booking_quota", map[string]any{"quotaTotal": 5, "quotaValidDays": 30}),
			quotaErr:   provisioned,
			wantQuotas: 1,
		},
		{
			name:        "transient failure is retried",
			event:       statusEvent("completed", "booking_quota", map[string]any{"quotaTotal": 5, "quotaValidDays": 30}),
			quotaErr:    errors.New("db down"),
			wantErr:     true,
			recoverable: true,
			wantQuotas:  1,
		},
		{
			name:    "quota metadata missing",
			event:   statusEvent("completed", "booking_quota", map[string]any{"quotaTotal": 5}),
			wantErr: true,
		},
		{
			name:     "trainer subscription",
			event:    statusEvent("completed", "trainer_subscription", map[string]any{"offertId": "o1"}),
			wantSubs: 1,
		},
		{
			name:     "inactive offer is permanent",
			event:    statusEvent("completed", "trainer_subscription", map[string]any{"offertId": "o1"}),
			subErr:   model.NewError(model.ErrInvalidState, model.CodeOffertInactive, "inactive"),
			wantErr:  true,
			wantSubs: 1,
		},
		{
			name:    "offert id missing",
			event:   statusEvent("completed", "trainer_subscription", map[string]any{}),
			wantErr: true,
		},
		{
			name:    "unknown purpose",
			event:   statusEvent("completed", "", nil),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quotas := &fakeQuotas{err: tt.quotaErr}
			subs := &fakeSubs{err: tt.subErr}
			l := NewPaymentCompleted(quotas, subs, discard())
			l.now = func() time.Time { return t0 }

			err := l.Handle(context.Background(), delivery(t, queue.PatternPaymentStatusChanged, tt.event))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.recoverable, retry.IsRecoverable(err))
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, quotas.calls, tt.wantQuotas)
			assert.Len(t, subs.offerts, tt.wantSubs)
		})
	}
}

func TestPaymentCompleted_QuotaWindow(t *testing.T) {
	quotas := &fakeQuotas{}
	l := NewPaymentCompleted(quotas, &fakeSubs{}, discard())
	l.now = func() time.Time { return t0 }

	ev := statusEvent("completed", "booking_quota", map[string]any{"quotaTotal": "10", "quotaValidDays": 15})
	require.NoError(t, l.Handle(context.Background(), delivery(t, queue.PatternPaymentStatusChanged, ev)))

	require.Len(t, quotas.calls, 1)
	c := quotas.calls[0]
	assert.Equal(t, "u1", c.userID)
	assert.Equal(t, "p1", c.paymentID)
	assert.Equal(t, 10, c.total)
	assert.Equal(t, t0, c.from)
	assert.Equal(t, t0.AddDate(0, 0, 15), c.until)
}

func TestPaymentCompleted_MalformedBody(t *testing.T) {
	l := NewPaymentCompleted(&fakeQuotas{}, &fakeSubs{}, discard())
	err := l.Handle(context.Background(), queue.Delivery{Pattern: queue.PatternPaymentStatusChanged, Body: []byte("{nope")})
	require.Error(t, err)
	assert.False(t, retry.IsRecoverable(err))
}

func TestSubscriptionQuota_Handle(t *testing.T) {
	eight := 8
	zero := 0
	ev := queue.SubscriptionCreatedEvent{
		SubscriptionID: "s1", UserID: "u1", OffertID: "o1", PaymentID: "p1",
		BookingQuota: &eight, ValidFrom: t0, ValidUntil: t0.AddDate(0, 0, 30),
	}

	t.Run("grants bundled quota", func(t *testing.T) {
		quotas := &fakeQuotas{}
		l := NewSubscriptionQuota(quotas, discard())
		require.NoError(t, l.Handle(context.Background(), delivery(t, queue.PatternSubscriptionCreated, ev)))
		require.Len(t, quotas.calls, 1)
		assert.Equal(t, generateCall{"u1", "p1", 8, t0, t0.AddDate(0, 0, 30)}, quotas.calls[0])
	})
	t.Run("no bundled quota", func(t *testing.T) {
		quotas := &fakeQuotas{}
		for _, q := range []*int{nil, &zero} {
			e := ev
			e.BookingQuota = q
			require.NoError(t, NewSubscriptionQuota(quotas, discard()).Handle(context.Background(), delivery(t, queue.PatternSubscriptionCreated, e)))
		}
		assert.Empty(t, quotas.calls)
	})
	t.Run("already provisioned is acked", func(t *testing.T) {
		quotas := &fakeQuotas{err: model.NewError(model.ErrInvalidState, model.CodeAlreadyProvisioned, "already")}
		assert.NoError(t, NewSubscriptionQuota(quotas, discard()).Handle(context.Background(), delivery(t, queue.PatternSubscriptionCreated, ev)))
	})
	t.Run("missing payment id is permanent", func(t *testing.T) {
		e := ev
		e.PaymentID = ""
		err := NewSubscriptionQuota(&fakeQuotas{}, discard()).Handle(context.Background(), delivery(t, queue.PatternSubscriptionCreated, e))
		require.Error(t, err)
		assert.False(t, retry.IsRecoverable(err))
	})
}

func TestBookingAudit_Handle(t *testing.T) {
	var buf bytes.Buffer
	l := NewBookingAudit(slog.New(slog.NewJSONHandler(&buf, nil)))
	trainer := "t1"
	left := 3

	ev := queue.BookingEvent{BookingID: "b1", UserID: "u1", TrainerID: &trainer, GymID: "g1", QuotaID: "q1", Date: t0, Status: "pending", Remaining: &left}
	require.NoError(t, l.Handle(context.Background(), delivery(t, queue.PatternBookingCreated, ev)))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "booking event", line["msg"])
	assert.Equal(t, "booking.created", line["event"])
	assert.Equal(t, "b1", line["booking_id"])
	assert.Equal(t, "t1", line["trainer_id"])
	assert.Equal(t, float64(3), line["remaining"])
	assert.Equal(t, "booking-audit", line["component"])

	err := l.Handle(context.Background(), queue.Delivery{Pattern: queue.PatternBookingCancelled, Body: []byte("[]")})
	assert.False(t, retry.IsRecoverable(err))
}

func TestBindings(t *testing.T) {
	b := NewPaymentCompleted(&fakeQuotas{}, &fakeSubs{}, discard()).Binding()
	assert.Equal(t, QueuePaymentStatus, b.Queue)
	assert.Equal(t, []string{queue.PatternPaymentStatusChanged}, b.Patterns)
	assert.Equal(t, []string{queue.PatternBookingAny}, NewBookingAudit(discard()).Binding().Patterns)
	assert.Equal(t, QueueSubscriptionQuota, NewSubscriptionQuota(&fakeQuotas{}, discard()).Binding().Queue)
}
