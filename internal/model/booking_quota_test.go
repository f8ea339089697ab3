package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quotaAt(total, remaining int, now time.Time) BookingQuota {
	return BookingQuota{
		ID:         "q1",
		UserID:     "u1",
		Total:      total,
		Remaining:  remaining,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(24 * time.Hour),
		PaymentID:  "p1",
	}
}

func TestNewBookingQuota(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	q, err := NewBookingQuota("u1", 10, now, now.AddDate(0, 0, 30), "p1", now)
	require.NoError(t, err)
	assert.Equal(t, 10, q.Total)
	assert.Equal(t, 10, q.Remaining)
	assert.NotEmpty(t, q.ID)

	_, err = NewBookingQuota("u1", 0, now, now.AddDate(0, 0, 30), "p1", now)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = NewBookingQuota("u1", 5, now, now, "p1", now)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestBookingQuota_Consume(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		quota   BookingQuota
		at      time.Time
		want    int
		code    string
		message string
	}{
		{name: "decrements", quota: quotaAt(3, 3, now), at: now, want: 2},
		{name: "last unit", quota: quotaAt(3, 1, now), at: now, want: 0},
		{name: "exhausted", quota: quotaAt(3, 0, now), at: now, code: CodeQuotaExhausted, message: "no remaining quotas available"},
		{name: "expired", quota: quotaAt(3, 2, now), at: now.Add(48 * time.Hour), code: CodeQuotaExpired, message: "quota has expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.quota
			next, err := tt.quota.Consume(tt.at)
			assert.Equal(t, before, tt.quota)
			if tt.code != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidState))
				assert.Equal(t, tt.code, CodeOf(err))
				assert.Equal(t, tt.message, MessageOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, next.Remaining)
			assert.Equal(t, tt.quota.Total, next.Total)
		})
	}
}

func TestBookingQuota_Refund(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	next, err := quotaAt(3, 1, now).Refund()
	require.NoError(t, err)
	assert.Equal(t, 2, next.Remaining)

	_, err = quotaAt(3, 3, now).Refund()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, CodeQuotaFull, CodeOf(err))

	expired := quotaAt(3, 0, now)
	expired.ValidUntil = now.Add(-time.Minute)
	next, err = expired.Refund()
	require.NoError(t, err)
	assert.Equal(t, 1, next.Remaining)
}

func TestBookingQuota_ConsumeRefundRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	q := quotaAt(5, 4, now)

	consumed, err := q.Consume(now)
	require.NoError(t, err)
	back, err := consumed.Refund()
	require.NoError(t, err)
	assert.Equal(t, q, back)
}

func TestBookingQuota_IsValid(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	q := quotaAt(3, 1, now)

	assert.True(t, q.IsValid(now))
	assert.True(t, q.IsValid(q.ValidFrom))
	assert.True(t, q.IsValid(q.ValidUntil))
	assert.False(t, q.IsValid(q.ValidFrom.Add(-time.Second)))
	assert.False(t, q.IsValid(q.ValidUntil.Add(time.Second)))

	q.Remaining = 0
	assert.False(t, q.IsValid(now))
	assert.Equal(t, CodeQuotaExhausted, CodeOf(q.CheckUsable(now)))

	q.Remaining = 1
	assert.Equal(t, CodeQuotaNotStarted, CodeOf(q.CheckUsable(q.ValidFrom.Add(-time.Second))))
	assert.NoError(t, q.CheckUsable(now))
}

func TestBookingQuota_RemainingStaysInRange(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	q := quotaAt(2, 2, now)

	for i := 0; i < 5; i++ {
		if next, err := q.Consume(now); err == nil {
			q = next
		}
		assert.GreaterOrEqual(t, q.Remaining, 0)
	}
	for i := 0; i < 5; i++ {
		if next, err := q.Refund(); err == nil {
			q = next
		}
		assert.LessOrEqual(t, q.Remaining, q.Total)
	}
	assert.Equal(t, 2, q.Remaining)
}
