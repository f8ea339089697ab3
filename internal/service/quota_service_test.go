package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/repository"
)

func newQuotaService(db *memDB) *QuotaService {
	s := NewQuotaService(memQuotas{db}, discardLogger())
	s.now = fixedClock(t0)
	return s
}

func TestQuotaService_Generate(t *testing.T) {
	db := newMemDB()
	svc := newQuotaService(db)

	q, err := svc.Generate(context.Background(), "u1", "p1", 10, t0, t0.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, 10, q.Total)
	assert.Equal(t, 10, q.Remaining)
	assert.Equal(t, "p1", q.PaymentID)

	_, err = svc.Generate(context.Background(), "u1", "p1", 10, t0, t0.AddDate(0, 0, 30))
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.True(t, model.HasCode(err, model.CodeAlreadyProvisioned))
	assert.Len(t, db.quotas, 1)
}

func TestQuotaService_GenerateInvalid(t *testing.T) {
	svc := newQuotaService(newMemDB())

	_, err := svc.Generate(context.Background(), "u1", "p1", 0, t0, t0.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, model.ErrInvalidState)

	_, err = svc.Generate(context.Background(), "u1", "p1", 3, t0, t0.Add(-time.Hour))
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

// racyQuotas hides existing rows from the lookup so only the unique key
// catches the second insert.
type racyQuotas struct{ memQuotas }

func (racyQuotas) GetByPaymentID(context.Context, string) (model.BookingQuota, error) {
	return model.BookingQuota{}, repository.ErrNotFound
}

func TestQuotaService_GenerateDuplicateKey(t *testing.T) {
	db := newMemDB()
	svc := NewQuotaService(racyQuotas{memQuotas{db}}, discardLogger())

	_, err := svc.Generate(context.Background(), "u1", "p1", 5, t0, t0.AddDate(0, 0, 7))
	require.NoError(t, err)
	_, err = svc.Generate(context.Background(), "u1", "p1", 5, t0, t0.AddDate(0, 0, 7))
	assert.True(t, model.HasCode(err, model.CodeAlreadyProvisioned))
}

func TestQuotaService_ListAndGet(t *testing.T) {
	db := newMemDB()
	db.quotas["q1"] = model.BookingQuota{ID: "q1", UserID: "u1", Total: 5, Remaining: 5, ValidFrom: t0.Add(-time.Hour), ValidUntil: t0.Add(time.Hour), PaymentID: "p1"}
	db.quotas["q2"] = model.BookingQuota{ID: "q2", UserID: "u1", Total: 5, Remaining: 0, ValidFrom: t0.Add(-time.Hour), ValidUntil: t0.Add(time.Hour), PaymentID: "p2"}
	svc := newQuotaService(db)

	all, err := svc.ListByUser(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	valid, err := svc.ListByUser(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, "q1", valid[0].ID)

	_, err = svc.Get(context.Background(), "q1", model.Actor{UserID: "u2"})
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	_, err = svc.Get(context.Background(), "missing", model.Actor{UserID: "u1"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
