package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/provider"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
	"github.com/iliyamo/fitness-entitlements/internal/repository"
)

// memDB is an in-memory stand-in for MySQL. Conditional writes compare the
// stored value under one mutex, which is enough to observe lost races.
type memDB struct {
	mu       sync.Mutex
	payments map[string]model.Payment
	quotas   map[string]model.BookingQuota
	bookings map[string]model.Booking
	offerts  map[string]model.TrainerOffert
	subs     map[string]model.TrainerSubscription
	outbox   []queue.Message
}

func newMemDB() *memDB {
	return &memDB{
		payments: map[string]model.Payment{},
		quotas:   map[string]model.BookingQuota{},
		bookings: map[string]model.Booking{},
		offerts:  map[string]model.TrainerOffert{},
		subs:     map[string]model.TrainerSubscription{},
	}
}

func (db *memDB) events(pattern string) []queue.Message {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []queue.Message
	for _, m := range db.outbox {
		if m.Pattern == pattern {
			out = append(out, m)
		}
	}
	return out
}

func (db *memDB) quota(id string) model.BookingQuota {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.quotas[id]
}

type memPayments struct{ db *memDB }

func (s memPayments) Create(_ context.Context, p model.Payment, events ...queue.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.payments[p.ID]; ok {
		return repository.ErrDuplicate
	}
	s.db.payments[p.ID] = p
	s.db.outbox = append(s.db.outbox, events...)
	return nil
}

func (s memPayments) GetByID(_ context.Context, id string) (model.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.payments[id]
	if !ok {
		return model.Payment{}, repository.ErrNotFound
	}
	return p, nil
}

func (s memPayments) UpdateStatus(_ context.Context, next model.Payment, from model.PaymentStatus, events ...queue.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.payments[next.ID]
	if !ok || cur.Status != from {
		return repository.ErrStale
	}
	s.db.payments[next.ID] = next
	s.db.outbox = append(s.db.outbox, events...)
	return nil
}

func (s memPayments) SetProviderRef(_ context.Context, id, ref string, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.payments[id]
	if !ok || cur.Status != model.PaymentPending {
		return repository.ErrStale
	}
	cur.ProviderRef = &ref
	cur.UpdatedAt = now
	s.db.payments[id] = cur
	return nil
}

func (s memPayments) List(_ context.Context, f model.PaymentFilter) ([]model.Payment, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var all []model.Payment
	for _, p := range s.db.payments {
		if (f.UserID == "" || p.UserID == f.UserID) && (f.Status == "" || p.Status == f.Status) {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	start := f.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

type memQuotas struct{ db *memDB }

func (s memQuotas) Create(_ context.Context, q model.BookingQuota) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, cur := range s.db.quotas {
		if cur.PaymentID == q.PaymentID {
			return repository.ErrDuplicate
		}
	}
	s.db.quotas[q.ID] = q
	return nil
}

func (s memQuotas) GetByID(_ context.Context, id string) (model.BookingQuota, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	q, ok := s.db.quotas[id]
	if !ok {
		return model.BookingQuota{}, repository.ErrNotFound
	}
	return q, nil
}

func (s memQuotas) GetByPaymentID(_ context.Context, paymentID string) (model.BookingQuota, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, q := range s.db.quotas {
		if q.PaymentID == paymentID {
			return q, nil
		}
	}
	return model.BookingQuota{}, repository.ErrNotFound
}

func (s memQuotas) ListByUser(_ context.Context, userID string, validAt *time.Time) ([]model.BookingQuota, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []model.BookingQuota{}
	for _, q := range s.db.quotas {
		if q.UserID == userID && (validAt == nil || q.IsValid(*validAt)) {
			out = append(out, q)
		}
	}
	return out, nil
}

type memBookings struct{ db *memDB }

func (s memBookings) GetByID(_ context.Context, id string) (model.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return model.Booking{}, repository.ErrNotFound
	}
	return b, nil
}

func (s memBookings) List(_ context.Context, f model.BookingFilter) ([]model.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []model.Booking{}
	for _, b := range s.db.bookings {
		if (f.UserID != "" && b.UserID == f.UserID) || (f.TrainerID != "" && b.IsTrainer(f.TrainerID)) || (f.GymID != "" && b.GymID == f.GymID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s memBookings) UpdateStatus(_ context.Context, next model.Booking, from model.BookingStatus, events ...queue.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.bookings[next.ID]
	if !ok || cur.Status != from {
		return repository.ErrStale
	}
	s.db.bookings[next.ID] = next
	s.db.outbox = append(s.db.outbox, events...)
	return nil
}

type memLedger struct {
	db *memDB
	// beforeWrite runs outside the lock before each write, letting tests
	// interleave a competing writer.
	beforeWrite func()
}

func (s memLedger) ConsumeForBooking(_ context.Context, next model.BookingQuota, expected int, b model.Booking, ev queue.Message) error {
	if s.beforeWrite != nil {
		s.beforeWrite()
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.quotas[next.ID]
	if !ok || cur.Remaining != expected {
		return repository.ErrStale
	}
	s.db.quotas[next.ID] = next
	s.db.bookings[b.ID] = b
	s.db.outbox = append(s.db.outbox, ev)
	return nil
}

func (s memLedger) RefundForCancellation(_ context.Context, next model.Booking, from model.BookingStatus, q *model.BookingQuota, expected int, ev queue.Message) error {
	if s.beforeWrite != nil {
		s.beforeWrite()
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.bookings[next.ID]
	if !ok || cur.Status != from {
		return repository.ErrStale
	}
	if q != nil {
		cq, ok := s.db.quotas[q.ID]
		if !ok || cq.Remaining != expected {
			return repository.ErrStale
		}
		s.db.quotas[q.ID] = *q
	}
	s.db.bookings[next.ID] = next
	s.db.outbox = append(s.db.outbox, ev)
	return nil
}

type memOfferts struct{ db *memDB }

func (s memOfferts) Create(_ context.Context, o model.TrainerOffert) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.offerts[o.ID] = o
	return nil
}

func (s memOfferts) GetByID(_ context.Context, id string) (model.TrainerOffert, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.offerts[id]
	if !ok {
		return model.TrainerOffert{}, repository.ErrNotFound
	}
	return o, nil
}

func (s memOfferts) Update(_ context.Context, o model.TrainerOffert) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.offerts[o.ID]; !ok {
		return repository.ErrNotFound
	}
	s.db.offerts[o.ID] = o
	return nil
}

func (s memOfferts) ListByTrainer(_ context.Context, trainerID string, activeOnly bool) ([]model.TrainerOffert, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []model.TrainerOffert{}
	for _, o := range s.db.offerts {
		if o.TrainerID == trainerID && (!activeOnly || o.IsActive) {
			out = append(out, o)
		}
	}
	return out, nil
}

type memSubs struct{ db *memDB }

func (s memSubs) Create(_ context.Context, sub model.TrainerSubscription, events ...queue.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, cur := range s.db.subs {
		if cur.PaymentID == sub.PaymentID {
			return repository.ErrDuplicate
		}
	}
	s.db.subs[sub.ID] = sub
	s.db.outbox = append(s.db.outbox, events...)
	return nil
}

func (s memSubs) GetByID(_ context.Context, id string) (model.TrainerSubscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sub, ok := s.db.subs[id]
	if !ok {
		return model.TrainerSubscription{}, repository.ErrNotFound
	}
	return sub, nil
}

func (s memSubs) GetByPaymentID(_ context.Context, paymentID string) (model.TrainerSubscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, sub := range s.db.subs {
		if sub.PaymentID == paymentID {
			return sub, nil
		}
	}
	return model.TrainerSubscription{}, repository.ErrNotFound
}

func (s memSubs) ListByUser(_ context.Context, userID string, activeAt *time.Time) ([]model.TrainerSubscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []model.TrainerSubscription{}
	for _, sub := range s.db.subs {
		if sub.UserID == userID && (activeAt == nil || (sub.Status == model.SubscriptionActive && !sub.IsExpired(*activeAt))) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s memSubs) ListDue(_ context.Context, now time.Time, limit int) ([]model.TrainerSubscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []model.TrainerSubscription{}
	for _, sub := range s.db.subs {
		if sub.Status == model.SubscriptionActive && sub.ValidUntil.Before(now) && len(out) < limit {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s memSubs) UpdateStatus(_ context.Context, next model.TrainerSubscription, from model.SubscriptionStatus, events ...queue.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.subs[next.ID]
	if !ok || cur.Status != from {
		return repository.ErrStale
	}
	s.db.subs[next.ID] = next
	s.db.outbox = append(s.db.outbox, events...)
	return nil
}

type fakeGateway struct {
	intentErr error
	cancelErr error
	cancelled []string
}

func (g *fakeGateway) Name() string { return "sandbox" }

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, _ decimal.Decimal, _, paymentID string) (provider.Intent, error) {
	if g.intentErr != nil {
		return provider.Intent{}, g.intentErr
	}
	return provider.Intent{PaymentURL: "https://pay.test/" + paymentID, Reference: "ref-" + paymentID}, nil
}

func (g *fakeGateway) ParseWebhook(context.Context, provider.WebhookRequest) (provider.WebhookEvent, error) {
	return provider.WebhookEvent{}, provider.ErrIgnored
}

func (g *fakeGateway) CancelPayment(_ context.Context, ref string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, ref)
	return nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }
