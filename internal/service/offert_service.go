package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/model"
)

type OffertInput struct {
	Title            string
	Description      string
	Price            decimal.Decimal
	Currency         string
	DurationInDays   int
	IncludesBookings bool
	BookingQuota     *int
}

// OffertService manages the trainer offer catalog.
type OffertService struct {
	offerts OffertStore
	log     *slog.Logger
	now     func() time.Time
}

func NewOffertService(offerts OffertStore, log *slog.Logger) *OffertService {
	return &OffertService{offerts: offerts, log: log, now: time.Now}
}

func (s *OffertService) Create(ctx context.Context, trainerID string, in OffertInput) (model.TrainerOffert, error) {
	o, err := model.NewTrainerOffert(trainerID, in.Title, in.Description, in.Price, in.Currency,
		in.DurationInDays, in.IncludesBookings, in.BookingQuota, s.now())
	if err != nil {
		return model.TrainerOffert{}, err
	}
	if err := s.offerts.Create(ctx, o); err != nil {
		return model.TrainerOffert{}, err
	}
	logger.FromContextOr(ctx, s.log).Info("trainer offert created", slog.String("offert_id", o.ID), slog.String("trainer_id", trainerID))
	return o, nil
}

func (s *OffertService) Get(ctx context.Context, id string) (model.TrainerOffert, error) {
	o, err := s.offerts.GetByID(ctx, id)
	if err != nil {
		return model.TrainerOffert{}, notFoundAs(err, "trainer offert not found")
	}
	return o, nil
}

func (s *OffertService) List(ctx context.Context, trainerID string, activeOnly bool) ([]model.TrainerOffert, error) {
	if trainerID == "" {
		return nil, invalidInput("trainerId is required")
	}
	return s.offerts.ListByTrainer(ctx, trainerID, activeOnly)
}

func (s *OffertService) Update(ctx context.Context, id, trainerID string, patch model.OffertPatch) (model.TrainerOffert, error) {
	return s.mutate(ctx, id, trainerID, func(o model.TrainerOffert) (model.TrainerOffert, error) { return o.Update(patch) })
}

func (s *OffertService) Activate(ctx context.Context, id, trainerID string) (model.TrainerOffert, error) {
	return s.mutate(ctx, id, trainerID, func(o model.TrainerOffert) (model.TrainerOffert, error) { return o.Activate(), nil })
}

func (s *OffertService) Deactivate(ctx context.Context, id, trainerID string) (model.TrainerOffert, error) {
	return s.mutate(ctx, id, trainerID, func(o model.TrainerOffert) (model.TrainerOffert, error) { return o.Deactivate(), nil })
}

// mutate loads the offer, checks ownership, applies fn and persists by id.
func (s *OffertService) mutate(ctx context.Context, id, trainerID string, fn func(model.TrainerOffert) (model.TrainerOffert, error)) (model.TrainerOffert, error) {
	o, err := s.offerts.GetByID(ctx, id)
	if err != nil {
		return model.TrainerOffert{}, notFoundAs(err, "trainer offert not found")
	}
	if o.TrainerID != trainerID {
		return model.TrainerOffert{}, unauthorized("offert belongs to another trainer")
	}
	next, err := fn(o)
	if err != nil {
		return model.TrainerOffert{}, err
	}
	if err := s.offerts.Update(ctx, next); err != nil {
		return model.TrainerOffert{}, notFoundAs(err, "trainer offert not found")
	}
	return next, nil
}
