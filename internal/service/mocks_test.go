package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/repository"
)

var now = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fixedClock() time.Time { return now }

// --- campaign repository ---

type mockCampaignRepository struct {
	mock.Mock
}

func (m *mockCampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Campaign), args.Int(1), args.Error(2)
}

func (m *mockCampaignRepository) UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus, at time.Time) error {
	return m.Called(ctx, id, from, to, at).Error(0)
}

func (m *mockCampaignRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCampaignRepository) FindActiveApplicable(ctx context.Context, at time.Time, productUnitIDs, categoryIDs []string) ([]domain.Campaign, error) {
	args := m.Called(ctx, at, productUnitIDs, categoryIDs)
	return args.Get(0).([]domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) CountByStatus(ctx context.Context, status domain.CampaignStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

func (m *mockCampaignRepository) ListNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockCampaignRepository) ListDue(ctx context.Context, at time.Time) ([]domain.Campaign, error) {
	args := m.Called(ctx, at)
	return args.Get(0).([]domain.Campaign), args.Error(1)
}

// --- reservation repository ---

type mockReservationRepository struct {
	mock.Mock
}

func (m *mockReservationRepository) Create(ctx context.Context, res []domain.UsageReservation) error {
	return m.Called(ctx, res).Error(0)
}

func (m *mockReservationRepository) ListByCheckout(ctx context.Context, checkoutID string) ([]domain.UsageReservation, error) {
	args := m.Called(ctx, checkoutID)
	return args.Get(0).([]domain.UsageReservation), args.Error(1)
}

func (m *mockReservationRepository) Transition(ctx context.Context, checkoutID, from, to string) ([]domain.UsageReservation, error) {
	args := m.Called(ctx, checkoutID, from, to)
	return args.Get(0).([]domain.UsageReservation), args.Error(1)
}

func (m *mockReservationRepository) ClaimExpired(ctx context.Context, at time.Time, limit int) ([]domain.UsageReservation, error) {
	args := m.Called(ctx, at, limit)
	return args.Get(0).([]domain.UsageReservation), args.Error(1)
}

// --- events ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishCampaignCreated(ctx context.Context, c *domain.Campaign) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockEvents) PublishCampaignStatusChanged(ctx context.Context, c *domain.Campaign, from, to domain.CampaignStatus, automatic bool) error {
	return m.Called(ctx, c, from, to, automatic).Error(0)
}

func (m *mockEvents) PublishCampaignDeleted(ctx context.Context, c *domain.Campaign) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockEvents) PublishPromotionReserved(ctx context.Context, checkoutID, customerID string, total decimal.Decimal, res []domain.UsageReservation) error {
	return m.Called(ctx, checkoutID, customerID, total, res).Error(0)
}

func (m *mockEvents) PublishPromotionCommitted(ctx context.Context, checkoutID string, res []domain.UsageReservation) error {
	return m.Called(ctx, checkoutID, res).Error(0)
}

func (m *mockEvents) PublishPromotionReleased(ctx context.Context, checkoutID, reason string, res []domain.UsageReservation) error {
	return m.Called(ctx, checkoutID, reason, res).Error(0)
}
