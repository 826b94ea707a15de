package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/engine"
	"github.com/utafrali/MarketGo/internal/usage"
)

// EventPublisher is satisfied by event.Producer.
type EventPublisher interface {
	PublishCampaignCreated(ctx context.Context, c *domain.Campaign) error
	PublishCampaignStatusChanged(ctx context.Context, c *domain.Campaign, from, to domain.CampaignStatus, automatic bool) error
	PublishCampaignDeleted(ctx context.Context, c *domain.Campaign) error
	PublishPromotionReserved(ctx context.Context, checkoutID, customerID string, totalDiscount decimal.Decimal, reservations []domain.UsageReservation) error
	PublishPromotionCommitted(ctx context.Context, checkoutID string, reservations []domain.UsageReservation) error
	PublishPromotionReleased(ctx context.Context, checkoutID, reason string, reservations []domain.UsageReservation) error
}

// Resolver is satisfied by engine.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, cart domain.Cart, limiter usage.Limiter) (*engine.Evaluation, error)
}
