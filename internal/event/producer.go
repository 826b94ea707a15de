package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/MarketGo/internal/domain"
	pkgkafka "github.com/utafrali/MarketGo/pkg/kafka"
	"github.com/utafrali/MarketGo/pkg/logger"
)

// Kafka topics produced by the promotion service.
var (
	TopicCampaignCreated       = pkgkafka.Topic("campaign", "created")
	TopicCampaignStatusChanged = pkgkafka.Topic("campaign", "status_changed")
	TopicCampaignDeleted       = pkgkafka.Topic("campaign", "deleted")
	TopicPromotionReserved     = pkgkafka.Topic("promotion", "reserved")
	TopicPromotionCommitted    = pkgkafka.Topic("promotion", "committed")
	TopicPromotionReleased     = pkgkafka.Topic("promotion", "released")
)

const (
	AggregateTypeCampaign = "campaign"
	AggregateTypeCheckout = "checkout"

	SourcePromotionService = "promotion-service"
)

type CampaignCreatedData struct {
	ID        string                `json:"id"`
	Code      string                `json:"code"`
	Name      string                `json:"name"`
	Status    domain.CampaignStatus `json:"status"`
	StartDate time.Time             `json:"start_date"`
	EndDate   time.Time             `json:"end_date"`
	RuleCount int                   `json:"rule_count"`
}

type CampaignStatusChangedData struct {
	ID        string                `json:"id"`
	Code      string                `json:"code"`
	From      domain.CampaignStatus `json:"from"`
	To        domain.CampaignStatus `json:"to"`
	Automatic bool                  `json:"automatic"`
}

type CampaignDeletedData struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// ReservationData is one rule's share of a checkout's reserved usage.
type ReservationData struct {
	ReservationID string `json:"reservation_id"`
	RuleID        string `json:"rule_id"`
	Quantity      int64  `json:"quantity"`
}

type PromotionReservedData struct {
	CheckoutID    string            `json:"checkout_id"`
	CustomerID    string            `json:"customer_id,omitempty"`
	TotalDiscount decimal.Decimal   `json:"total_discount"`
	ExpiresAt     time.Time         `json:"expires_at"`
	Reservations  []ReservationData `json:"reservations"`
}

type PromotionSettledData struct {
	CheckoutID   string            `json:"checkout_id"`
	Reason       string            `json:"reason,omitempty"`
	Reservations []ReservationData `json:"reservations"`
}

// Publisher is the part of pkgkafka.Producer the event producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes campaign and promotion events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) PublishCampaignCreated(ctx context.Context, c *domain.Campaign) error {
	return p.publish(ctx, TopicCampaignCreated, c.ID, AggregateTypeCampaign, CampaignCreatedData{
		ID:        c.ID,
		Code:      c.Code,
		Name:      c.Name,
		Status:    c.Status,
		StartDate: c.StartDate,
		EndDate:   c.EndDate,
		RuleCount: len(c.Rules),
	})
}

// PublishCampaignStatusChanged reports one lifecycle transition. automatic
// marks transitions made by the scheduled sweep.
func (p *Producer) PublishCampaignStatusChanged(ctx context.Context, c *domain.Campaign, from, to domain.CampaignStatus, automatic bool) error {
	return p.publish(ctx, TopicCampaignStatusChanged, c.ID, AggregateTypeCampaign, CampaignStatusChangedData{
		ID:        c.ID,
		Code:      c.Code,
		From:      from,
		To:        to,
		Automatic: automatic,
	})
}

func (p *Producer) PublishCampaignDeleted(ctx context.Context, c *domain.Campaign) error {
	return p.publish(ctx, TopicCampaignDeleted, c.ID, AggregateTypeCampaign, CampaignDeletedData{ID: c.ID, Code: c.Code})
}

func (p *Producer) PublishPromotionReserved(ctx context.Context, checkoutID, customerID string, totalDiscount decimal.Decimal, reservations []domain.UsageReservation) error {
	data := PromotionReservedData{
		CheckoutID:    checkoutID,
		CustomerID:    customerID,
		TotalDiscount: totalDiscount,
		Reservations:  reservationData(reservations),
	}
	if len(reservations) > 0 {
		data.ExpiresAt = reservations[0].ExpiresAt
	}
	return p.publish(ctx, TopicPromotionReserved, checkoutID, AggregateTypeCheckout, data)
}

func (p *Producer) PublishPromotionCommitted(ctx context.Context, checkoutID string, reservations []domain.UsageReservation) error {
	return p.publish(ctx, TopicPromotionCommitted, checkoutID, AggregateTypeCheckout, PromotionSettledData{
		CheckoutID:   checkoutID,
		Reservations: reservationData(reservations),
	})
}

// PublishPromotionReleased reports usage handed back for a checkout. reason is
// "released", "expired" or "reapplied".
func (p *Producer) PublishPromotionReleased(ctx context.Context, checkoutID, reason string, reservations []domain.UsageReservation) error {
	return p.publish(ctx, TopicPromotionReleased, checkoutID, AggregateTypeCheckout, PromotionSettledData{
		CheckoutID:   checkoutID,
		Reason:       reason,
		Reservations: reservationData(reservations),
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourcePromotionService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func reservationData(reservations []domain.UsageReservation) []ReservationData {
	out := make([]ReservationData, len(reservations))
	for i, r := range reservations {
		out[i] = ReservationData{ReservationID: r.ID, RuleID: r.RuleID, Quantity: r.Quantity}
	}
	return out
}
