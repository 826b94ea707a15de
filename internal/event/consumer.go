package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/MarketGo/pkg/kafka"
)

// Topics consumed from the order service.
var (
	TopicOrderConfirmed = pkgkafka.Topic("order", "confirmed")
	TopicOrderCanceled  = pkgkafka.Topic("order", "canceled")
)

// OrderEventData is the part of an order event the promotion service reads.
type OrderEventData struct {
	OrderID    string `json:"order_id"`
	CheckoutID string `json:"checkout_id"`
	Reason     string `json:"reason,omitempty"`
}

// Settler finalizes or gives back a checkout's reserved usage.
type Settler interface {
	Commit(ctx context.Context, checkoutID string) error
	Release(ctx context.Context, checkoutID string) error
}

// OrderHandler turns order outcomes into reservation commits and releases.
type OrderHandler struct {
	settler Settler
	logger  *slog.Logger
}

func NewOrderHandler(settler Settler, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{settler: settler, logger: logger}
}

// HandleOrderConfirmed commits the usage reserved for the order's checkout.
func (h *OrderHandler) HandleOrderConfirmed(ctx context.Context, event *pkgkafka.Event) error {
	data, err := h.decode(ctx, event)
	if err != nil || data.CheckoutID == "" {
		return err
	}
	if err := h.settler.Commit(ctx, data.CheckoutID); err != nil {
		return fmt.Errorf("commit checkout %s: %w", data.CheckoutID, err)
	}
	return nil
}

// HandleOrderCanceled releases the usage reserved for the order's checkout.
func (h *OrderHandler) HandleOrderCanceled(ctx context.Context, event *pkgkafka.Event) error {
	data, err := h.decode(ctx, event)
	if err != nil || data.CheckoutID == "" {
		return err
	}
	if err := h.settler.Release(ctx, data.CheckoutID); err != nil {
		return fmt.Errorf("release checkout %s: %w", data.CheckoutID, err)
	}
	return nil
}

func (h *OrderHandler) decode(ctx context.Context, event *pkgkafka.Event) (OrderEventData, error) {
	var data OrderEventData
	if err := event.UnmarshalData(&data); err != nil {
		return data, fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}
	if data.CheckoutID == "" {
		h.logger.WarnContext(ctx, "order event without checkout id, skipping",
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
			slog.String("order_id", data.OrderID),
		)
		return data, nil
	}

	h.logger.DebugContext(ctx, "order event received",
		slog.String("event_type", event.EventType),
		slog.String("order_id", data.OrderID),
		slog.String("checkout_id", data.CheckoutID),
	)
	return data, nil
}
