package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/engine"
	"github.com/utafrali/MarketGo/internal/repository"
	"github.com/utafrali/MarketGo/internal/usage"
	apperrors "github.com/utafrali/MarketGo/pkg/errors"
	"github.com/utafrali/MarketGo/pkg/logger"
)

// Release reasons carried on promotion.released events.
const (
	ReasonReleased  = "released"
	ReasonExpired   = "expired"
	ReasonReapplied = "reapplied"
)

const expiryBatchSize = 100

// Application is the outcome of Apply.
type Application struct {
	CheckoutID   string                    `json:"checkout_id"`
	Result       domain.Result             `json:"result"`
	Reservations []domain.UsageReservation `json:"reservations"`
	ExpiresAt    time.Time                 `json:"expires_at"`
}

// PromotionService prices carts and manages the usage they reserve.
type PromotionService struct {
	resolver     Resolver
	limiter      usage.Backend
	reservations repository.ReservationRepository
	events       EventPublisher
	logger       *slog.Logger
	ttl          time.Duration
	now          func() time.Time
}

func NewPromotionService(
	resolver Resolver,
	limiter usage.Backend,
	reservations repository.ReservationRepository,
	events EventPublisher,
	reservationTTL time.Duration,
	logger *slog.Logger,
) *PromotionService {
	return &PromotionService{
		resolver:     resolver,
		limiter:      limiter,
		reservations: reservations,
		events:       events,
		logger:       logger,
		ttl:          reservationTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Preview evaluates cart without reserving usage. Caps are honored against
// the counters as they stand.
func (s *PromotionService) Preview(ctx context.Context, cart domain.Cart) (*domain.Result, error) {
	if err := cart.Validate(); err != nil {
		return nil, err
	}

	ev, err := s.resolver.Resolve(ctx, cart, usage.NewScratch(s.limiter))
	if err != nil {
		return nil, err
	}
	return &ev.Result, nil
}

// Apply evaluates cart reserving usage under checkoutID. Usage an earlier
// Apply of the same checkout still holds is released first, so re-applying
// an edited cart never double counts.
func (s *PromotionService) Apply(ctx context.Context, checkoutID string, cart domain.Cart) (*Application, error) {
	if checkoutID == "" {
		return nil, apperrors.InvalidFields(map[string]string{"checkout_id": "is required"})
	}
	if err := cart.Validate(); err != nil {
		return nil, err
	}
	ctx = logger.WithCheckoutID(ctx, checkoutID)

	if _, err := s.release(ctx, checkoutID, ReasonReapplied); err != nil {
		return nil, err
	}

	ev, err := s.resolver.Resolve(ctx, cart, s.limiter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	app := &Application{
		CheckoutID:   checkoutID,
		Result:       ev.Result,
		Reservations: make([]domain.UsageReservation, 0, len(ev.Grants)),
		ExpiresAt:    now.Add(s.ttl),
	}
	for _, g := range ev.Grants {
		app.Reservations = append(app.Reservations, domain.UsageReservation{
			ID:         uuid.NewString(),
			CheckoutID: checkoutID,
			RuleID:     g.Key.RuleID,
			CustomerID: g.Key.CustomerID,
			Quantity:   g.Quantity,
			Status:     domain.ReservationStatusActive,
			ExpiresAt:  app.ExpiresAt,
			CreatedAt:  now,
		})
	}

	if err := s.reservations.Create(ctx, app.Reservations); err != nil {
		s.releaseGrants(context.WithoutCancel(ctx), ev.Grants)
		return nil, fmt.Errorf("record reservations: %w", err)
	}
	reservationEvents.WithLabelValues("reserved").Add(float64(len(app.Reservations)))

	if len(app.Reservations) > 0 {
		if err := s.events.PublishPromotionReserved(ctx, checkoutID, cart.CustomerID,
			ev.Result.TotalDiscount(), app.Reservations); err != nil {
			s.logger.WarnContext(ctx, "failed to publish promotion.reserved", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "promotions applied",
		slog.String("checkout_id", checkoutID),
		slog.Int("reservations", len(app.Reservations)),
		slog.String("total_discount", ev.Result.TotalDiscount().String()),
	)
	return app, nil
}

// Commit makes a checkout's active reservations permanent. Committing a
// checkout with nothing active is a no-op.
func (s *PromotionService) Commit(ctx context.Context, checkoutID string) error {
	if checkoutID == "" {
		return apperrors.InvalidFields(map[string]string{"checkout_id": "is required"})
	}
	ctx = logger.WithCheckoutID(ctx, checkoutID)

	committed, err := s.reservations.Transition(ctx, checkoutID,
		domain.ReservationStatusActive, domain.ReservationStatusConfirmed)
	if err != nil {
		return err
	}
	if len(committed) == 0 {
		s.logger.InfoContext(ctx, "no active reservations to commit", slog.String("checkout_id", checkoutID))
		return nil
	}
	reservationEvents.WithLabelValues("committed").Add(float64(len(committed)))

	if err := s.events.PublishPromotionCommitted(ctx, checkoutID, committed); err != nil {
		s.logger.WarnContext(ctx, "failed to publish promotion.committed", slog.String("error", err.Error()))
	}
	return nil
}

// Release hands a checkout's active reservations back to the counters.
func (s *PromotionService) Release(ctx context.Context, checkoutID string) error {
	if checkoutID == "" {
		return apperrors.InvalidFields(map[string]string{"checkout_id": "is required"})
	}
	_, err := s.release(logger.WithCheckoutID(ctx, checkoutID), checkoutID, ReasonReleased)
	return err
}

// ExpireReservations releases active reservations past their TTL, in
// batches, and returns how many it released.
func (s *PromotionService) ExpireReservations(ctx context.Context) (int, error) {
	total := 0
	for {
		claimed, err := s.reservations.ClaimExpired(ctx, s.now(), expiryBatchSize)
		if err != nil {
			return total, err
		}
		if len(claimed) == 0 {
			return total, nil
		}

		byCheckout := map[string][]domain.UsageReservation{}
		var order []string
		for _, r := range claimed {
			if _, ok := byCheckout[r.CheckoutID]; !ok {
				order = append(order, r.CheckoutID)
			}
			byCheckout[r.CheckoutID] = append(byCheckout[r.CheckoutID], r)
		}

		var errs []error
		for _, checkoutID := range order {
			if err := s.giveBack(ctx, checkoutID, ReasonExpired, byCheckout[checkoutID]); err != nil {
				errs = append(errs, err)
			}
		}
		total += len(claimed)
		if err := errors.Join(errs...); err != nil {
			return total, err
		}
		if len(claimed) < expiryBatchSize {
			return total, nil
		}
	}
}

func (s *PromotionService) release(ctx context.Context, checkoutID, reason string) ([]domain.UsageReservation, error) {
	released, err := s.reservations.Transition(ctx, checkoutID,
		domain.ReservationStatusActive, domain.ReservationStatusReleased)
	if err != nil {
		return nil, err
	}
	if len(released) == 0 {
		return nil, nil
	}
	return released, s.giveBack(ctx, checkoutID, reason, released)
}

// giveBack returns the units of reservations already moved out of active.
func (s *PromotionService) giveBack(ctx context.Context, checkoutID, reason string, reservations []domain.UsageReservation) error {
	var errs []error
	for _, r := range reservations {
		key := usage.Key{RuleID: r.RuleID, CustomerID: r.CustomerID}
		if err := s.limiter.Release(ctx, key, r.Quantity); err != nil {
			s.logger.ErrorContext(ctx, "failed to release reserved usage",
				slog.String("reservation_id", r.ID),
				slog.String("rule_id", r.RuleID),
				slog.Int64("quantity", r.Quantity),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}

	outcome := "released"
	if reason == ReasonExpired {
		outcome = "expired"
	}
	reservationEvents.WithLabelValues(outcome).Add(float64(len(reservations)))

	if err := s.events.PublishPromotionReleased(ctx, checkoutID, reason, reservations); err != nil {
		s.logger.WarnContext(ctx, "failed to publish promotion.released", slog.String("error", err.Error()))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("release usage for checkout %s: %w", checkoutID, err)
	}
	return nil
}

func (s *PromotionService) releaseGrants(ctx context.Context, grants []engine.Grant) {
	for _, g := range grants {
		if err := s.limiter.Release(ctx, g.Key, g.Quantity); err != nil {
			s.logger.ErrorContext(ctx, "failed to roll back usage grant",
				slog.String("rule_id", g.Key.RuleID),
				slog.Int64("quantity", g.Quantity),
				slog.String("error", err.Error()),
			)
		}
	}
}
