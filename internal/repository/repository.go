package repository

import (
	"context"
	"time"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/pkg/pagination"
)

// CampaignFilter defines filter criteria for listing campaigns.
type CampaignFilter struct {
	Status *domain.CampaignStatus
	pagination.Params
}

// CampaignRepository persists campaigns together with their rules and details.
type CampaignRepository interface {
	// Create inserts the campaign, its rules and their details atomically.
	Create(ctx context.Context, campaign *domain.Campaign) error

	// GetByID returns the campaign with every rule attached.
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns without rules, newest first, with the total count.
	List(ctx context.Context, filter CampaignFilter) ([]domain.Campaign, int, error)

	// UpdateStatus moves a campaign from one status to another. It fails with
	// a Conflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus, at time.Time) error

	// Delete removes a campaign whose stored status is deletable.
	Delete(ctx context.Context, id string) error

	// FindActiveApplicable returns ACTIVE campaigns live at now that have at
	// least one rule live at now touching one of the products or categories,
	// or an order-level rule.
	FindActiveApplicable(ctx context.Context, now time.Time, productUnitIDs, categoryIDs []string) ([]domain.Campaign, error)

	CountByStatus(ctx context.Context, status domain.CampaignStatus) (int, error)

	// ListNames returns every campaign name for uniqueness checks.
	ListNames(ctx context.Context) ([]string, error)

	// ListDue returns non-terminal campaigns whose start or end has passed,
	// without rules.
	ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// ReservationRepository is the ledger of usage held by checkouts.
type ReservationRepository interface {
	// Create inserts reservations in one transaction.
	Create(ctx context.Context, reservations []domain.UsageReservation) error

	ListByCheckout(ctx context.Context, checkoutID string) ([]domain.UsageReservation, error)

	// Transition moves every reservation of the checkout in status from to
	// status to, returning the rows it changed. A second call changes nothing.
	Transition(ctx context.Context, checkoutID, from, to string) ([]domain.UsageReservation, error)

	// ClaimExpired marks up to limit active reservations whose expiry is
	// before now as expired and returns them. Concurrent sweepers never claim
	// the same row.
	ClaimExpired(ctx context.Context, now time.Time, limit int) ([]domain.UsageReservation, error)
}
