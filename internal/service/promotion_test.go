package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/engine"
	"github.com/utafrali/MarketGo/internal/usage"
	apperrors "github.com/utafrali/MarketGo/pkg/errors"
)

type staticStore struct {
	campaigns []domain.Campaign
}

func (s staticStore) FindActiveApplicable(context.Context, time.Time, []string, []string) ([]domain.Campaign, error) {
	return s.campaigns, nil
}

// cappedCampaign has one 10% product rule on "milk" limited to max units.
func cappedCampaign(max int64) domain.Campaign {
	return domain.Campaign{
		ID:        "c-1",
		Status:    domain.StatusActive,
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(time.Hour),
		Rules: []domain.Rule{{
			ID:               "r-1",
			CampaignID:       "c-1",
			Kind:             domain.KindPercentProduct,
			Priority:         1,
			MaxTotalQuantity: usage.Int64(max),
			StartDate:        now.Add(-time.Hour),
			EndDate:          now.Add(time.Hour),
			Details: []domain.RuleDetail{{
				ConditionProductUnitID: "milk",
				Value:                  decimal.NewFromInt(10),
			}},
		}},
	}
}

func milkCart(qty int64) domain.Cart {
	return domain.Cart{
		CustomerID: "cust-1",
		Lines: []domain.CartLine{{
			ProductUnitID: "milk", CategoryID: "dairy", Quantity: qty, UnitPrice: decimal.NewFromInt(10),
		}},
	}
}

type promotionFixture struct {
	svc     *PromotionService
	limiter *usage.MemoryLimiter
	res     *mockReservationRepository
	events  *mockEvents
}

func newPromotionFixture(campaigns ...domain.Campaign) *promotionFixture {
	resolver := engine.NewResolver(staticStore{campaigns: campaigns}, nil, newTestLogger(),
		engine.Options{Precision: 2, Now: fixedClock})
	f := &promotionFixture{
		limiter: usage.NewMemoryLimiter(),
		res:     &mockReservationRepository{},
		events:  &mockEvents{},
	}
	f.svc = NewPromotionService(resolver, f.limiter, f.res, f.events, 15*time.Minute, newTestLogger())
	f.svc.now = fixedClock
	return f
}

func (f *promotionFixture) nothingToRelease(checkoutID string) {
	f.res.On("Transition", mock.Anything, checkoutID, domain.ReservationStatusActive, domain.ReservationStatusReleased).
		Return([]domain.UsageReservation{}, nil).Once()
}

func TestPreview_DoesNotReserve(t *testing.T) {
	f := newPromotionFixture(cappedCampaign(5))

	result, err := f.svc.Preview(context.Background(), milkCart(3))
	require.NoError(t, err)

	assert.True(t, result.Lines[0].DiscountAmount.Equal(decimal.NewFromInt(3)))
	assert.Zero(t, f.limiter.Used("r-1"))
	f.res.AssertExpectations(t)
}

func TestPreview_HonorsCurrentUsage(t *testing.T) {
	f := newPromotionFixture(cappedCampaign(5))
	_, err := f.limiter.Reserve(context.Background(), usage.Key{RuleID: "r-1"}, usage.Limits{MaxTotal: usage.Int64(5)}, 4)
	require.NoError(t, err)

	result, err := f.svc.Preview(context.Background(), milkCart(3))
	require.NoError(t, err)

	assert.True(t, result.Lines[0].DiscountAmount.Equal(decimal.NewFromInt(1)), "only one unit left under the cap")
	assert.Equal(t, int64(4), f.limiter.Used("r-1"))
}

func TestPreview_RejectsInvalidCart(t *testing.T) {
	f := newPromotionFixture()

	_, err := f.svc.Preview(context.Background(), domain.Cart{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestApply_ReservesAndRecords(t *testing.T) {
	f := newPromotionFixture(cappedCampaign(5))
	f.nothingToRelease("chk-1")
	f.res.On("Create", mock.Anything, mock.MatchedBy(func(res []domain.UsageReservation) bool {
		return len(res) == 1 && res[0].RuleID == "r-1" && res[0].Quantity == 3 &&
			res[0].CustomerID == "cust-1" && res[0].CheckoutID == "chk-1" &&
			res[0].Status == domain.ReservationStatusActive &&
			res[0].ExpiresAt.Equal(now.Add(15*time.Minute))
	})).Return(nil).Once()
	f.events.On("PublishPromotionReserved", mock.Anything, "chk-1", "cust-1", mock.Anything, mock.Anything).Return(nil).Once()

	app, err := f.svc.Apply(context.Background(), "chk-1", milkCart(3))
	require.NoError(t, err)

	assert.Equal(t, "chk-1", app.CheckoutID)
	require.Len(t, app.Reservations, 1)
	assert.Equal(t, now.Add(15*time.Minute), app.ExpiresAt)
	assert.True(t, app.Result.Total.Equal(decimal.NewFromInt(27)))
	assert.Equal(t, int64(3), f.limiter.Used("r-1"))
	f.res.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestApply_NoPromotionsSkipsEvent(t *testing.T) {
	f := newPromotionFixture()
	f.nothingToRelease("chk-1")
	f.res.On("Create", mock.Anything, []domain.UsageReservation{}).Return(nil).Once()

	app, err := f.svc.Apply(context.Background(), "chk-1", milkCart(1))
	require.NoError(t, err)

	assert.Empty(t, app.Reservations)
	f.events.AssertNotCalled(t, "PublishPromotionReserved", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_ReapplyReleasesPreviousHold(t *testing.T) {
	f := newPromotionFixture(cappedCampaign(5))
	key := usage.Key{RuleID: "r-1", CustomerID: "cust-1"}
	_, err := f.limiter.Reserve(context.Background(), key, usage.Limits{MaxTotal: usage.Int64(5)}, 4)
	require.NoError(t, err)

	previous := []domain.UsageReservation{{
		ID: "res-old", CheckoutID: "chk-1", RuleID: "r-1", CustomerID: "cust-1", Quantity: 4,
		Status: domain.ReservationStatusReleased,
	}}
	f.res.On("Transition", mock.Anything, "chk-1", domain.ReservationStatusActive, domain.ReservationStatusReleased).
		Return(previous, nil).Once()
	f.events.On("PublishPromotionReleased", mock.Anything, "chk-1", ReasonReapplied, previous).Return(nil).Once()
	f.res.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.events.On("PublishPromotionReserved", mock.Anything, "chk-1", "cust-1", mock.Anything, mock.Anything).Return(nil).Once()

	app, err := f.svc.Apply(context.Background(), "chk-1", milkCart(5))
	require.NoError(t, err)

	assert.Equal(t, int64(5), app.Reservations[0].Quantity, "released units are available again")
	assert.Equal(t, int64(5), f.limiter.Used("r-1"))
	f.res.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestApply_LedgerFailureRollsBackUsage(t *testing.T) {
	f := newPromotionFixture(cappedCampaign(5))
	f.nothingToRelease("chk-1")
	f.res.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	_, err := f.svc.Apply(context.Background(), "chk-1", milkCart(3))
	require.Error(t, err)

	assert.Contains(t, err.Error(), "record reservations")
	assert.Zero(t, f.limiter.Used("r-1"))
	f.events.AssertNotCalled(t, "PublishPromotionReserved", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_PublishFailureIsNotFatal(t *testing.T) {
	f := newPromotionFixture(cappedCampaign(5))
	f.nothingToRelease("chk-1")
	f.res.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.events.On("PublishPromotionReserved", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker down")).Once()

	_, err := f.svc.Apply(context.Background(), "chk-1", milkCart(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.limiter.Used("r-1"))
}

func TestApply_RequiresCheckoutID(t *testing.T) {
	f := newPromotionFixture()

	_, err := f.svc.Apply(context.Background(), "", milkCart(1))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "checkout_id")
}

func TestCommit(t *testing.T) {
	f := newPromotionFixture()
	confirmed := []domain.UsageReservation{{ID: "res-1", CheckoutID: "chk-1", RuleID: "r-1", Quantity: 2}}
	f.res.On("Transition", mock.Anything, "chk-1", domain.ReservationStatusActive, domain.ReservationStatusConfirmed).
		Return(confirmed, nil).Once()
	f.events.On("PublishPromotionCommitted", mock.Anything, "chk-1", confirmed).Return(nil).Once()

	require.NoError(t, f.svc.Commit(context.Background(), "chk-1"))
	f.res.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestCommit_NothingActiveIsNoop(t *testing.T) {
	f := newPromotionFixture()
	f.res.On("Transition", mock.Anything, "chk-1", domain.ReservationStatusActive, domain.ReservationStatusConfirmed).
		Return([]domain.UsageReservation{}, nil).Once()

	require.NoError(t, f.svc.Commit(context.Background(), "chk-1"))
	f.events.AssertNotCalled(t, "PublishPromotionCommitted", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelease_ReturnsUnits(t *testing.T) {
	f := newPromotionFixture()
	key := usage.Key{RuleID: "r-1", CustomerID: "cust-1"}
	_, err := f.limiter.Reserve(context.Background(), key, usage.Limits{}, 3)
	require.NoError(t, err)

	released := []domain.UsageReservation{{ID: "res-1", CheckoutID: "chk-1", RuleID: "r-1", CustomerID: "cust-1", Quantity: 3}}
	f.res.On("Transition", mock.Anything, "chk-1", domain.ReservationStatusActive, domain.ReservationStatusReleased).
		Return(released, nil).Once()
	f.events.On("PublishPromotionReleased", mock.Anything, "chk-1", ReasonReleased, released).Return(nil).Once()

	require.NoError(t, f.svc.Release(context.Background(), "chk-1"))
	assert.Zero(t, f.limiter.Used("r-1"))
	f.events.AssertExpectations(t)
}

func TestRelease_StoreError(t *testing.T) {
	f := newPromotionFixture()
	f.res.On("Transition", mock.Anything, "chk-1", domain.ReservationStatusActive, domain.ReservationStatusReleased).
		Return([]domain.UsageReservation{}, errors.New("db down")).Once()

	assert.Error(t, f.svc.Release(context.Background(), "chk-1"))
}

func TestExpireReservations(t *testing.T) {
	f := newPromotionFixture()
	ctx := context.Background()
	_, _ = f.limiter.Reserve(ctx, usage.Key{RuleID: "r-1", CustomerID: "a"}, usage.Limits{}, 2)
	_, _ = f.limiter.Reserve(ctx, usage.Key{RuleID: "r-1", CustomerID: "b"}, usage.Limits{}, 1)

	claimed := []domain.UsageReservation{
		{ID: "res-1", CheckoutID: "chk-a", RuleID: "r-1", CustomerID: "a", Quantity: 2},
		{ID: "res-2", CheckoutID: "chk-b", RuleID: "r-1", CustomerID: "b", Quantity: 1},
	}
	f.res.On("ClaimExpired", mock.Anything, now, expiryBatchSize).Return(claimed, nil).Once()
	f.events.On("PublishPromotionReleased", mock.Anything, "chk-a", ReasonExpired, claimed[:1]).Return(nil).Once()
	f.events.On("PublishPromotionReleased", mock.Anything, "chk-b", ReasonExpired, claimed[1:]).Return(nil).Once()

	n, err := f.svc.ExpireReservations(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Zero(t, f.limiter.Used("r-1"))
	f.res.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestExpireReservations_Nothing(t *testing.T) {
	f := newPromotionFixture()
	f.res.On("ClaimExpired", mock.Anything, now, expiryBatchSize).Return([]domain.UsageReservation{}, nil).Once()

	n, err := f.svc.ExpireReservations(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
