package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/MarketGo/internal/domain"
)

// --- Request DTOs ---

type CartLineRequest struct {
	ProductUnitID string          `json:"product_unit_id" validate:"required,max=64"`
	CategoryID    string          `json:"category_id" validate:"omitempty,max=64"`
	Quantity      int64           `json:"quantity" validate:"gt=0,lte=1000000"`
	UnitPrice     decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

// CartRequest is the body of POST /api/v1/promotions/preview.
type CartRequest struct {
	CustomerID string            `json:"customer_id" validate:"omitempty,max=64"`
	Lines      []CartLineRequest `json:"lines" validate:"required,min=1,max=500,dive"`
}

func (r *CartRequest) toDomain() domain.Cart {
	cart := domain.Cart{
		CustomerID: r.CustomerID,
		Lines:      make([]domain.CartLine, len(r.Lines)),
	}
	for i, l := range r.Lines {
		cart.Lines[i] = domain.CartLine{
			ProductUnitID: l.ProductUnitID,
			CategoryID:    l.CategoryID,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
		}
	}
	return cart
}

// ApplyRequest is the body of POST /api/v1/promotions/apply.
type ApplyRequest struct {
	CheckoutID string `json:"checkout_id" validate:"required,max=64"`
	CartRequest
}

// CheckoutRequest is the body of the commit and release endpoints.
type CheckoutRequest struct {
	CheckoutID string `json:"checkout_id" validate:"required,max=64"`
}

// CreateCampaignRequest is the body of POST /api/v1/campaigns. Rule windows
// default to the campaign window when omitted.
type CreateCampaignRequest struct {
	Name        string        `json:"name" validate:"required,min=1,max=255"`
	Description string        `json:"description" validate:"max=2000"`
	Status      string        `json:"status" validate:"omitempty,oneof=UPCOMING ACTIVE PAUSED EXPIRED"`
	StartDate   time.Time     `json:"start_date" validate:"required"`
	EndDate     time.Time     `json:"end_date" validate:"required"`
	Rules       []RuleRequest `json:"rules" validate:"required,min=1,dive"`
}

type RuleRequest struct {
	Kind             string          `json:"kind" validate:"required,oneof=PERCENT_ORDER PERCENT_PRODUCT FIXED_ORDER FIXED_PRODUCT BUY_X_GET_Y"`
	Priority         int             `json:"priority" validate:"gte=0"`
	MaxTotalQuantity *int64          `json:"max_total_quantity"`
	MaxPerCustomer   *int64          `json:"max_per_customer"`
	StartDate        *time.Time      `json:"start_date"`
	EndDate          *time.Time      `json:"end_date"`
	Details          []DetailRequest `json:"details" validate:"required,min=1,dive"`
}

type DetailRequest struct {
	ConditionProductUnitID string           `json:"condition_product_unit_id" validate:"omitempty,max=64"`
	ConditionCategoryID    string           `json:"condition_category_id" validate:"omitempty,max=64"`
	MinOrderValue          *decimal.Decimal `json:"min_order_value"`
	Value                  decimal.Decimal  `json:"value"`
	MaxDiscountValue       *decimal.Decimal `json:"max_discount_value"`
	ConditionBuyQuantity   int64            `json:"condition_buy_quantity" validate:"gte=0,lte=1000000"`
	GiftQuantity           int64            `json:"gift_quantity" validate:"gte=0,lte=1000000"`
	GiftProductUnitID      string           `json:"gift_product_unit_id" validate:"omitempty,max=64"`
}

func (r *CreateCampaignRequest) toRules() []domain.Rule {
	rules := make([]domain.Rule, len(r.Rules))
	for i, rr := range r.Rules {
		rule := domain.Rule{
			Kind:             domain.PromotionKind(rr.Kind),
			Priority:         rr.Priority,
			MaxTotalQuantity: rr.MaxTotalQuantity,
			MaxPerCustomer:   rr.MaxPerCustomer,
			StartDate:        r.StartDate,
			EndDate:          r.EndDate,
			Details:          make([]domain.RuleDetail, len(rr.Details)),
		}
		if rr.StartDate != nil {
			rule.StartDate = *rr.StartDate
		}
		if rr.EndDate != nil {
			rule.EndDate = *rr.EndDate
		}
		for j, d := range rr.Details {
			rule.Details[j] = domain.RuleDetail{
				ConditionProductUnitID: d.ConditionProductUnitID,
				ConditionCategoryID:    d.ConditionCategoryID,
				MinOrderValue:          nullDecimal(d.MinOrderValue),
				Value:                  d.Value,
				MaxDiscountValue:       nullDecimal(d.MaxDiscountValue),
				ConditionBuyQuantity:   d.ConditionBuyQuantity,
				GiftQuantity:           d.GiftQuantity,
				GiftProductUnitID:      d.GiftProductUnitID,
			}
		}
		rules[i] = rule
	}
	return rules
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// --- Response DTOs ---

// ApplyResponse is returned by the apply endpoint.
type ApplyResponse struct {
	CheckoutID     string        `json:"checkout_id"`
	Result         domain.Result `json:"result"`
	TotalDiscount  string        `json:"total_discount"`
	ReservationIDs []string      `json:"reservation_ids"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// PreviewResponse adds the summed discount to the evaluation result.
type PreviewResponse struct {
	domain.Result
	TotalDiscount string `json:"total_discount"`
}
