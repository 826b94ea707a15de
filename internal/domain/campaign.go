package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxFixedValue guards fixed-amount details against data-entry errors.
var MaxFixedValue = decimal.NewFromInt(10_000_000)

// MaxQuantity bounds line quantities and BUY_X_GET_Y buy and gift counts so
// gift arithmetic stays far inside int64.
const MaxQuantity = 1_000_000

// Campaign is a named promotion program with a validity window, a lifecycle
// status and an ordered set of rules.
type Campaign struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      CampaignStatus `json:"status"`
	StartDate   time.Time      `json:"start_date"`
	EndDate     time.Time      `json:"end_date"`
	Rules       []Rule         `json:"rules"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ActiveAt reports whether the campaign is ACTIVE and now falls in
// [StartDate, EndDate).
func (c *Campaign) ActiveAt(now time.Time) bool {
	return c.Status == StatusActive && within(now, c.StartDate, c.EndDate)
}

// NormalizedName is the key used for name uniqueness.
func (c *Campaign) NormalizedName() string {
	return NormalizeName(c.Name)
}

func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Rule is one discount mechanism within a campaign.
type Rule struct {
	ID               string        `json:"id"`
	CampaignID       string        `json:"campaign_id"`
	Kind             PromotionKind `json:"kind"`
	Priority         int           `json:"priority"`
	MaxTotalQuantity *int64        `json:"max_total_quantity,omitempty"`
	MaxPerCustomer   *int64        `json:"max_per_customer,omitempty"`
	StartDate        time.Time     `json:"start_date"`
	EndDate          time.Time     `json:"end_date"`
	Details          []RuleDetail  `json:"details"`
	CreatedAt        time.Time     `json:"created_at"`
}

func (r *Rule) ActiveAt(now time.Time) bool {
	return within(now, r.StartDate, r.EndDate)
}

// RuleDetail holds the eligibility condition and effect parameters of a rule.
// Product and gift kinds set exactly one of ConditionProductUnitID and
// ConditionCategoryID; order kinds set neither.
type RuleDetail struct {
	ID                     string              `json:"id"`
	RuleID                 string              `json:"rule_id"`
	ConditionProductUnitID string              `json:"condition_product_unit_id,omitempty"`
	ConditionCategoryID    string              `json:"condition_category_id,omitempty"`
	MinOrderValue          decimal.NullDecimal `json:"min_order_value"`
	Value                  decimal.Decimal     `json:"value"`
	MaxDiscountValue       decimal.NullDecimal `json:"max_discount_value"`
	ConditionBuyQuantity   int64               `json:"condition_buy_quantity,omitempty"`
	GiftQuantity           int64               `json:"gift_quantity,omitempty"`
	GiftProductUnitID      string              `json:"gift_product_unit_id,omitempty"`
}

// ConditionCount is the number of product conditions set on the detail.
func (d *RuleDetail) ConditionCount() int {
	n := 0
	if d.ConditionProductUnitID != "" {
		n++
	}
	if d.ConditionCategoryID != "" {
		n++
	}
	return n
}

func within(now, start, end time.Time) bool {
	return !now.Before(start) && now.Before(end)
}
