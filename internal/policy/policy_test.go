package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/MarketGo/internal/domain"
	apperrors "github.com/utafrali/MarketGo/pkg/errors"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func i64(v int64) *int64 { return &v }

func validCampaign() *domain.Campaign {
	return &domain.Campaign{
		Name:      "Spring Dairy",
		Status:    domain.StatusUpcoming,
		StartDate: now.Add(time.Hour),
		EndDate:   now.Add(7 * 24 * time.Hour),
		Rules: []domain.Rule{
			{
				Kind:      domain.KindPercentProduct,
				Priority:  1,
				StartDate: now.Add(time.Hour),
				EndDate:   now.Add(48 * time.Hour),
				Details: []domain.RuleDetail{
					{ConditionCategoryID: "dairy", Value: decimal.NewFromInt(15)},
				},
			},
			{
				Kind:             domain.KindBuyXGetY,
				Priority:         2,
				MaxTotalQuantity: i64(100),
				MaxPerCustomer:   i64(2),
				StartDate:        now.Add(time.Hour),
				EndDate:          now.Add(48 * time.Hour),
				Details: []domain.RuleDetail{
					{ConditionProductUnitID: "milk-1l", ConditionBuyQuantity: 2, GiftQuantity: 1, GiftProductUnitID: "yogurt"},
				},
			},
		},
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	return appErr.Fields
}

func TestCheckCampaign_Valid(t *testing.T) {
	err := Checker{}.CheckCampaign(validCampaign(), NewSnapshot(now, 0, []string{"Autumn"}))
	assert.NoError(t, err)
}

func TestCheckCampaign_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *domain.Campaign)
		field  string
	}{
		{"missing name", func(c *domain.Campaign) { c.Name = "" }, "name"},
		{"end before start", func(c *domain.Campaign) { c.EndDate = c.StartDate }, "end_date"},
		{"already ended", func(c *domain.Campaign) {
			c.StartDate, c.EndDate = now.Add(-48*time.Hour), now.Add(-time.Hour)
		}, "end_date"},
		{"created expired", func(c *domain.Campaign) { c.Status = domain.StatusExpired }, "status"},
		{"unknown status", func(c *domain.Campaign) { c.Status = "DRAFT" }, "status"},
		{"no rules", func(c *domain.Campaign) { c.Rules = nil }, "rules"},
		{"duplicate priority", func(c *domain.Campaign) { c.Rules[1].Priority = 1 }, "rules[1].priority"},
		{"unknown kind", func(c *domain.Campaign) { c.Rules[0].Kind = "FREE_SHIPPING" }, "rules[0].kind"},
		{"rule window inverted", func(c *domain.Campaign) { c.Rules[0].EndDate = c.Rules[0].StartDate }, "rules[0].end_date"},
		{"rule window past", func(c *domain.Campaign) {
			c.Rules[0].StartDate, c.Rules[0].EndDate = now.Add(-2*time.Hour), now.Add(-time.Hour)
		}, "rules[0].end_date"},
		{"per customer above total", func(c *domain.Campaign) { c.Rules[1].MaxPerCustomer = i64(101) }, "rules[1].max_per_customer"},
		{"zero total cap", func(c *domain.Campaign) { c.Rules[1].MaxTotalQuantity = i64(0) }, "rules[1].max_total_quantity"},
		{"no details", func(c *domain.Campaign) { c.Rules[0].Details = nil }, "rules[0].details"},
		{"both conditions", func(c *domain.Campaign) { c.Rules[0].Details[0].ConditionProductUnitID = "milk-1l" }, "rules[0].details[0].condition"},
		{"neither condition", func(c *domain.Campaign) { c.Rules[0].Details[0].ConditionCategoryID = "" }, "rules[0].details[0].condition"},
		{"percent over 100", func(c *domain.Campaign) { c.Rules[0].Details[0].Value = decimal.NewFromInt(101) }, "rules[0].details[0].value"},
		{"percent zero", func(c *domain.Campaign) { c.Rules[0].Details[0].Value = decimal.Zero }, "rules[0].details[0].value"},
		{"zero max discount", func(c *domain.Campaign) {
			c.Rules[0].Details[0].MaxDiscountValue = decimal.NullDecimal{Valid: true}
		}, "rules[0].details[0].max_discount_value"},
		{"negative min order", func(c *domain.Campaign) {
			c.Rules[0].Details[0].MinOrderValue = decimal.NullDecimal{Decimal: decimal.NewFromInt(-1), Valid: true}
		}, "rules[0].details[0].min_order_value"},
		{"bxgy missing gift product", func(c *domain.Campaign) { c.Rules[1].Details[0].GiftProductUnitID = "" }, "rules[1].details[0].gift_product_unit_id"},
		{"bxgy zero buy", func(c *domain.Campaign) { c.Rules[1].Details[0].ConditionBuyQuantity = 0 }, "rules[1].details[0].condition_buy_quantity"},
		{"bxgy zero gift", func(c *domain.Campaign) { c.Rules[1].Details[0].GiftQuantity = 0 }, "rules[1].details[0].gift_quantity"},
		{"bxgy buy over ceiling", func(c *domain.Campaign) {
			c.Rules[1].Details[0].ConditionBuyQuantity = domain.MaxQuantity + 1
		}, "rules[1].details[0].condition_buy_quantity"},
		{"bxgy gift over ceiling", func(c *domain.Campaign) {
			c.Rules[1].Details[0].GiftQuantity = domain.MaxQuantity + 1
		}, "rules[1].details[0].gift_quantity"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validCampaign()
			tc.mutate(c)

			fields := fieldsOf(t, Checker{}.CheckCampaign(c, NewSnapshot(now, 0, nil)))
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestCheckCampaign_FixedValueCeiling(t *testing.T) {
	c := validCampaign()
	c.Rules[0].Kind = domain.KindFixedOrder
	c.Rules[0].Details[0] = domain.RuleDetail{Value: decimal.NewFromInt(10_000_000)}
	assert.NoError(t, Checker{}.CheckCampaign(c, NewSnapshot(now, 0, nil)))

	c.Rules[0].Details[0].Value = decimal.RequireFromString("10000000.01")
	fields := fieldsOf(t, Checker{}.CheckCampaign(c, NewSnapshot(now, 0, nil)))
	assert.Contains(t, fields, "rules[0].details[0].value")
}

func TestCheckCampaign_OrderDetailWithConditionRejected(t *testing.T) {
	c := validCampaign()
	c.Rules[0].Kind = domain.KindPercentOrder

	fields := fieldsOf(t, Checker{}.CheckCampaign(c, NewSnapshot(now, 0, nil)))
	assert.Equal(t, "order-level details take no product condition", fields["rules[0].details[0].condition"])
}

func TestCheckCampaign_NameUniqueIgnoringCase(t *testing.T) {
	fields := fieldsOf(t, Checker{}.CheckCampaign(validCampaign(), NewSnapshot(now, 0, []string{"  spring DAIRY "})))
	assert.Contains(t, fields["name"], "already used")
}

func TestCheckCampaign_ReportsEveryFault(t *testing.T) {
	c := validCampaign()
	c.Name = ""
	c.Rules[1].Priority = 1
	c.Rules[0].Details[0].Value = decimal.NewFromInt(500)

	fields := fieldsOf(t, Checker{}.CheckCampaign(c, NewSnapshot(now, 0, nil)))
	assert.Len(t, fields, 3)
}

func TestCheckCampaign_ActiveCap(t *testing.T) {
	c := validCampaign()
	c.Status = domain.StatusActive
	checker := Checker{MaxActiveCampaigns: 3}

	assert.NoError(t, checker.CheckCampaign(c, NewSnapshot(now, 2, nil)))

	fields := fieldsOf(t, checker.CheckCampaign(c, NewSnapshot(now, 3, nil)))
	assert.Equal(t, "at most 3 campaigns may be active", fields["status"])

	assert.NoError(t, Checker{}.CheckCampaign(c, NewSnapshot(now, 1000, nil)), "zero means unlimited")
}

func TestCheckActivation(t *testing.T) {
	checker := Checker{MaxActiveCampaigns: 1}

	assert.NoError(t, checker.CheckActivation(validCampaign(), NewSnapshot(now, 0, nil)))
	assert.Error(t, checker.CheckActivation(validCampaign(), NewSnapshot(now, 1, nil)))
}

func TestSnapshot_IsImmutableCopy(t *testing.T) {
	names := []string{"Alpha"}
	snap := NewSnapshot(now, 0, names)
	names[0] = "Beta"

	assert.True(t, snap.NameTaken("alpha"))
	assert.False(t, snap.NameTaken("beta"))
}
