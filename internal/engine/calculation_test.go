package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/MarketGo/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nullDec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func mustCompile(t *testing.T, kind domain.PromotionKind, d domain.RuleDetail) Calculation {
	t.Helper()
	c, err := Compile(kind, &d)
	require.NoError(t, err)
	return c
}

func TestPercentOff(t *testing.T) {
	calc := mustCompile(t, domain.KindPercentProduct, domain.RuleDetail{ConditionProductUnitID: "A", Value: dec("20")})

	assert.True(t, calc.Compute(dec("300"), 3).Discount.Equal(dec("60")))
	assert.Equal(t, domain.ScopeProduct, calc.Scope())
}

func TestPercentOff_CappedByMaxDiscount(t *testing.T) {
	calc := mustCompile(t, domain.KindPercentProduct, domain.RuleDetail{
		ConditionProductUnitID: "A", Value: dec("50"), MaxDiscountValue: nullDec("30"),
	})

	assert.True(t, calc.Compute(dec("100"), 1).Discount.Equal(dec("30")))
	assert.True(t, calc.Compute(dec("40"), 1).Discount.Equal(dec("20")), "cap only bites above it")
}

func TestPercentOff_NeverExceedsBase(t *testing.T) {
	calc := mustCompile(t, domain.KindPercentOrder, domain.RuleDetail{Value: dec("100")})

	assert.True(t, calc.Compute(dec("12.34"), 1).Discount.Equal(dec("12.34")))
	assert.True(t, calc.Compute(decimal.Zero, 1).Discount.IsZero())
	assert.Equal(t, domain.ScopeOrder, calc.Scope())
}

func TestFixedOff_MinOfValueAndBase(t *testing.T) {
	calc := mustCompile(t, domain.KindFixedProduct, domain.RuleDetail{ConditionCategoryID: "dairy", Value: dec("5")})

	assert.True(t, calc.Compute(dec("6"), 3).Discount.Equal(dec("5")))
	assert.True(t, calc.Compute(dec("3.50"), 1).Discount.Equal(dec("3.50")))
}

func TestBuyXGetY(t *testing.T) {
	calc := mustCompile(t, domain.KindBuyXGetY, domain.RuleDetail{
		ConditionProductUnitID: "A", ConditionBuyQuantity: 2, GiftQuantity: 1, GiftProductUnitID: "B",
	})

	eff := calc.Compute(dec("500"), 5)
	assert.Equal(t, int64(2), eff.GiftQuantity)
	assert.Equal(t, "B", eff.GiftProductUnitID)
	assert.True(t, eff.Discount.IsZero())

	assert.Equal(t, int64(0), calc.Compute(decimal.Zero, 1).GiftQuantity)
	assert.Equal(t, domain.ScopeGift, calc.Scope())
}

func TestBuyXGetY_GiftMultiples(t *testing.T) {
	calc := mustCompile(t, domain.KindBuyXGetY, domain.RuleDetail{
		ConditionCategoryID: "snacks", ConditionBuyQuantity: 3, GiftQuantity: 2, GiftProductUnitID: "G",
	})

	for qty, want := range map[int64]int64{0: 0, 2: 0, 3: 2, 8: 4, 9: 6} {
		assert.Equal(t, want, calc.Compute(decimal.Zero, qty).GiftQuantity, "qty %d", qty)
	}
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		kind   domain.PromotionKind
		detail domain.RuleDetail
	}{
		{"product without condition", domain.KindPercentProduct, domain.RuleDetail{Value: dec("10")}},
		{"both conditions", domain.KindFixedProduct, domain.RuleDetail{ConditionProductUnitID: "A", ConditionCategoryID: "c", Value: dec("1")}},
		{"order with condition", domain.KindFixedOrder, domain.RuleDetail{ConditionProductUnitID: "A", Value: dec("1")}},
		{"percent zero", domain.KindPercentOrder, domain.RuleDetail{Value: dec("0")}},
		{"percent over 100", domain.KindPercentOrder, domain.RuleDetail{Value: dec("100.01")}},
		{"non-positive cap", domain.KindPercentOrder, domain.RuleDetail{Value: dec("10"), MaxDiscountValue: nullDec("0")}},
		{"fixed negative", domain.KindFixedOrder, domain.RuleDetail{Value: dec("-1")}},
		{"fixed over ceiling", domain.KindFixedOrder, domain.RuleDetail{Value: dec("10000000.01")}},
		{"negative min order", domain.KindFixedOrder, domain.RuleDetail{Value: dec("1"), MinOrderValue: nullDec("-5")}},
		{"bxgy missing gift product", domain.KindBuyXGetY, domain.RuleDetail{ConditionProductUnitID: "A", ConditionBuyQuantity: 2, GiftQuantity: 1}},
		{"bxgy zero buy", domain.KindBuyXGetY, domain.RuleDetail{ConditionProductUnitID: "A", GiftQuantity: 1, GiftProductUnitID: "B"}},
		{"bxgy gift over ceiling", domain.KindBuyXGetY, domain.RuleDetail{ConditionProductUnitID: "A", ConditionBuyQuantity: 1,
			GiftQuantity: domain.MaxQuantity + 1, GiftProductUnitID: "B"}},
		{"unknown kind", domain.PromotionKind("FREE_SHIPPING"), domain.RuleDetail{Value: dec("1")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.kind, &tc.detail)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedDetail)
		})
	}
}

func TestBuyXGetY_LargestCartStaysPositive(t *testing.T) {
	calc := mustCompile(t, domain.KindBuyXGetY, domain.RuleDetail{
		ConditionProductUnitID: "A", ConditionBuyQuantity: 1,
		GiftQuantity: domain.MaxQuantity, GiftProductUnitID: "B",
	})

	// 500 lines at the quantity ceiling.
	eff := calc.Compute(decimal.Zero, 500*domain.MaxQuantity)
	assert.Equal(t, int64(500*domain.MaxQuantity*domain.MaxQuantity), eff.GiftQuantity)
	assert.Positive(t, eff.GiftQuantity)
}

func TestCompile_AcceptsBoundaries(t *testing.T) {
	_, err := Compile(domain.KindPercentOrder, &domain.RuleDetail{Value: dec("100")})
	assert.NoError(t, err)

	_, err = Compile(domain.KindFixedOrder, &domain.RuleDetail{Value: dec("10000000"), MinOrderValue: nullDec("0")})
	assert.NoError(t, err)
}
