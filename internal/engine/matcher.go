package engine

import (
	"github.com/shopspring/decimal"

	"github.com/utafrali/MarketGo/internal/domain"
)

// MatchLine reports whether a product or gift detail applies to line.
// cartTotal is the whole cart's subtotal, which MinOrderValue gates on even
// for line-level details. A detail with both or neither condition set is an
// error, never a wildcard.
func MatchLine(d *domain.RuleDetail, line domain.CartLine, cartTotal decimal.Decimal) (bool, error) {
	switch d.ConditionCount() {
	case 0:
		return false, malformed("no product or category condition")
	case 2:
		return false, malformed("both product and category conditions set")
	}

	if !meetsMinimum(d, cartTotal) {
		return false, nil
	}
	if d.ConditionProductUnitID != "" {
		return d.ConditionProductUnitID == line.ProductUnitID, nil
	}
	return line.CategoryID != "" && d.ConditionCategoryID == line.CategoryID, nil
}

// MatchOrder reports whether an order-level detail's threshold is met.
func MatchOrder(d *domain.RuleDetail, cartTotal decimal.Decimal) bool {
	return meetsMinimum(d, cartTotal)
}

func meetsMinimum(d *domain.RuleDetail, total decimal.Decimal) bool {
	return !d.MinOrderValue.Valid || total.GreaterThanOrEqual(d.MinOrderValue.Decimal)
}
