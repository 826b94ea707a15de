package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/utafrali/MarketGo/pkg/errors"
)

// CartLine is one purchase line submitted for evaluation. CategoryID may be
// empty, in which case it is looked up in the catalog.
type CartLine struct {
	ProductUnitID string          `json:"product_unit_id"`
	CategoryID    string          `json:"category_id,omitempty"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// Amount is UnitPrice * Quantity.
func (l CartLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

type Cart struct {
	CustomerID string     `json:"customer_id,omitempty"`
	Lines      []CartLine `json:"lines"`
}

func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Amount())
	}
	return total
}

// Validate rejects carts the engine cannot price: no lines, a line without a
// product, a quantity outside (0, MaxQuantity] or a negative unit price.
func (c Cart) Validate() error {
	fields := map[string]string{}
	if len(c.Lines) == 0 {
		fields["lines"] = "at least one line is required"
	}
	for i, l := range c.Lines {
		p := fmt.Sprintf("lines[%d]", i)
		if l.ProductUnitID == "" {
			fields[p+".product_unit_id"] = "is required"
		}
		switch {
		case l.Quantity <= 0:
			fields[p+".quantity"] = "must be greater than 0"
		case l.Quantity > MaxQuantity:
			fields[p+".quantity"] = fmt.Sprintf("must be less than or equal to %d", MaxQuantity)
		}
		if l.UnitPrice.IsNegative() {
			fields[p+".unit_price"] = "must be greater than or equal to 0"
		}
	}
	if len(fields) > 0 {
		return apperrors.InvalidFields(fields)
	}
	return nil
}

// LineDiscount is the evaluation outcome for one cart line.
type LineDiscount struct {
	ProductUnitID  string          `json:"product_unit_id"`
	Quantity       int64           `json:"quantity"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	AppliedRuleIDs []string        `json:"applied_rule_ids"`
}

// GiftLine is a free item awarded by a BUY_X_GET_Y rule. It is never merged
// into a purchase line and needs its own availability check downstream.
type GiftLine struct {
	ProductUnitID string `json:"product_unit_id"`
	Quantity      int64  `json:"quantity"`
	SourceRuleID  string `json:"source_rule_id"`
}

// Result is the outcome of one evaluation.
type Result struct {
	Lines               []LineDiscount  `json:"lines"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	OrderDiscountAmount decimal.Decimal `json:"order_discount_amount"`
	OrderRuleIDs        []string        `json:"order_rule_ids"`
	GiftLines           []GiftLine      `json:"gift_lines"`
	Total               decimal.Decimal `json:"total"`
}

// TotalDiscount sums line and order discounts.
func (r *Result) TotalDiscount() decimal.Decimal {
	total := r.OrderDiscountAmount
	for _, l := range r.Lines {
		total = total.Add(l.DiscountAmount)
	}
	return total
}
