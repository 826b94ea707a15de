package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/utafrali/MarketGo/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ErrMalformedDetail marks a rule detail that cannot be evaluated.
var ErrMalformedDetail = errors.New("malformed rule detail")

// Effect is what one rule application yields: a monetary discount or gift
// units, never both.
type Effect struct {
	Discount          decimal.Decimal
	GiftProductUnitID string
	GiftQuantity      int64
}

// Calculation computes the effect of one rule detail. The variants are the
// unexported types below; Compile is the only constructor.
type Calculation interface {
	// Compute returns the effect on base (the amount the rule applies to)
	// covering qty units. Discounts are unrounded and never exceed base.
	Compute(base decimal.Decimal, qty int64) Effect
	Scope() domain.Scope
	sealed()
}

type percentOff struct {
	scope domain.Scope
	rate  decimal.Decimal
	cap   decimal.NullDecimal
}

func (p percentOff) Compute(base decimal.Decimal, _ int64) Effect {
	d := base.Mul(p.rate).Div(hundred)
	if p.cap.Valid {
		d = decimal.Min(d, p.cap.Decimal)
	}
	return Effect{Discount: clamp(d, base)}
}

func (p percentOff) Scope() domain.Scope { return p.scope }
func (percentOff) sealed()               {}

type fixedOff struct {
	scope  domain.Scope
	amount decimal.Decimal
}

func (f fixedOff) Compute(base decimal.Decimal, _ int64) Effect {
	return Effect{Discount: clamp(f.amount, base)}
}

func (f fixedOff) Scope() domain.Scope { return f.scope }
func (fixedOff) sealed()               {}

type buyXGetY struct {
	buy         int64
	gift        int64
	giftProduct string
}

// Compute awards floor(qty / buy) * gift units; base is ignored.
func (b buyXGetY) Compute(_ decimal.Decimal, qty int64) Effect {
	if qty <= 0 {
		return Effect{Discount: decimal.Zero}
	}
	return Effect{
		Discount:          decimal.Zero,
		GiftProductUnitID: b.giftProduct,
		GiftQuantity:      (qty / b.buy) * b.gift,
	}
}

func (buyXGetY) Scope() domain.Scope { return domain.ScopeGift }
func (buyXGetY) sealed()             {}

// clamp bounds d to [0, base].
func clamp(d, base decimal.Decimal) decimal.Decimal {
	if d.IsNegative() || base.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.Min(d, base)
}

// Compile validates d for kind and returns its calculation. Failures wrap
// ErrMalformedDetail.
func Compile(kind domain.PromotionKind, d *domain.RuleDetail) (Calculation, error) {
	if err := checkCondition(kind, d); err != nil {
		return nil, err
	}
	if d.MinOrderValue.Valid && d.MinOrderValue.Decimal.IsNegative() {
		return nil, malformed("min_order_value must be >= 0")
	}

	switch {
	case kind.IsPercent():
		if !d.Value.IsPositive() || d.Value.GreaterThan(hundred) {
			return nil, malformed("percentage value %s outside (0, 100]", d.Value)
		}
		if d.MaxDiscountValue.Valid && !d.MaxDiscountValue.Decimal.IsPositive() {
			return nil, malformed("max_discount_value must be > 0")
		}
		return percentOff{scope: kind.Scope(), rate: d.Value, cap: d.MaxDiscountValue}, nil

	case kind.IsFixed():
		if !d.Value.IsPositive() || d.Value.GreaterThan(domain.MaxFixedValue) {
			return nil, malformed("fixed value %s outside (0, %s]", d.Value, domain.MaxFixedValue)
		}
		return fixedOff{scope: kind.Scope(), amount: d.Value}, nil

	case kind == domain.KindBuyXGetY:
		if d.ConditionBuyQuantity <= 0 || d.GiftQuantity <= 0 || d.GiftProductUnitID == "" {
			return nil, malformed("buy quantity, gift quantity and gift product are required")
		}
		if d.ConditionBuyQuantity > domain.MaxQuantity || d.GiftQuantity > domain.MaxQuantity {
			return nil, malformed("buy and gift quantities must be at most %d", domain.MaxQuantity)
		}
		return buyXGetY{buy: d.ConditionBuyQuantity, gift: d.GiftQuantity, giftProduct: d.GiftProductUnitID}, nil
	}
	return nil, malformed("unknown promotion kind %q", kind)
}

func checkCondition(kind domain.PromotionKind, d *domain.RuleDetail) error {
	n := d.ConditionCount()
	switch {
	case kind.NeedsProductCondition() && n == 0:
		return malformed("no product or category condition")
	case kind.NeedsProductCondition() && n > 1:
		return malformed("both product and category conditions set")
	case kind.Scope() == domain.ScopeOrder && n > 0:
		return malformed("order-level detail carries a product condition")
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDetail, fmt.Sprintf(format, args...))
}
