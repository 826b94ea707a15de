package domain

// PromotionKind is the closed set of discount mechanisms a rule can carry.
type PromotionKind string

const (
	KindPercentOrder   PromotionKind = "PERCENT_ORDER"
	KindPercentProduct PromotionKind = "PERCENT_PRODUCT"
	KindFixedOrder     PromotionKind = "FIXED_ORDER"
	KindFixedProduct   PromotionKind = "FIXED_PRODUCT"
	KindBuyXGetY       PromotionKind = "BUY_X_GET_Y"
)

// Scope says what a kind applies to.
type Scope int

const (
	ScopeUnknown Scope = iota
	ScopeProduct
	ScopeOrder
	ScopeGift
)

func (s Scope) String() string {
	switch s {
	case ScopeProduct:
		return "product"
	case ScopeOrder:
		return "order"
	case ScopeGift:
		return "gift"
	default:
		return "unknown"
	}
}

func ValidKinds() []PromotionKind {
	return []PromotionKind{KindPercentOrder, KindPercentProduct, KindFixedOrder, KindFixedProduct, KindBuyXGetY}
}

func (k PromotionKind) Valid() bool {
	return k.Scope() != ScopeUnknown
}

func (k PromotionKind) Scope() Scope {
	switch k {
	case KindPercentProduct, KindFixedProduct:
		return ScopeProduct
	case KindPercentOrder, KindFixedOrder:
		return ScopeOrder
	case KindBuyXGetY:
		return ScopeGift
	default:
		return ScopeUnknown
	}
}

// IsPercent reports the percentage kinds.
func (k PromotionKind) IsPercent() bool {
	return k == KindPercentOrder || k == KindPercentProduct
}

// IsFixed reports the fixed-amount kinds.
func (k PromotionKind) IsFixed() bool {
	return k == KindFixedOrder || k == KindFixedProduct
}

// NeedsProductCondition reports whether details of this kind must name a
// product unit or a category.
func (k PromotionKind) NeedsProductCondition() bool {
	s := k.Scope()
	return s == ScopeProduct || s == ScopeGift
}
