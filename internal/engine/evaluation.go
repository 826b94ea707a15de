package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/usage"
)

// evaluation is the per-call state of one Resolve: the cart, the clock
// reading, and the usage granted so far. It is never shared.
type evaluation struct {
	resolver *Resolver
	cart     domain.Cart
	now      time.Time
	limiter  usage.Limiter
	order    []string
	tally    map[string]int64
}

type lineState struct {
	line      domain.CartLine
	remaining int64
	discount  decimal.Decimal
	ruleIDs   []string
}

func (e *evaluation) run(ctx context.Context, rules ruleSet) (domain.Result, error) {
	subtotal := e.cart.Subtotal()

	lines, err := e.applyProductRules(ctx, rules.product, subtotal)
	if err != nil {
		return domain.Result{}, err
	}
	gifts, err := e.applyGiftRules(ctx, rules.gift, subtotal)
	if err != nil {
		return domain.Result{}, err
	}

	result := domain.Result{
		Lines:        make([]domain.LineDiscount, 0, len(lines)),
		Subtotal:     subtotal,
		OrderRuleIDs: []string{},
		GiftLines:    gifts,
	}
	afterProducts := subtotal
	for _, st := range lines {
		amount := st.line.Amount()
		discount := decimal.Min(e.round(st.discount), amount)
		afterProducts = afterProducts.Sub(discount)
		result.Lines = append(result.Lines, domain.LineDiscount{
			ProductUnitID:  st.line.ProductUnitID,
			Quantity:       st.line.Quantity,
			OriginalAmount: amount,
			DiscountAmount: discount,
			AppliedRuleIDs: st.ruleIDs,
		})
	}

	result.OrderDiscountAmount, result.OrderRuleIDs, err = e.applyOrderRules(ctx, rules.order, afterProducts)
	if err != nil {
		return domain.Result{}, err
	}
	result.Total = afterProducts.Sub(result.OrderDiscountAmount)
	return result, nil
}

// applyProductRules walks product rules in priority order. Each grant
// consumes line units so a later rule cannot discount them again.
func (e *evaluation) applyProductRules(ctx context.Context, rules []*compiledRule, cartTotal decimal.Decimal) ([]lineState, error) {
	states := make([]lineState, len(e.cart.Lines))
	for i, l := range e.cart.Lines {
		states[i] = lineState{line: l, remaining: max(l.Quantity, 0), discount: decimal.Zero, ruleIDs: []string{}}
	}

	for _, cr := range rules {
		for i := range states {
			st := &states[i]
			if st.remaining == 0 {
				continue
			}
			cd, ok := e.firstLineMatch(ctx, cr, st.line, cartTotal)
			if !ok {
				continue
			}

			granted, err := e.reserve(ctx, cr, st.remaining)
			if err != nil {
				return nil, err
			}
			if granted == 0 {
				continue
			}

			base := st.line.UnitPrice.Mul(decimal.NewFromInt(granted))
			eff := cd.calc.Compute(base, granted)
			st.discount = st.discount.Add(eff.Discount)
			st.remaining -= granted
			st.ruleIDs = append(st.ruleIDs, cr.rule.ID)
			rulesApplied.WithLabelValues(string(cr.rule.Kind)).Inc()
		}
	}
	return states, nil
}

// applyGiftRules evaluates BUY_X_GET_Y rules on the original quantities.
// Lines are credited to the first detail of the rule they match, and each
// detail awards gifts for the quantity it collected.
func (e *evaluation) applyGiftRules(ctx context.Context, rules []*compiledRule, cartTotal decimal.Decimal) ([]domain.GiftLine, error) {
	gifts := []domain.GiftLine{}
	for _, cr := range rules {
		matched := make([]int64, len(cr.details))
		for _, l := range e.cart.Lines {
			for di := range cr.details {
				if ok := e.matchLine(ctx, cr, &cr.details[di], l, cartTotal); ok {
					matched[di] += max(l.Quantity, 0)
					break
				}
			}
		}

		for di, qty := range matched {
			eff := cr.details[di].calc.Compute(decimal.Zero, qty)
			if eff.GiftQuantity == 0 {
				continue
			}
			granted, err := e.reserve(ctx, cr, eff.GiftQuantity)
			if err != nil {
				return nil, err
			}
			if granted == 0 {
				continue
			}
			gifts = append(gifts, domain.GiftLine{
				ProductUnitID: eff.GiftProductUnitID,
				Quantity:      granted,
				SourceRuleID:  cr.rule.ID,
			})
			rulesApplied.WithLabelValues(string(cr.rule.Kind)).Inc()
		}
	}
	return gifts, nil
}

// applyOrderRules discounts the post-product subtotal. Thresholds are always
// checked against that subtotal; the base each rule applies to depends on
// the stacking mode. Each application uses one unit of the rule's cap.
func (e *evaluation) applyOrderRules(ctx context.Context, rules []*compiledRule, afterProducts decimal.Decimal) (decimal.Decimal, []string, error) {
	ruleIDs := []string{}
	sequential := e.resolver.stacking != StackIndependent
	running := afterProducts
	independent := decimal.Zero

	for _, cr := range rules {
		if !running.IsPositive() {
			break
		}
		var cd *compiledDetail
		for di := range cr.details {
			if MatchOrder(cr.details[di].detail, afterProducts) {
				cd = &cr.details[di]
				break
			}
		}
		if cd == nil {
			continue
		}

		granted, err := e.reserve(ctx, cr, 1)
		if err != nil {
			return decimal.Zero, nil, err
		}
		if granted == 0 {
			continue
		}

		if sequential {
			d := decimal.Min(e.round(cd.calc.Compute(running, 1).Discount), running)
			running = running.Sub(d)
		} else {
			independent = independent.Add(cd.calc.Compute(afterProducts, 1).Discount)
		}
		ruleIDs = append(ruleIDs, cr.rule.ID)
		rulesApplied.WithLabelValues(string(cr.rule.Kind)).Inc()
	}

	if sequential {
		return afterProducts.Sub(running), ruleIDs, nil
	}
	return decimal.Min(e.round(independent), afterProducts), ruleIDs, nil
}

func (e *evaluation) firstLineMatch(ctx context.Context, cr *compiledRule, line domain.CartLine, cartTotal decimal.Decimal) (*compiledDetail, bool) {
	for di := range cr.details {
		if e.matchLine(ctx, cr, &cr.details[di], line, cartTotal) {
			return &cr.details[di], true
		}
	}
	return nil, false
}

func (e *evaluation) matchLine(ctx context.Context, cr *compiledRule, cd *compiledDetail, line domain.CartLine, cartTotal decimal.Decimal) bool {
	ok, err := MatchLine(cd.detail, line, cartTotal)
	if err != nil {
		e.resolver.reportFault(ctx, cr.campaign, cr.rule, err)
		return false
	}
	return ok
}

func (e *evaluation) reserve(ctx context.Context, cr *compiledRule, requested int64) (int64, error) {
	key := cr.key(e.cart.CustomerID)
	granted, err := e.limiter.Reserve(ctx, key, cr.limits, requested)
	if err != nil {
		return 0, unavailable("usage limiter", err)
	}
	if granted < requested {
		usageCapped.WithLabelValues(string(cr.rule.Kind)).Inc()
	}
	if granted > 0 {
		if _, seen := e.tally[key.RuleID]; !seen {
			e.order = append(e.order, key.RuleID)
		}
		e.tally[key.RuleID] += granted
	}
	return granted, nil
}

func (e *evaluation) grants() []Grant {
	out := make([]Grant, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, Grant{
			Key:      usage.Key{RuleID: id, CustomerID: e.cart.CustomerID},
			Quantity: e.tally[id],
		})
	}
	return out
}

// rollback hands back everything reserved during a failed evaluation.
func (e *evaluation) rollback(ctx context.Context) {
	for _, g := range e.grants() {
		if err := e.limiter.Release(context.WithoutCancel(ctx), g.Key, g.Quantity); err != nil {
			e.resolver.logger.ErrorContext(ctx, "failed to release usage after evaluation error",
				slog.String("rule_id", g.Key.RuleID),
				slog.Int64("quantity", g.Quantity),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *evaluation) round(d decimal.Decimal) decimal.Decimal {
	return d.Round(e.resolver.precision)
}
