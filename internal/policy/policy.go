// Package policy validates campaign definitions before they are stored or
// activated. Checks run against an immutable Snapshot that the caller builds
// up front; nothing here reads a store.
package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/MarketGo/internal/domain"
	apperrors "github.com/utafrali/MarketGo/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Snapshot is the state validation may consult.
type Snapshot struct {
	Now                 time.Time
	ActiveCampaignCount int
	names               map[string]struct{}
}

// NewSnapshot copies existingNames into a normalized set.
func NewSnapshot(now time.Time, activeCampaignCount int, existingNames []string) Snapshot {
	names := make(map[string]struct{}, len(existingNames))
	for _, n := range existingNames {
		names[domain.NormalizeName(n)] = struct{}{}
	}
	return Snapshot{Now: now, ActiveCampaignCount: activeCampaignCount, names: names}
}

// NameTaken compares case-insensitively, ignoring surrounding space.
func (s Snapshot) NameTaken(name string) bool {
	_, ok := s.names[domain.NormalizeName(name)]
	return ok
}

// Checker holds the configurable limits. The zero value enforces no cap on
// active campaigns.
type Checker struct {
	MaxActiveCampaigns int
}

// CheckCampaign validates a new campaign, its rules and their details.
// All problems are reported together as an InvalidFields error.
func (c Checker) CheckCampaign(camp *domain.Campaign, snap Snapshot) error {
	f := faults{}

	switch {
	case camp.Name == "":
		f.add("name", "is required")
	case snap.NameTaken(camp.Name):
		f.add("name", fmt.Sprintf("%q is already used by another campaign", camp.Name))
	}

	if !camp.EndDate.After(camp.StartDate) {
		f.add("end_date", "must be after start_date")
	} else if !camp.EndDate.After(snap.Now) {
		f.add("end_date", "must be in the future")
	}

	switch {
	case camp.Status == domain.StatusExpired:
		f.add("status", "a campaign cannot be created EXPIRED")
	case camp.Status != "" && !camp.Status.Valid():
		f.add("status", fmt.Sprintf("unknown status %q", camp.Status))
	case camp.Status == domain.StatusActive:
		c.checkActiveCap(f, snap)
	}

	c.checkRules(f, camp.Rules, snap.Now)
	return f.err()
}

// CheckActivation validates moving an existing campaign to ACTIVE.
func (c Checker) CheckActivation(camp *domain.Campaign, snap Snapshot) error {
	f := faults{}
	c.checkActiveCap(f, snap)
	return f.err()
}

func (c Checker) checkActiveCap(f faults, snap Snapshot) {
	if c.MaxActiveCampaigns > 0 && snap.ActiveCampaignCount >= c.MaxActiveCampaigns {
		f.add("status", fmt.Sprintf("at most %d campaigns may be active", c.MaxActiveCampaigns))
	}
}

func (c Checker) checkRules(f faults, rules []domain.Rule, now time.Time) {
	if len(rules) == 0 {
		f.add("rules", "at least one rule is required")
		return
	}

	priorities := make(map[int]int, len(rules))
	for i := range rules {
		r := &rules[i]
		p := fmt.Sprintf("rules[%d]", i)

		if first, dup := priorities[r.Priority]; dup {
			f.add(p+".priority", fmt.Sprintf("duplicates the priority of rules[%d]", first))
		} else {
			priorities[r.Priority] = i
		}

		if !r.Kind.Valid() {
			f.add(p+".kind", fmt.Sprintf("unknown promotion kind %q", r.Kind))
		}

		if !r.EndDate.After(r.StartDate) {
			f.add(p+".end_date", "must be after start_date")
		} else if !r.EndDate.After(now) {
			f.add(p+".end_date", "must be in the future")
		}

		checkCaps(f, p, r)

		if len(r.Details) == 0 {
			f.add(p+".details", "at least one detail is required")
		}
		if r.Kind.Valid() {
			for j := range r.Details {
				checkDetail(f, fmt.Sprintf("%s.details[%d]", p, j), r.Kind, &r.Details[j])
			}
		}
	}
}

func checkCaps(f faults, p string, r *domain.Rule) {
	if r.MaxTotalQuantity != nil && *r.MaxTotalQuantity <= 0 {
		f.add(p+".max_total_quantity", "must be greater than 0")
	}
	if r.MaxPerCustomer != nil && *r.MaxPerCustomer <= 0 {
		f.add(p+".max_per_customer", "must be greater than 0")
	}
	if r.MaxTotalQuantity != nil && r.MaxPerCustomer != nil && *r.MaxPerCustomer > *r.MaxTotalQuantity {
		f.add(p+".max_per_customer", "must not exceed max_total_quantity")
	}
}

func checkDetail(f faults, p string, kind domain.PromotionKind, d *domain.RuleDetail) {
	n := d.ConditionCount()
	switch {
	case kind.NeedsProductCondition() && n == 0:
		f.add(p+".condition", "exactly one of condition_product_unit_id or condition_category_id is required")
	case kind.NeedsProductCondition() && n == 2:
		f.add(p+".condition", "condition_product_unit_id and condition_category_id are mutually exclusive")
	case !kind.NeedsProductCondition() && n > 0:
		f.add(p+".condition", "order-level details take no product condition")
	}

	if d.MinOrderValue.Valid && d.MinOrderValue.Decimal.IsNegative() {
		f.add(p+".min_order_value", "must be greater than or equal to 0")
	}

	switch {
	case kind.IsPercent():
		if !d.Value.IsPositive() || d.Value.GreaterThan(hundred) {
			f.add(p+".value", "must be in (0, 100]")
		}
		if d.MaxDiscountValue.Valid && !d.MaxDiscountValue.Decimal.IsPositive() {
			f.add(p+".max_discount_value", "must be greater than 0")
		}
	case kind.IsFixed():
		if !d.Value.IsPositive() || d.Value.GreaterThan(domain.MaxFixedValue) {
			f.add(p+".value", fmt.Sprintf("must be in (0, %s]", domain.MaxFixedValue))
		}
	case kind == domain.KindBuyXGetY:
		checkQuantity(f, p+".condition_buy_quantity", d.ConditionBuyQuantity)
		checkQuantity(f, p+".gift_quantity", d.GiftQuantity)
		if d.GiftProductUnitID == "" {
			f.add(p+".gift_product_unit_id", "is required")
		}
	}
}

func checkQuantity(f faults, field string, q int64) {
	switch {
	case q <= 0:
		f.add(field, "must be greater than 0")
	case q > domain.MaxQuantity:
		f.add(field, fmt.Sprintf("must be less than or equal to %d", domain.MaxQuantity))
	}
}

// faults collects field messages, keeping the first per field.
type faults map[string]string

func (f faults) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f faults) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperrors.InvalidFields(f)
}
