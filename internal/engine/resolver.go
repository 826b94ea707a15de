package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/internal/usage"
	apperrors "github.com/utafrali/MarketGo/pkg/errors"
	"github.com/utafrali/MarketGo/pkg/tracing"
)

// CampaignStore supplies the campaigns that may apply to a cart.
type CampaignStore interface {
	FindActiveApplicable(ctx context.Context, now time.Time, productUnitIDs, categoryIDs []string) ([]domain.Campaign, error)
}

// CatalogLookup resolves a product unit's category. An unknown product
// yields "" and no error.
type CatalogLookup interface {
	CategoryOf(ctx context.Context, productUnitID string) (string, error)
}

// StackingMode controls how several order-level rules combine.
type StackingMode string

const (
	// StackSequential applies each order rule to the subtotal left by the
	// previous one.
	StackSequential StackingMode = "sequential"
	// StackIndependent applies every order rule to the post-product subtotal
	// and caps the sum at that subtotal.
	StackIndependent StackingMode = "independent"
)

type Options struct {
	// Precision is the number of decimal places discounts are rounded to.
	Precision int32
	Stacking  StackingMode
	Now       func() time.Time
}

// Resolver evaluates carts against the active campaigns. It holds no
// per-request state and is safe for concurrent use.
type Resolver struct {
	store     CampaignStore
	catalog   CatalogLookup
	logger    *slog.Logger
	tracer    trace.Tracer
	precision int32
	stacking  StackingMode
	now       func() time.Time
}

func NewResolver(store CampaignStore, catalog CatalogLookup, logger *slog.Logger, opts Options) *Resolver {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Stacking == "" {
		opts.Stacking = StackSequential
	}
	return &Resolver{
		store:     store,
		catalog:   catalog,
		logger:    logger,
		tracer:    tracing.Tracer("github.com/utafrali/MarketGo/internal/engine"),
		precision: opts.Precision,
		stacking:  opts.Stacking,
		now:       opts.Now,
	}
}

// Grant is the usage taken against one rule during an evaluation.
type Grant struct {
	Key      usage.Key
	Quantity int64
}

// Evaluation is the outcome of Resolve: the priced result plus the usage
// reserved to produce it.
type Evaluation struct {
	Result      domain.Result
	Grants      []Grant
	EvaluatedAt time.Time
}

// Resolve prices cart against the campaigns active now, reserving usage
// through limiter. On error every unit reserved so far is released.
func (r *Resolver) Resolve(ctx context.Context, cart domain.Cart, limiter usage.Limiter) (ev *Evaluation, err error) {
	started := time.Now()
	ctx, span := r.tracer.Start(ctx, "promotion.Resolve", trace.WithAttributes(
		attribute.Int("cart.lines", len(cart.Lines)),
		attribute.Bool("cart.identified", cart.CustomerID != ""),
	))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("promotion.grants", len(ev.Grants)),
				attribute.String("promotion.discount", ev.Result.TotalDiscount().String()),
			)
		}
		span.End()
		resolveDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}()

	if cart, err = r.fillCategories(ctx, cart); err != nil {
		return nil, err
	}

	now := r.now()
	productIDs, categoryIDs := cartKeys(cart)
	campaigns, err := r.store.FindActiveApplicable(ctx, now, productIDs, categoryIDs)
	if err != nil {
		return nil, unavailable("campaign store", err)
	}

	rules := r.compile(ctx, campaigns, now)
	e := &evaluation{
		resolver: r,
		cart:     cart,
		now:      now,
		limiter:  limiter,
		tally:    make(map[string]int64),
	}

	result, err := e.run(ctx, rules)
	if err != nil {
		e.rollback(ctx)
		return nil, err
	}
	return &Evaluation{Result: result, Grants: e.grants(), EvaluatedAt: now}, nil
}

func (r *Resolver) fillCategories(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	lines := slices.Clone(cart.Lines)
	cart.Lines = lines
	if r.catalog == nil {
		return cart, nil
	}

	known := make(map[string]string)
	for i := range lines {
		if lines[i].CategoryID != "" {
			continue
		}
		id := lines[i].ProductUnitID
		category, ok := known[id]
		if !ok {
			var err error
			if category, err = r.catalog.CategoryOf(ctx, id); err != nil {
				return cart, unavailable("catalog", err)
			}
			known[id] = category
		}
		lines[i].CategoryID = category
	}
	return cart, nil
}

func cartKeys(cart domain.Cart) (productIDs, categoryIDs []string) {
	for _, l := range cart.Lines {
		productIDs = append(productIDs, l.ProductUnitID)
		if l.CategoryID != "" {
			categoryIDs = append(categoryIDs, l.CategoryID)
		}
	}
	slices.Sort(productIDs)
	slices.Sort(categoryIDs)
	return slices.Compact(productIDs), slices.Compact(categoryIDs)
}

// unavailable marks a collaborator failure as retryable. Cancellation of the
// caller's context passes through untouched.
func unavailable(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || apperrors.IsRetryable(err) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return &apperrors.AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: what + " unavailable",
		Status:  503,
		Err:     fmt.Errorf("%w: %v", apperrors.ErrServiceUnavail, err),
	}
}

type compiledDetail struct {
	detail *domain.RuleDetail
	calc   Calculation
}

type compiledRule struct {
	rule     *domain.Rule
	campaign *domain.Campaign
	details  []compiledDetail
	limits   usage.Limits
}

func (cr *compiledRule) key(customerID string) usage.Key {
	return usage.Key{RuleID: cr.rule.ID, CustomerID: customerID}
}

type ruleSet struct {
	product []*compiledRule
	gift    []*compiledRule
	order   []*compiledRule
}

// compile keeps the rules live at now, turns their details into
// calculations and sorts each scope by priority. Malformed rules are
// skipped and reported.
func (r *Resolver) compile(ctx context.Context, campaigns []domain.Campaign, now time.Time) ruleSet {
	var set ruleSet
	for ci := range campaigns {
		c := &campaigns[ci]
		if !c.ActiveAt(now) {
			continue
		}
		for ri := range c.Rules {
			rule := &c.Rules[ri]
			if !rule.ActiveAt(now) {
				continue
			}
			cr, err := compileRule(c, rule)
			if err != nil {
				r.reportFault(ctx, c, rule, err)
				continue
			}
			switch rule.Kind.Scope() {
			case domain.ScopeProduct:
				set.product = append(set.product, cr)
			case domain.ScopeGift:
				set.gift = append(set.gift, cr)
			case domain.ScopeOrder:
				set.order = append(set.order, cr)
			}
		}
	}

	for _, rules := range [][]*compiledRule{set.product, set.gift, set.order} {
		sort.SliceStable(rules, func(i, j int) bool { return before(rules[i], rules[j]) })
	}
	return set
}

// before orders by priority, then campaign start, campaign id and rule id so
// that ties across campaigns resolve the same way every time.
func before(a, b *compiledRule) bool {
	if a.rule.Priority != b.rule.Priority {
		return a.rule.Priority < b.rule.Priority
	}
	if !a.campaign.StartDate.Equal(b.campaign.StartDate) {
		return a.campaign.StartDate.Before(b.campaign.StartDate)
	}
	if a.campaign.ID != b.campaign.ID {
		return a.campaign.ID < b.campaign.ID
	}
	return a.rule.ID < b.rule.ID
}

func compileRule(c *domain.Campaign, rule *domain.Rule) (*compiledRule, error) {
	if !rule.Kind.Valid() {
		return nil, malformed("unknown promotion kind %q", rule.Kind)
	}
	if len(rule.Details) == 0 {
		return nil, malformed("rule has no details")
	}
	if err := checkCaps(rule); err != nil {
		return nil, err
	}

	cr := &compiledRule{
		rule:     rule,
		campaign: c,
		limits:   usage.Limits{MaxTotal: rule.MaxTotalQuantity, MaxPerCustomer: rule.MaxPerCustomer},
	}
	for di := range rule.Details {
		d := &rule.Details[di]
		calc, err := Compile(rule.Kind, d)
		if err != nil {
			return nil, fmt.Errorf("detail %s: %w", d.ID, err)
		}
		cr.details = append(cr.details, compiledDetail{detail: d, calc: calc})
	}
	return cr, nil
}

func checkCaps(rule *domain.Rule) error {
	total, per := rule.MaxTotalQuantity, rule.MaxPerCustomer
	switch {
	case total != nil && *total <= 0:
		return malformed("max_total_quantity must be > 0")
	case per != nil && *per <= 0:
		return malformed("max_per_customer must be > 0")
	case total != nil && per != nil && *per > *total:
		return malformed("max_per_customer exceeds max_total_quantity")
	}
	return nil
}

func (r *Resolver) reportFault(ctx context.Context, c *domain.Campaign, rule *domain.Rule, err error) {
	ruleConfigFaults.WithLabelValues(string(rule.Kind)).Inc()
	r.logger.WarnContext(ctx, "skipping misconfigured promotion rule",
		slog.String("rule_id", rule.ID),
		slog.String("campaign_id", c.ID),
		slog.String("kind", string(rule.Kind)),
		slog.String("reason", err.Error()),
	)
}
