// Package usage enforces rule usage caps across concurrent checkouts.
//
// A Limiter reserves units against a rule's total cap and the requesting
// customer's share of it. Reservations are provisional: they count against
// the caps immediately and must be handed back with Release (same key) if
// the checkout never commits.
package usage

import "context"

// Key identifies the counters a reservation touches. CustomerID may be empty
// for anonymous carts, in which case only the total cap applies.
type Key struct {
	RuleID     string
	CustomerID string
}

// Limits are a rule's caps. Nil means unbounded.
type Limits struct {
	MaxTotal       *int64
	MaxPerCustomer *int64
}

// Unbounded reports whether no cap applies to key.
func (l Limits) Unbounded(key Key) bool {
	return l.MaxTotal == nil && (l.MaxPerCustomer == nil || key.CustomerID == "")
}

// Remaining is the headroom left under each cap. Nil means unbounded.
type Remaining struct {
	Total       *int64
	PerCustomer *int64
}

// Limiter reserves and releases usage units. Reserve returns how many of the
// requested units were granted; zero is not an error.
type Limiter interface {
	Reserve(ctx context.Context, key Key, limits Limits, requested int64) (int64, error)
	Release(ctx context.Context, key Key, quantity int64) error
}

// History reports remaining headroom without reserving anything.
type History interface {
	RemainingFor(ctx context.Context, key Key, limits Limits) (Remaining, error)
}

// Backend is a Limiter that can also answer History queries.
type Backend interface {
	Limiter
	History
}

// remaining computes headroom from used counters.
func remaining(limits Limits, key Key, usedTotal, usedCustomer int64) Remaining {
	var r Remaining
	if limits.MaxTotal != nil {
		v := max(*limits.MaxTotal-usedTotal, 0)
		r.Total = &v
	}
	if limits.MaxPerCustomer != nil && key.CustomerID != "" {
		v := max(*limits.MaxPerCustomer-usedCustomer, 0)
		r.PerCustomer = &v
	}
	return r
}

// Grant is min(requested, remaining total, remaining for customer).
func (r Remaining) Grant(requested int64) int64 {
	g := max(requested, 0)
	if r.Total != nil {
		g = min(g, *r.Total)
	}
	if r.PerCustomer != nil {
		g = min(g, *r.PerCustomer)
	}
	return g
}

// Int64 returns a pointer to v, for building Limits.
func Int64(v int64) *int64 { return &v }
