package usage

import (
	"context"
	"fmt"
)

// Scratch is a throwaway limiter for dry runs. It seeds each key once from
// History and then tracks grants locally, so a preview sees the caps the
// live counters would impose without touching them. Not safe for concurrent
// use; build one per evaluation.
type Scratch struct {
	history History
	seen    map[string]*scratchEntry
}

type scratchEntry struct {
	total       *int64
	perCustomer map[string]*int64
	seeded      map[string]bool
}

// NewScratch returns a scratch limiter over h. A nil h means no prior usage.
func NewScratch(h History) *Scratch {
	return &Scratch{history: h, seen: make(map[string]*scratchEntry)}
}

func (s *Scratch) entry(ctx context.Context, key Key, limits Limits) (*scratchEntry, error) {
	e, ok := s.seen[key.RuleID]
	if !ok {
		e = &scratchEntry{perCustomer: make(map[string]*int64), seeded: make(map[string]bool)}
		s.seen[key.RuleID] = e
	}
	if e.seeded[key.CustomerID] {
		return e, nil
	}

	rem := remaining(limits, key, 0, 0)
	if s.history != nil {
		var err error
		if rem, err = s.history.RemainingFor(ctx, key, limits); err != nil {
			return nil, fmt.Errorf("seed usage for rule %s: %w", key.RuleID, err)
		}
	}
	if len(e.seeded) == 0 {
		e.total = rem.Total
	}
	e.perCustomer[key.CustomerID] = rem.PerCustomer
	e.seeded[key.CustomerID] = true
	return e, nil
}

func (s *Scratch) Reserve(ctx context.Context, key Key, limits Limits, requested int64) (int64, error) {
	if requested <= 0 {
		return 0, nil
	}
	e, err := s.entry(ctx, key, limits)
	if err != nil {
		return 0, err
	}

	pc := e.perCustomer[key.CustomerID]
	granted := Remaining{Total: e.total, PerCustomer: pc}.Grant(requested)
	if e.total != nil {
		*e.total -= granted
	}
	if pc != nil {
		*pc -= granted
	}
	return granted, nil
}

func (s *Scratch) Release(_ context.Context, key Key, quantity int64) error {
	e, ok := s.seen[key.RuleID]
	if !ok || quantity <= 0 {
		return nil
	}
	if e.total != nil {
		*e.total += quantity
	}
	if pc := e.perCustomer[key.CustomerID]; pc != nil {
		*pc += quantity
	}
	return nil
}
