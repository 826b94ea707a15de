package usage

import (
	"context"
	"sync"
)

// MemoryLimiter keeps counters in process memory. Each rule has its own
// mutex so unrelated rules never contend.
type MemoryLimiter struct {
	rules sync.Map // rule id -> *ruleCounter
}

type ruleCounter struct {
	mu          sync.Mutex
	total       int64
	perCustomer map[string]int64
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{}
}

func (m *MemoryLimiter) counter(ruleID string) *ruleCounter {
	if c, ok := m.rules.Load(ruleID); ok {
		return c.(*ruleCounter)
	}
	c, _ := m.rules.LoadOrStore(ruleID, &ruleCounter{perCustomer: make(map[string]int64)})
	return c.(*ruleCounter)
}

func (m *MemoryLimiter) Reserve(_ context.Context, key Key, limits Limits, requested int64) (int64, error) {
	if requested <= 0 {
		return 0, nil
	}
	c := m.counter(key.RuleID)

	c.mu.Lock()
	defer c.mu.Unlock()

	granted := remaining(limits, key, c.total, c.perCustomer[key.CustomerID]).Grant(requested)
	if granted == 0 {
		return 0, nil
	}
	c.total += granted
	if key.CustomerID != "" {
		c.perCustomer[key.CustomerID] += granted
	}
	return granted, nil
}

func (m *MemoryLimiter) Release(_ context.Context, key Key, quantity int64) error {
	if quantity <= 0 {
		return nil
	}
	c := m.counter(key.RuleID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.total = max(c.total-quantity, 0)
	if key.CustomerID != "" {
		if left := c.perCustomer[key.CustomerID] - quantity; left > 0 {
			c.perCustomer[key.CustomerID] = left
		} else {
			delete(c.perCustomer, key.CustomerID)
		}
	}
	return nil
}

func (m *MemoryLimiter) RemainingFor(_ context.Context, key Key, limits Limits) (Remaining, error) {
	c := m.counter(key.RuleID)

	c.mu.Lock()
	defer c.mu.Unlock()
	return remaining(limits, key, c.total, c.perCustomer[key.CustomerID]), nil
}

// Used returns the units currently counted against ruleID.
func (m *MemoryLimiter) Used(ruleID string) int64 {
	c := m.counter(ruleID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
