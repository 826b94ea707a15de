package usage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/MarketGo/pkg/database"
)

// totalRow is the customer_id of the per-rule total counter row.
const totalRow = ""

// PostgresLimiter stores counters in rule_usage (rule_id, customer_id, used).
// Reserve locks the total row and then the customer row with SELECT ... FOR
// UPDATE, always in that order.
type PostgresLimiter struct {
	db database.DBTX
}

func NewPostgresLimiter(db database.DBTX) *PostgresLimiter {
	return &PostgresLimiter{db: db}
}

const (
	ensureUsageRow = `INSERT INTO rule_usage (rule_id, customer_id, used) VALUES ($1, $2, 0)
		ON CONFLICT (rule_id, customer_id) DO NOTHING`
	lockUsageRow = `SELECT used FROM rule_usage WHERE rule_id = $1 AND customer_id = $2 FOR UPDATE`
	addUsage     = `UPDATE rule_usage SET used = used + $3, updated_at = NOW()
		WHERE rule_id = $1 AND customer_id = $2`
	subtractUsage = `UPDATE rule_usage SET used = GREATEST(used - $3, 0), updated_at = NOW()
		WHERE rule_id = $1 AND customer_id = $2`
	selectUsage = `SELECT customer_id, used FROM rule_usage WHERE rule_id = $1 AND customer_id = ANY($2)`
)

func (l *PostgresLimiter) rows(key Key) []string {
	if key.CustomerID == "" {
		return []string{totalRow}
	}
	return []string{totalRow, key.CustomerID}
}

func (l *PostgresLimiter) Reserve(ctx context.Context, key Key, limits Limits, requested int64) (int64, error) {
	if requested <= 0 {
		return 0, nil
	}

	var granted int64
	err := database.InTx(ctx, l.db, database.ReadCommitted, func(tx pgx.Tx) error {
		used := map[string]int64{}
		for _, row := range l.rows(key) {
			if _, err := tx.Exec(ctx, ensureUsageRow, key.RuleID, row); err != nil {
				return fmt.Errorf("ensure usage row: %w", err)
			}
			var n int64
			if err := tx.QueryRow(ctx, lockUsageRow, key.RuleID, row).Scan(&n); err != nil {
				return fmt.Errorf("lock usage row: %w", err)
			}
			used[row] = n
		}

		granted = remaining(limits, key, used[totalRow], used[key.CustomerID]).Grant(requested)
		if granted == 0 {
			return nil
		}
		for _, row := range l.rows(key) {
			if _, err := tx.Exec(ctx, addUsage, key.RuleID, row, granted); err != nil {
				return fmt.Errorf("increment usage: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reserve usage for rule %s: %w", key.RuleID, err)
	}
	return granted, nil
}

func (l *PostgresLimiter) Release(ctx context.Context, key Key, quantity int64) error {
	if quantity <= 0 {
		return nil
	}
	err := database.InTx(ctx, l.db, database.ReadCommitted, func(tx pgx.Tx) error {
		for _, row := range l.rows(key) {
			if _, err := tx.Exec(ctx, subtractUsage, key.RuleID, row, quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("release usage for rule %s: %w", key.RuleID, err)
	}
	return nil
}

func (l *PostgresLimiter) RemainingFor(ctx context.Context, key Key, limits Limits) (Remaining, error) {
	rows, err := l.db.Query(ctx, selectUsage, key.RuleID, l.rows(key))
	if err != nil {
		return Remaining{}, fmt.Errorf("read usage for rule %s: %w", key.RuleID, err)
	}
	defer rows.Close()

	used := map[string]int64{}
	for rows.Next() {
		var customer string
		var n int64
		if err := rows.Scan(&customer, &n); err != nil {
			return Remaining{}, fmt.Errorf("scan usage row: %w", err)
		}
		used[customer] = n
	}
	if err := rows.Err(); err != nil {
		return Remaining{}, fmt.Errorf("iterate usage rows: %w", err)
	}
	return remaining(limits, key, used[totalRow], used[key.CustomerID]), nil
}
