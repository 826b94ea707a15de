package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/MarketGo/internal/domain"
	"github.com/utafrali/MarketGo/pkg/database"
)

// ReservationRepository implements repository.ReservationRepository using PostgreSQL.
type ReservationRepository struct {
	db database.DBTX
}

func NewReservationRepository(db database.DBTX) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationColumns = `id, checkout_id, rule_id, customer_id, quantity, status, expires_at, created_at`

const (
	insertReservation = `INSERT INTO usage_reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	selectReservationsByCheckout = `SELECT ` + reservationColumns + ` FROM usage_reservations
		WHERE checkout_id = $1 ORDER BY created_at, id`
	transitionReservations = `UPDATE usage_reservations SET status = $3, updated_at = NOW()
		WHERE checkout_id = $1 AND status = $2
		RETURNING ` + reservationColumns
	claimExpiredReservations = `UPDATE usage_reservations SET status = 'expired', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM usage_reservations
			WHERE status = 'active' AND expires_at < $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + reservationColumns
)

func (r *ReservationRepository) Create(ctx context.Context, reservations []domain.UsageReservation) error {
	if len(reservations) == 0 {
		return nil
	}
	err := database.InTx(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for i := range reservations {
			res := &reservations[i]
			if _, err := tx.Exec(ctx, insertReservation,
				res.ID, res.CheckoutID, res.RuleID, res.CustomerID, res.Quantity,
				res.Status, res.ExpiresAt, res.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert reservations: %w", err)
	}
	return nil
}

func (r *ReservationRepository) ListByCheckout(ctx context.Context, checkoutID string) ([]domain.UsageReservation, error) {
	res, err := r.query(ctx, selectReservationsByCheckout, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) Transition(ctx context.Context, checkoutID, from, to string) ([]domain.UsageReservation, error) {
	res, err := r.query(ctx, transitionReservations, checkoutID, from, to)
	if err != nil {
		return nil, fmt.Errorf("mark reservations %s: %w", to, err)
	}
	return res, nil
}

func (r *ReservationRepository) ClaimExpired(ctx context.Context, now time.Time, limit int) (_ []domain.UsageReservation, err error) {
	ctx, end := database.TraceQuery(ctx, "ClaimExpiredReservations", claimExpiredReservations)
	defer func() { end(err) }()

	res, err := r.query(ctx, claimExpiredReservations, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim expired reservations: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) query(ctx context.Context, query string, args ...any) ([]domain.UsageReservation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.UsageReservation{}
	for rows.Next() {
		var res domain.UsageReservation
		if err := rows.Scan(
			&res.ID, &res.CheckoutID, &res.RuleID, &res.CustomerID, &res.Quantity,
			&res.Status, &res.ExpiresAt, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
