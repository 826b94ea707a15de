package domain

import "time"

// Reservation status constants.
const (
	ReservationStatusActive    = "active"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusReleased  = "released"
	ReservationStatusExpired   = "expired"
)

// UsageReservation records usage units taken against a rule for one checkout.
// The counters already include Quantity while the reservation is active or
// confirmed; releasing or expiring it gives the units back.
type UsageReservation struct {
	ID         string    `json:"id"`
	CheckoutID string    `json:"checkout_id"`
	RuleID     string    `json:"rule_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Quantity   int64     `json:"quantity"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r *UsageReservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// ExpiredAt reports whether an active reservation has outlived its TTL.
func (r *UsageReservation) ExpiredAt(now time.Time) bool {
	return r.IsActive() && now.After(r.ExpiresAt)
}
