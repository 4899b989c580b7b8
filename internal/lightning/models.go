package lightning

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses. pending -> paid exactly once, or pending -> expired after
// the expiry passes with no further transitions.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusExpired = "expired"
)

// Invoice is a Lightning payment request. PaymentHash is the idempotency key.
type Invoice struct {
	PaymentHash    string          `db:"payment_hash" json:"payment_hash"`
	PaymentRequest string          `db:"payment_request" json:"payment_request"`
	OrderID        string          `db:"order_id" json:"order_id"`
	AmountSat      int64           `db:"amount_sat" json:"amount_sat"`
	AmountMsat     int64           `db:"amount_msat" json:"amount_msat"`
	AmountUSD      decimal.Decimal `db:"amount_usd" json:"amount_usd"`
	Description    string          `db:"description" json:"description"`
	Status         string          `db:"status" json:"status"`
	ExpiresAt      time.Time       `db:"expires_at" json:"expires_at"`
	PaidAt         time.Time       `db:"paid_at" json:"paid_at"`
	DateCreated    time.Time       `db:"date_created" json:"date_created"`
}

// CheckExpiration returns true iff the invoice is pending and its expiry has
// passed. Callers that see true persist the expired transition; a paid
// invoice never expires.
func (i *Invoice) CheckExpiration(now time.Time) bool {
	return i.Status == StatusPending && now.After(i.ExpiresAt)
}
