package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses.
const (
	StatusConfirmed = "confirmed"
)

// Payment is an append-only ledger entry. transaction_hash is the single
// global idempotency guard for settlement; no two rows may share it.
type Payment struct {
	ID              string          `db:"id" json:"id"`
	TransactionHash string          `db:"transaction_hash" json:"transaction_hash"`
	OrderID         string          `db:"order_id" json:"order_id"`
	Cryptocurrency  string          `db:"cryptocurrency" json:"cryptocurrency"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	AmountUSD       decimal.Decimal `db:"amount_usd" json:"amount_usd"`
	Status          string          `db:"status" json:"status"`
	Confirmations   int64           `db:"confirmations" json:"confirmations"`
	EffectsApplied  bool            `db:"effects_applied" json:"effects_applied"`
	ConfirmedAt     time.Time       `db:"confirmed_at" json:"confirmed_at"`
	DateCreated     time.Time       `db:"date_created" json:"date_created"`
}
