package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses touched by settlement. The wider order lifecycle belongs to
// the storefront, not this core.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

// User roles.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	Role         string    `db:"role" json:"role"`
	DateCreated  time.Time `db:"date_created" json:"date_created"`
	DateModified time.Time `db:"date_modified" json:"date_modified"`
	IsDeleted    bool      `db:"is_deleted" json:"is_deleted"`
}

type Product struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Stock        int64     `db:"stock" json:"stock"`
	Sold         int64     `db:"sold" json:"sold"`
	DateCreated  time.Time `db:"date_created" json:"date_created"`
	DateModified time.Time `db:"date_modified" json:"date_modified"`
}

type Order struct {
	ID              string          `db:"id" json:"id"`
	BuyerID         string          `db:"buyer_id" json:"buyer_id"`
	Status          string          `db:"status" json:"status"`
	TotalUSD        decimal.Decimal `db:"total_usd" json:"total_usd"`
	TransactionHash string          `db:"transaction_hash" json:"transaction_hash"`
	DateCreated     time.Time       `db:"date_created" json:"date_created"`
	DateModified    time.Time       `db:"date_modified" json:"date_modified"`
}

type Item struct {
	OrderID   string          `db:"order_id" json:"order_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Quantity  int64           `db:"quantity" json:"quantity"`
	PriceUSD  decimal.Decimal `db:"price_usd" json:"price_usd"`
}
