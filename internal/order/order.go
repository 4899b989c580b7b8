package order

import (
	"context"
	"time"

	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"

	"github.com/pkg/errors"
)

const (
	UserColumns = `
		u.id,
		u.email,
		u.name,
		u.role,
		u.date_created,
		u.date_modified,
		u.is_deleted`

	OrderColumns = `
		o.id,
		o.buyer_id,
		o.status,
		o.total_usd,
		o.transaction_hash,
		o.date_created,
		o.date_modified`
)

// FetchUser retrieves a user by id.
func FetchUser(ctx context.Context, dbConn *db.DB, id string) (User, error) {
	sql := `SELECT ` + UserColumns + `
		FROM
			users u
		WHERE
			u.id=?
			AND NOT u.is_deleted`

	user := User{}
	err := dbConn.Get(ctx, &user, sql, id)
	return user, err
}

// FindUserByEmail resolves a user identity from an email address.
func FindUserByEmail(ctx context.Context, dbConn *db.DB, email string) (User, error) {
	sql := `SELECT ` + UserColumns + `
		FROM
			users u
		WHERE
			u.email=?
			AND NOT u.is_deleted`

	user := User{}
	err := dbConn.Get(ctx, &user, sql, email)
	if errors.Cause(err) == db.ErrNotFound {
		err = fault.NotFound("user %s unknown", email)
	}
	return user, err
}

// FetchOrder retrieves an order by id.
func FetchOrder(ctx context.Context, dbConn *db.DB, id string) (Order, error) {
	sql := `SELECT ` + OrderColumns + `
		FROM
			orders o
		WHERE
			o.id=?`

	order := Order{}
	err := dbConn.Get(ctx, &order, sql, id)
	return order, err
}

// SetOrderStatus transitions an order's status and records the transaction
// that paid for it. Returns true if this call performed the transition. The
// update is conditional on the status actually changing, so duplicate
// settlement deliveries observe false and apply no downstream effects.
func SetOrderStatus(ctx context.Context, dbConn *db.DB, id, status,
	transactionHash string) (bool, error) {

	sql := `UPDATE orders
		SET status=?, transaction_hash=?, date_modified=?
		WHERE id=? AND status <> ?`

	count, err := dbConn.ExecuteCount(ctx, sql, status, transactionHash, time.Now(), id, status)
	if err != nil {
		return false, err
	}

	return count == 1, nil
}

// ListItems returns the line items of an order.
func ListItems(ctx context.Context, dbConn *db.DB, orderID string) ([]Item, error) {
	sql := `SELECT
			i.order_id,
			i.product_id,
			i.quantity,
			i.price_usd
		FROM
			order_items i
		WHERE
			i.order_id=?`

	items := []Item{}
	err := dbConn.Select(ctx, &items, sql, orderID)
	return items, err
}

// AdjustProductCounts applies a delta to a product's stock and sold counters
// in a single update so concurrent settlements never lose increments.
func AdjustProductCounts(ctx context.Context, dbConn *db.DB, productID string,
	stockDelta, soldDelta int64) error {

	sql := `UPDATE products
		SET stock = stock + ?, sold = sold + ?, date_modified=?
		WHERE id=?`

	count, err := dbConn.ExecuteCount(ctx, sql, stockDelta, soldDelta, time.Now(), productID)
	if err != nil {
		return err
	}
	if count == 0 {
		return errors.Wrapf(db.ErrNotFound, "product %s", productID)
	}

	return nil
}

// Store adapts the package functions to the settlement coordinator's
// collaborator contract.
type Store struct {
	DB *db.DB
}

func (s *Store) SetOrderStatus(ctx context.Context, orderID, status,
	transactionHash string) (bool, error) {
	return SetOrderStatus(ctx, s.DB, orderID, status, transactionHash)
}

func (s *Store) ListItems(ctx context.Context, orderID string) ([]Item, error) {
	return ListItems(ctx, s.DB, orderID)
}

func (s *Store) AdjustStock(ctx context.Context, productID string, stockDelta,
	soldDelta int64) error {
	return AdjustProductCounts(ctx, s.DB, productID, stockDelta, soldDelta)
}
