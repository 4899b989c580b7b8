package settlement

import (
	"context"

	"github.com/coincart/settlement-engine/internal/order"
)

// OrderStore is the collaborator that owns orders and product counters.
// Settlement mutates them but never owns them.
type OrderStore interface {
	// SetOrderStatus transitions the order and returns true if this call
	// performed the transition.
	SetOrderStatus(ctx context.Context, orderID, status, transactionHash string) (bool, error)

	// ListItems returns the order's line items.
	ListItems(ctx context.Context, orderID string) ([]order.Item, error)

	// AdjustStock applies deltas to a product's stock and sold counters as a
	// single atomic update.
	AdjustStock(ctx context.Context, productID string, stockDelta, soldDelta int64) error
}
