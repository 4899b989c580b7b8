package settlement

import (
	"context"
	"time"

	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

const PaymentColumns = `
		p.id,
		p.transaction_hash,
		p.order_id,
		p.cryptocurrency,
		p.amount,
		p.amount_usd,
		p.status,
		p.confirmations,
		p.effects_applied,
		p.confirmed_at,
		p.date_created`

// Effects describes the ledger entry plus the order and inventory mutations a
// settlement applies.
type Effects struct {
	OrderID        string
	OrderStatus    string
	Cryptocurrency string
	Amount         decimal.Decimal
	AmountUSD      decimal.Decimal
	Confirmations  int64
	ConfirmedAt    time.Time
}

// Validate rejects effects before any mutation is attempted.
func (e Effects) Validate() error {
	if !e.Amount.IsPositive() {
		return fault.Validation("settlement amount must be positive")
	}
	if len(e.Cryptocurrency) == 0 {
		return fault.Validation("cryptocurrency required")
	}
	if len(e.OrderID) > 0 && len(e.OrderStatus) == 0 {
		return fault.Validation("order status required when settling an order")
	}
	return nil
}

// Result is the outcome of a settlement.
type Result struct {
	Payment Payment `json:"payment"`

	// AlreadySettled is true when the external key had been processed before.
	// Callers must treat this as success; the caller may be retrying after a
	// crash between ledger write and downstream effects.
	AlreadySettled bool `json:"already_settled"`
}

// Settle converts an externally observed payment into exactly-once ledger,
// order and inventory state changes. The ledger insert is the commit point:
// a duplicate external key returns the existing entry and performs no further
// mutation.
func Settle(ctx context.Context, dbConn *db.DB, orders OrderStore, externalKey string,
	effects Effects) (Result, error) {

	ctx, span := trace.StartSpan(ctx, "internal.settlement.Settle")
	defer span.End()

	if len(externalKey) == 0 {
		return Result{}, fault.Validation("external key required")
	}
	if err := effects.Validate(); err != nil {
		return Result{}, err
	}

	confirmedAt := effects.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = time.Now()
	}

	payment := Payment{
		ID:              uuid.New().String(),
		TransactionHash: externalKey,
		OrderID:         effects.OrderID,
		Cryptocurrency:  effects.Cryptocurrency,
		Amount:          effects.Amount,
		AmountUSD:       effects.AmountUSD,
		Status:          StatusConfirmed,
		Confirmations:   effects.Confirmations,
		ConfirmedAt:     confirmedAt,
		DateCreated:     time.Now(),
	}

	sql := `INSERT
		INTO payments (
			id,
			transaction_hash,
			order_id,
			cryptocurrency,
			amount,
			amount_usd,
			status,
			confirmations,
			effects_applied,
			confirmed_at,
			date_created
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_hash) DO NOTHING`

	count, err := dbConn.ExecuteCount(ctx, sql,
		payment.ID,
		payment.TransactionHash,
		payment.OrderID,
		payment.Cryptocurrency,
		payment.Amount,
		payment.AmountUSD,
		payment.Status,
		payment.Confirmations,
		false,
		payment.ConfirmedAt,
		payment.DateCreated)
	if err != nil {
		return Result{}, errors.Wrap(err, "insert payment")
	}

	if count == 0 {
		existing, err := FetchPayment(ctx, dbConn, externalKey)
		if err != nil {
			return Result{}, errors.Wrap(err, "fetch existing payment")
		}

		logger.Info(ctx, "Duplicate settlement key %s : returning prior entry", externalKey)
		return Result{Payment: existing, AlreadySettled: true}, nil
	}

	if err := applyEffects(ctx, dbConn, orders, &payment, effects); err != nil {
		// The ledger entry stands regardless; the repair pass retries the
		// downstream mutations.
		logger.Error(ctx, "Settlement effects failed for %s : %s", externalKey, err)
		return Result{Payment: payment}, nil
	}

	payment.EffectsApplied = true
	return Result{Payment: payment}, nil
}

// applyEffects performs the order status transition and inventory adjustments
// for a settled payment, then marks the ledger entry applied. The order
// transition is the gate for inventory: items are adjusted only by the call
// that actually moved the order, so a repair rerun never double-decrements.
func applyEffects(ctx context.Context, dbConn *db.DB, orders OrderStore,
	payment *Payment, effects Effects) error {

	if len(effects.OrderID) > 0 {
		changed, err := orders.SetOrderStatus(ctx, effects.OrderID, effects.OrderStatus,
			payment.TransactionHash)
		if err != nil {
			return errors.Wrap(err, "set order status")
		}

		if changed {
			items, err := orders.ListItems(ctx, effects.OrderID)
			if err != nil {
				return errors.Wrap(err, "list order items")
			}

			for _, item := range items {
				// A missing product must never block recording that the
				// customer paid.
				if err := orders.AdjustStock(ctx, item.ProductID, -item.Quantity,
					item.Quantity); err != nil {
					logger.Warn(ctx, "Skipping stock adjustment for product %s : %s",
						item.ProductID, err)
				}
			}
		}
	}

	sql := `UPDATE payments SET effects_applied=? WHERE transaction_hash=?`
	if err := dbConn.Execute(ctx, sql, true, payment.TransactionHash); err != nil {
		return errors.Wrap(err, "mark effects applied")
	}

	return nil
}

// FetchPayment retrieves a ledger entry by external key.
func FetchPayment(ctx context.Context, dbConn *db.DB, transactionHash string) (Payment, error) {
	sql := `SELECT ` + PaymentColumns + `
		FROM
			payments p
		WHERE
			p.transaction_hash=?`

	payment := Payment{}
	err := dbConn.Get(ctx, &payment, sql, transactionHash)
	return payment, err
}

// Repair retries the downstream effects of settled payments whose effects were
// interrupted. The ledger favors "recorded, inventory eventually consistent"
// over rejecting a paid transaction.
func Repair(ctx context.Context, dbConn *db.DB, orders OrderStore) (int, error) {
	ctx, span := trace.StartSpan(ctx, "internal.settlement.Repair")
	defer span.End()

	sql := `SELECT ` + PaymentColumns + `
		FROM
			payments p
		WHERE
			NOT p.effects_applied`

	pending := []Payment{}
	if err := dbConn.Select(ctx, &pending, sql); err != nil {
		return 0, errors.Wrap(err, "select unapplied payments")
	}

	repaired := 0
	for _, payment := range pending {
		effects := Effects{
			OrderID:        payment.OrderID,
			OrderStatus:    order.StatusPaid,
			Cryptocurrency: payment.Cryptocurrency,
			Amount:         payment.Amount,
			AmountUSD:      payment.AmountUSD,
			Confirmations:  payment.Confirmations,
			ConfirmedAt:    payment.ConfirmedAt,
		}

		p := payment
		if err := applyEffects(ctx, dbConn, orders, &p, effects); err != nil {
			logger.Warn(ctx, "Repair failed for %s : %s", payment.TransactionHash, err)
			continue
		}
		repaired++
	}

	return repaired, nil
}
