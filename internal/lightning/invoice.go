package lightning

import (
	"context"
	"time"

	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/settlement"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

const InvoiceColumns = `
		i.payment_hash,
		i.payment_request,
		i.order_id,
		i.amount_sat,
		i.amount_msat,
		i.amount_usd,
		i.description,
		i.status,
		i.expires_at,
		i.paid_at,
		i.date_created`

// NewInvoice is the request to mint a Lightning invoice for an order.
type NewInvoice struct {
	OrderID     string `json:"order_id" validate:"required"`
	AmountSat   int64  `json:"amount_sat" validate:"required"`
	Description string `json:"description"`
}

// CreateInvoice mints an invoice for an order. Creation is idempotent per
// order: an existing pending non-expired invoice is returned unchanged, and
// an order that already has a paid invoice is a conflict.
func CreateInvoice(ctx context.Context, dbConn *db.DB, node NodeClient, req NewInvoice,
	amountUSD decimal.Decimal, expiry time.Duration) (Invoice, error) {

	ctx, span := trace.StartSpan(ctx, "internal.lightning.CreateInvoice")
	defer span.End()

	if req.AmountSat <= 0 {
		return Invoice{}, fault.Validation("invoice amount must be positive satoshis")
	}

	if _, err := order.FetchOrder(ctx, dbConn, req.OrderID); err != nil {
		if errors.Cause(err) == db.ErrNotFound {
			return Invoice{}, fault.NotFound("order %s unknown", req.OrderID)
		}
		return Invoice{}, errors.Wrap(err, "fetch order")
	}

	existing, err := fetchLatestForOrder(ctx, dbConn, req.OrderID)
	if err != nil && errors.Cause(err) != db.ErrNotFound {
		return Invoice{}, errors.Wrap(err, "fetch existing invoice")
	}
	if err == nil {
		switch {
		case existing.Status == StatusPaid:
			return Invoice{}, fault.Conflict("order %s already has a paid invoice", req.OrderID)
		case existing.Status == StatusPending && !existing.CheckExpiration(time.Now()):
			return existing, nil
		}
	}

	nodeInvoice, err := node.CreateInvoice(ctx, req.AmountSat*1000, req.Description, expiry)
	if err != nil {
		return Invoice{}, fault.External("lightning node create invoice : %s", err)
	}

	now := time.Now()
	invoice := Invoice{
		PaymentHash:    nodeInvoice.PaymentHash,
		PaymentRequest: nodeInvoice.PaymentRequest,
		OrderID:        req.OrderID,
		AmountSat:      req.AmountSat,
		AmountMsat:     req.AmountSat * 1000,
		AmountUSD:      amountUSD,
		Description:    req.Description,
		Status:         StatusPending,
		ExpiresAt:      now.Add(expiry),
		DateCreated:    now,
	}

	sql := `INSERT
		INTO lightning_invoices (
			payment_hash,
			payment_request,
			order_id,
			amount_sat,
			amount_msat,
			amount_usd,
			description,
			status,
			expires_at,
			paid_at,
			date_created
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if err := dbConn.Execute(ctx, sql,
		invoice.PaymentHash,
		invoice.PaymentRequest,
		invoice.OrderID,
		invoice.AmountSat,
		invoice.AmountMsat,
		invoice.AmountUSD,
		invoice.Description,
		invoice.Status,
		invoice.ExpiresAt,
		time.Time{},
		invoice.DateCreated); err != nil {

		if db.IsUniqueViolation(err) {
			return Invoice{}, fault.Conflict("payment hash %s already exists",
				invoice.PaymentHash)
		}
		return Invoice{}, errors.Wrap(err, "insert invoice")
	}

	return invoice, nil
}

// FetchInvoice retrieves an invoice by payment hash.
func FetchInvoice(ctx context.Context, dbConn *db.DB, paymentHash string) (Invoice, error) {
	sql := `SELECT ` + InvoiceColumns + `
		FROM
			lightning_invoices i
		WHERE
			i.payment_hash=?`

	invoice := Invoice{}
	err := dbConn.Get(ctx, &invoice, sql, paymentHash)
	if errors.Cause(err) == db.ErrNotFound {
		err = fault.NotFound("invoice %s unknown", paymentHash)
	}
	return invoice, err
}

func fetchLatestForOrder(ctx context.Context, dbConn *db.DB, orderID string) (Invoice, error) {
	sql := `SELECT ` + InvoiceColumns + `
		FROM
			lightning_invoices i
		WHERE
			i.order_id=?
		ORDER BY
			i.date_created DESC
		LIMIT 1`

	invoice := Invoice{}
	err := dbConn.Get(ctx, &invoice, sql, orderID)
	return invoice, err
}

// ConfirmPayment verifies an invoice against the node and settles it. The
// pending -> paid transition is a conditional update keyed on the pending
// status; a replayed confirmation settles exactly once.
func ConfirmPayment(ctx context.Context, dbConn *db.DB, node NodeClient,
	orders settlement.OrderStore, paymentHash string) (Invoice, settlement.Result, error) {

	ctx, span := trace.StartSpan(ctx, "internal.lightning.ConfirmPayment")
	defer span.End()

	invoice, err := FetchInvoice(ctx, dbConn, paymentHash)
	if err != nil {
		return Invoice{}, settlement.Result{}, err
	}

	switch invoice.Status {
	case StatusExpired:
		return Invoice{}, settlement.Result{}, fault.State("invoice %s is expired", paymentHash)
	case StatusPending:
		if invoice.CheckExpiration(time.Now()) {
			if err := markExpired(ctx, dbConn, paymentHash); err != nil {
				return Invoice{}, settlement.Result{}, errors.Wrap(err, "mark expired")
			}
			return Invoice{}, settlement.Result{}, fault.State("invoice %s is expired", paymentHash)
		}
	}

	// Ask the node before trusting the caller. Settlement does not
	// re-verify authenticity, only idempotency.
	status, err := node.GetInvoiceStatus(ctx, paymentHash)
	if err != nil {
		return Invoice{}, settlement.Result{}, fault.External(
			"lightning node invoice status : %s", err)
	}
	if status.Status != StatusPaid {
		return Invoice{}, settlement.Result{}, fault.State(
			"node reports invoice %s as %s, not paid", paymentHash, status.Status)
	}

	paidAt := status.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	sql := `UPDATE lightning_invoices
		SET status=?, paid_at=?
		WHERE payment_hash=? AND status=?`

	count, err := dbConn.ExecuteCount(ctx, sql, StatusPaid, paidAt, paymentHash, StatusPending)
	if err != nil {
		return Invoice{}, settlement.Result{}, errors.Wrap(err, "mark paid")
	}
	if count == 0 {
		logger.Info(ctx, "Invoice %s already marked paid", paymentHash)
	}

	amount := decimal.New(invoice.AmountSat, -8) // satoshis to BTC
	result, err := settlement.Settle(ctx, dbConn, orders, paymentHash, settlement.Effects{
		OrderID:        invoice.OrderID,
		OrderStatus:    order.StatusPaid,
		Cryptocurrency: "BTC-LN",
		Amount:         amount,
		AmountUSD:      invoice.AmountUSD,
		Confirmations:  1,
		ConfirmedAt:    paidAt,
	})
	if err != nil {
		return Invoice{}, settlement.Result{}, errors.Wrap(err, "settle invoice")
	}

	invoice.Status = StatusPaid
	invoice.PaidAt = paidAt
	return invoice, result, nil
}

func markExpired(ctx context.Context, dbConn *db.DB, paymentHash string) error {
	sql := `UPDATE lightning_invoices
		SET status=?
		WHERE payment_hash=? AND status=?`

	_, err := dbConn.ExecuteCount(ctx, sql, StatusExpired, paymentHash, StatusPending)
	return err
}

// ExpireSweep transitions every overdue pending invoice to expired. Run
// periodically by the background worker.
func ExpireSweep(ctx context.Context, dbConn *db.DB, now time.Time) (int64, error) {
	ctx, span := trace.StartSpan(ctx, "internal.lightning.ExpireSweep")
	defer span.End()

	sql := `UPDATE lightning_invoices
		SET status=?
		WHERE status=? AND expires_at < ?`

	return dbConn.ExecuteCount(ctx, sql, StatusExpired, StatusPending, now)
}
