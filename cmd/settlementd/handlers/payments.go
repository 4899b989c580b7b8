package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/platform/web"
	"github.com/coincart/settlement-engine/internal/settlement"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

// Payments provides support for the payment ledger.
type Payments struct {
	Config   *web.Config
	MasterDB *db.DB
}

// Confirm records an observed on-chain payment and settles it. The
// transaction hash is the idempotency key, so watcher replays are no-op
// successes.
func (h *Payments) Confirm(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Payments.Confirm")
	defer span.End()

	var requestData struct {
		TransactionHash string          `json:"transaction_hash" validate:"required"`
		OrderID         string          `json:"order_id" validate:"required"`
		Cryptocurrency  string          `json:"cryptocurrency" validate:"required"`
		Amount          decimal.Decimal `json:"amount" validate:"required"`
		AmountUSD       decimal.Decimal `json:"amount_usd"`
		Confirmations   int64           `json:"confirmations"`
	}

	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	if requestData.Confirmations < int64(h.Config.MinConfirmations) {
		return translate(fault.Validation("settlement requires %d confirmations, got %d",
			h.Config.MinConfirmations, requestData.Confirmations))
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	result, err := settlement.Settle(ctx, dbConn, &order.Store{DB: dbConn},
		requestData.TransactionHash, settlement.Effects{
			OrderID:        requestData.OrderID,
			OrderStatus:    order.StatusPaid,
			Cryptocurrency: requestData.Cryptocurrency,
			Amount:         requestData.Amount,
			AmountUSD:      requestData.AmountUSD,
			Confirmations:  requestData.Confirmations,
			ConfirmedAt:    time.Now(),
		})
	if err != nil {
		return translate(errors.Wrap(err, "settle payment"))
	}

	if result.AlreadySettled {
		logger.Info(ctx, "Payment %s already settled", requestData.TransactionHash)
	} else {
		logger.Info(ctx, "Payment %s settled for order %s", requestData.TransactionHash,
			requestData.OrderID)
	}

	web.Respond(ctx, w, result, http.StatusOK)
	return nil
}

// Fetch returns a ledger entry by transaction hash.
func (h *Payments) Fetch(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Payments.Fetch")
	defer span.End()

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	payment, err := settlement.FetchPayment(ctx, dbConn, params["hash"])
	if err != nil {
		return translate(errors.Wrap(err, "fetch payment"))
	}

	web.Respond(ctx, w, payment, http.StatusOK)
	return nil
}
