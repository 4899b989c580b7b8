package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coincart/settlement-engine/internal/lightning"
	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/platform/web"
	"github.com/coincart/settlement-engine/internal/rates"
	"github.com/coincart/settlement-engine/internal/settlement"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

// Lightning provides support for the Lightning invoice lifecycle.
type Lightning struct {
	Config   *web.Config
	MasterDB *db.DB
	Node     lightning.NodeClient
	Rates    rates.Source

	// Expiry is the lifetime given to newly minted invoices.
	Expiry time.Duration
}

// CreateInvoice mints an invoice for an order. Idempotent per order: an
// existing pending non-expired invoice is returned unchanged.
func (h *Lightning) CreateInvoice(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Lightning.CreateInvoice")
	defer span.End()

	var requestData lightning.NewInvoice
	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	price, err := h.Rates.GetCryptoPrice(ctx, "BTC")
	if err != nil {
		logger.Warn(ctx, "Price quote for BTC : %s", err)
		return translate(fault.External("price quote for BTC unavailable"))
	}
	amountUSD := price.Mul(decimal.New(requestData.AmountSat, -8))

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	invoice, err := lightning.CreateInvoice(ctx, dbConn, h.Node, requestData, amountUSD, h.Expiry)
	if err != nil {
		return translate(errors.Wrap(err, "create invoice"))
	}

	logger.Info(ctx, "Invoice %s created for order %s", invoice.PaymentHash, invoice.OrderID)

	web.Respond(ctx, w, invoice, http.StatusCreated)
	return nil
}

// FetchInvoice returns an invoice by payment hash.
func (h *Lightning) FetchInvoice(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Lightning.FetchInvoice")
	defer span.End()

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	invoice, err := lightning.FetchInvoice(ctx, dbConn, params["hash"])
	if err != nil {
		return translate(errors.Wrap(err, "fetch invoice"))
	}

	web.Respond(ctx, w, invoice, http.StatusOK)
	return nil
}

// ConfirmPayment checks the node for payment and settles the invoice. The
// node is the source of truth; replays are no-op successes.
func (h *Lightning) ConfirmPayment(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Lightning.ConfirmPayment")
	defer span.End()

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	invoice, result, err := lightning.ConfirmPayment(ctx, dbConn, h.Node,
		&order.Store{DB: dbConn}, params["hash"])
	if err != nil {
		return translate(errors.Wrap(err, "confirm payment"))
	}

	response := struct {
		Invoice    lightning.Invoice `json:"invoice"`
		Settlement settlement.Result `json:"settlement"`
	}{
		Invoice:    invoice,
		Settlement: result,
	}

	web.Respond(ctx, w, response, http.StatusOK)
	return nil
}
