package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/coincart/settlement-engine/internal/escrow"
	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/platform/web"
	"github.com/coincart/settlement-engine/internal/rates"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

// Escrows provides support for the escrow lifecycle.
type Escrows struct {
	Config   *web.Config
	MasterDB *db.DB
	Rates    rates.Source
}

// Create opens an escrow in the created state, stamping the USD value at
// creation time.
func (h *Escrows) Create(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.Create")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	var requestData struct {
		SellerID             string                    `json:"seller_id" validate:"required"`
		OrderID              string                    `json:"order_id"`
		Cryptocurrency       string                    `json:"cryptocurrency" validate:"required"`
		Amount               decimal.Decimal           `json:"amount" validate:"required"`
		DepositAddress       string                    `json:"deposit_address" validate:"required"`
		ReleaseAddress       string                    `json:"release_address"`
		RefundAddress        string                    `json:"refund_address"`
		ReleaseType          string                    `json:"release_type" validate:"required"`
		AutoReleaseAfterDays int                       `json:"auto_release_after_days"`
		ReleaseConditions    []escrow.ReleaseCondition `json:"release_conditions"`
		Milestones           []escrow.Milestone        `json:"milestones"`
	}

	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	amountUSD, err := h.quoteUSD(ctx, requestData.Cryptocurrency, requestData.Amount)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	created, err := escrow.Create(ctx, dbConn, escrow.NewEscrow{
		BuyerID:              actor,
		SellerID:             requestData.SellerID,
		OrderID:              requestData.OrderID,
		Cryptocurrency:       requestData.Cryptocurrency,
		Amount:               requestData.Amount,
		DepositAddress:       requestData.DepositAddress,
		ReleaseAddress:       requestData.ReleaseAddress,
		RefundAddress:        requestData.RefundAddress,
		ReleaseType:          requestData.ReleaseType,
		AutoReleaseAfterDays: requestData.AutoReleaseAfterDays,
		ReleaseConditions:    requestData.ReleaseConditions,
		Milestones:           requestData.Milestones,
	}, amountUSD)
	if err != nil {
		return translate(errors.Wrap(err, "create escrow"))
	}

	logger.Info(ctx, "Escrow %s created : %s %s", created.ID, created.Amount.String(),
		created.Cryptocurrency)

	web.Respond(ctx, w, created, http.StatusCreated)
	return nil
}

// Fetch returns an escrow with its conditions, milestones and disputes.
func (h *Escrows) Fetch(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.Fetch")
	defer span.End()

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	found, err := escrow.Fetch(ctx, dbConn, params["id"])
	if err != nil {
		return translate(errors.Wrap(err, "fetch escrow"))
	}

	web.Respond(ctx, w, found, http.StatusOK)
	return nil
}

// Fund records an observed deposit confirmation against the escrow. Requires
// the configured number of chain confirmations.
func (h *Escrows) Fund(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.Fund")
	defer span.End()

	var requestData struct {
		TransactionHash string `json:"transaction_hash" validate:"required"`
		Confirmations   int64  `json:"confirmations"`
	}

	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	if requestData.Confirmations < int64(h.Config.MinConfirmations) {
		return translate(fault.Validation("funding requires %d confirmations, got %d",
			h.Config.MinConfirmations, requestData.Confirmations))
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	funded, err := escrow.Fund(ctx, dbConn, &order.Store{DB: dbConn}, params["id"],
		requestData.TransactionHash, requestData.Confirmations)
	if err != nil {
		return translate(errors.Wrap(err, "fund escrow"))
	}

	web.Respond(ctx, w, funded, http.StatusOK)
	return nil
}

// Release moves funds to the seller per the escrow's release type policy.
func (h *Escrows) Release(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.Release")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	released, err := escrow.Release(ctx, dbConn, params["id"], actor, isAdmin(r))
	if err != nil {
		return translate(errors.Wrap(err, "release escrow"))
	}

	web.Respond(ctx, w, released, http.StatusOK)
	return nil
}

// Refund returns funds to the buyer. Seller or admin only.
func (h *Escrows) Refund(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.Refund")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	refunded, err := escrow.Refund(ctx, dbConn, params["id"], actor, isAdmin(r))
	if err != nil {
		return translate(errors.Wrap(err, "refund escrow"))
	}

	web.Respond(ctx, w, refunded, http.StatusOK)
	return nil
}

// Cancel abandons an escrow. Either party before funding, admin after.
func (h *Escrows) Cancel(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.Cancel")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	cancelled, err := escrow.Cancel(ctx, dbConn, params["id"], actor, isAdmin(r))
	if err != nil {
		return translate(errors.Wrap(err, "cancel escrow"))
	}

	web.Respond(ctx, w, cancelled, http.StatusOK)
	return nil
}

// CompleteMilestone marks a milestone's deliverable done. Seller or admin.
func (h *Escrows) CompleteMilestone(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.CompleteMilestone")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	idx, err := milestoneIndex(params)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	updated, err := escrow.CompleteMilestone(ctx, dbConn, params["id"], idx, actor, isAdmin(r))
	if err != nil {
		return translate(errors.Wrap(err, "complete milestone"))
	}

	web.Respond(ctx, w, updated, http.StatusOK)
	return nil
}

// ReleaseMilestone releases a completed milestone's funds. Buyer or admin.
func (h *Escrows) ReleaseMilestone(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.ReleaseMilestone")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	idx, err := milestoneIndex(params)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	updated, err := escrow.ReleaseMilestone(ctx, dbConn, params["id"], idx, actor, isAdmin(r))
	if err != nil {
		return translate(errors.Wrap(err, "release milestone"))
	}

	web.Respond(ctx, w, updated, http.StatusOK)
	return nil
}

// FileDispute opens arbitration on a funded escrow. Buyer or seller only.
func (h *Escrows) FileDispute(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.FileDispute")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	var requestData escrow.NewDispute
	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	updated, err := escrow.FileDispute(ctx, dbConn, params["id"], actor, requestData)
	if err != nil {
		return translate(errors.Wrap(err, "file dispute"))
	}

	web.Respond(ctx, w, updated, http.StatusCreated)
	return nil
}

// ResolveDispute records an admin's decision and moves the escrow to its
// final state.
func (h *Escrows) ResolveDispute(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Escrows.ResolveDispute")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	var requestData escrow.Resolution
	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	updated, err := escrow.ResolveDispute(ctx, dbConn, params["id"], actor, requestData)
	if err != nil {
		return translate(errors.Wrap(err, "resolve dispute"))
	}

	web.Respond(ctx, w, updated, http.StatusOK)
	return nil
}

// quoteUSD converts a crypto amount to its current USD value. A quote failure
// surfaces as an external fault so the caller can retry.
func (h *Escrows) quoteUSD(ctx context.Context, symbol string,
	amount decimal.Decimal) (decimal.Decimal, error) {

	price, err := h.Rates.GetCryptoPrice(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "Price quote for %s : %s", symbol, err)
		return decimal.Zero, fault.External("price quote for %s unavailable", symbol)
	}

	return price.Mul(amount), nil
}

// milestoneIndex parses the :index route parameter.
func milestoneIndex(params map[string]string) (int, error) {
	idx, err := strconv.Atoi(params["index"])
	if err != nil {
		return 0, fault.Validation("milestone index %q is not a number", params["index"])
	}
	return idx, nil
}
