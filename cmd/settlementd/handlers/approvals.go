package handlers

import (
	"context"
	"net/http"

	"github.com/coincart/settlement-engine/internal/approval"
	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/web"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

// Approvals provides support for the transaction approval workflow.
type Approvals struct {
	Config   *web.Config
	MasterDB *db.DB
}

// Propose creates a transaction approval on a wallet the caller can access.
func (h *Approvals) Propose(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Approvals.Propose")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	var requestData struct {
		WalletID  string          `json:"wallet_id" validate:"required"`
		OrderID   string          `json:"order_id"`
		Amount    decimal.Decimal `json:"amount" validate:"required"`
		ToAddress string          `json:"to_address" validate:"required"`
	}

	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	created, err := approval.Propose(ctx, dbConn, approval.NewApproval{
		WalletID:   requestData.WalletID,
		OrderID:    requestData.OrderID,
		ProposerID: actor,
		Amount:     requestData.Amount,
		ToAddress:  requestData.ToAddress,
	})
	if err != nil {
		return translate(errors.Wrap(err, "propose approval"))
	}

	logger.Info(ctx, "Approval %s proposed on wallet %s", created.ID, created.WalletID)

	web.Respond(ctx, w, created, http.StatusCreated)
	return nil
}

// Fetch returns an approval with its votes.
func (h *Approvals) Fetch(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Approvals.Fetch")
	defer span.End()

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	found, err := approval.Fetch(ctx, dbConn, params["id"])
	if err != nil {
		return translate(errors.Wrap(err, "fetch approval"))
	}

	web.Respond(ctx, w, found, http.StatusOK)
	return nil
}

// ListByWallet returns the approvals proposed against a wallet.
func (h *Approvals) ListByWallet(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Approvals.ListByWallet")
	defer span.End()

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	approvals, err := approval.ListByWallet(ctx, dbConn, params["id"])
	if err != nil {
		return translate(errors.Wrap(err, "list approvals"))
	}

	web.Respond(ctx, w, approvals, http.StatusOK)
	return nil
}

// Vote records the caller's decision on a pending approval.
func (h *Approvals) Vote(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Approvals.Vote")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	var requestData struct {
		Approved  bool   `json:"approved"`
		Signature string `json:"signature"`
		Comment   string `json:"comment"`
	}

	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	updated, err := approval.CastVote(ctx, dbConn, params["id"], approval.NewVote{
		SignerUserID: actor,
		Approved:     requestData.Approved,
		Signature:    requestData.Signature,
		Comment:      requestData.Comment,
	})
	if err != nil {
		return translate(errors.Wrap(err, "cast vote"))
	}

	web.Respond(ctx, w, updated, http.StatusOK)
	return nil
}

// Execute broadcasts an approved transaction and settles it through the
// payment ledger. Retrying with the same transaction hash is a no-op success.
func (h *Approvals) Execute(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Approvals.Execute")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	var requestData struct {
		TransactionHash string `json:"transaction_hash" validate:"required"`
	}

	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	updated, err := approval.Execute(ctx, dbConn, &order.Store{DB: dbConn}, params["id"], actor,
		requestData.TransactionHash)
	if err != nil {
		return translate(errors.Wrap(err, "execute approval"))
	}

	logger.Info(ctx, "Approval %s executed : %s", updated.ID, updated.TransactionHash)

	web.Respond(ctx, w, updated, http.StatusOK)
	return nil
}

// Cancel withdraws a pending or approved transaction. Proposer or wallet
// owner only.
func (h *Approvals) Cancel(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Approvals.Cancel")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	updated, err := approval.Cancel(ctx, dbConn, params["id"], actor)
	if err != nil {
		return translate(errors.Wrap(err, "cancel approval"))
	}

	web.Respond(ctx, w, updated, http.StatusOK)
	return nil
}
