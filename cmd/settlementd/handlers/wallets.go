package handlers

import (
	"context"
	"net/http"

	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/platform/web"
	"github.com/coincart/settlement-engine/internal/wallet"

	"github.com/pkg/errors"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

// Wallets provides support for managing multisig wallets.
type Wallets struct {
	Config   *web.Config
	MasterDB *db.DB
}

// Create registers a new multisig wallet owned by the caller.
func (h *Wallets) Create(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Wallets.Create")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	var requestData struct {
		Cryptocurrency     string   `json:"cryptocurrency" validate:"required"`
		Address            string   `json:"address" validate:"required"`
		SignerEmails       []string `json:"signer_emails" validate:"required"`
		RequiredSignatures int      `json:"required_signatures" validate:"required"`
		PublicKeys         []string `json:"public_keys"`
	}

	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	created, err := wallet.Create(ctx, dbConn, wallet.NewWallet{
		OwnerID:            actor,
		Cryptocurrency:     requestData.Cryptocurrency,
		Address:            requestData.Address,
		SignerEmails:       requestData.SignerEmails,
		RequiredSignatures: requestData.RequiredSignatures,
		PublicKeys:         requestData.PublicKeys,
	})
	if err != nil {
		return translate(errors.Wrap(err, "create wallet"))
	}

	logger.Info(ctx, "Wallet %s created for %s", created.ID, actor)

	web.Respond(ctx, w, created, http.StatusCreated)
	return nil
}

// List returns the wallets owned by the caller.
func (h *Wallets) List(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Wallets.List")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	wallets, err := wallet.ListByOwner(ctx, dbConn, actor)
	if err != nil {
		return translate(errors.Wrap(err, "list wallets"))
	}

	web.Respond(ctx, w, wallets, http.StatusOK)
	return nil
}

// Fetch returns a wallet with its signer roster. Owner and signers only.
func (h *Wallets) Fetch(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Wallets.Fetch")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	found, err := wallet.Fetch(ctx, dbConn, params["id"])
	if err != nil {
		return translate(errors.Wrap(err, "fetch wallet"))
	}

	if !found.HasAccess(actor) && !isAdmin(r) {
		return translate(fault.Forbidden("user %s has no access to wallet %s", actor, found.ID))
	}

	web.Respond(ctx, w, found, http.StatusOK)
	return nil
}

// AddSigner adds a user to the wallet's signer roster. Owner only.
func (h *Wallets) AddSigner(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Wallets.AddSigner")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	var requestData struct {
		Email     string `json:"email" validate:"required"`
		PublicKey string `json:"public_key"`
	}

	if err := web.Unmarshal(r.Body, &requestData); err != nil {
		return translate(errors.Wrap(err, "unmarshal request"))
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	signer, err := wallet.AddSigner(ctx, dbConn, params["id"], actor, requestData.Email,
		requestData.PublicKey)
	if err != nil {
		return translate(errors.Wrap(err, "add signer"))
	}

	web.Respond(ctx, w, signer, http.StatusCreated)
	return nil
}

// RemoveSigner removes a user from the roster, as long as the remaining
// roster still satisfies the wallet's quorum. Owner only.
func (h *Wallets) RemoveSigner(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Wallets.RemoveSigner")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	if err := wallet.RemoveSigner(ctx, dbConn, params["id"], actor, params["uid"]); err != nil {
		return translate(errors.Wrap(err, "remove signer"))
	}

	web.Respond(ctx, w, nil, http.StatusNoContent)
	return nil
}

// Deactivate soft-deletes a wallet. Owner only. The record survives so
// historical approvals keep a valid reference.
func (h *Wallets) Deactivate(ctx context.Context, w http.ResponseWriter, r *http.Request,
	params map[string]string) error {

	ctx, span := trace.StartSpan(ctx, "handlers.Wallets.Deactivate")
	defer span.End()

	actor, err := actorID(r)
	if err != nil {
		return translate(err)
	}

	dbConn := h.MasterDB.Copy()
	defer dbConn.Close()

	if err := wallet.Deactivate(ctx, dbConn, params["id"], actor); err != nil {
		return translate(errors.Wrap(err, "deactivate wallet"))
	}

	web.Respond(ctx, w, nil, http.StatusNoContent)
	return nil
}
