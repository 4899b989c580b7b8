package wallet

import (
	"context"
	"time"

	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

const (
	WalletColumns = `
		w.id,
		w.owner_id,
		w.cryptocurrency,
		w.address,
		w.required_signatures,
		w.is_active,
		w.date_created,
		w.date_modified`

	SignerColumns = `
		s.wallet_id,
		s.user_id,
		s.email,
		s.name,
		s.public_key,
		s.date_created`
)

// NewWallet is the request to create a multisig wallet. Signers are resolved
// by email through the identity collaborator.
type NewWallet struct {
	OwnerID            string   `json:"owner_id" validate:"required"`
	Cryptocurrency     string   `json:"cryptocurrency" validate:"required"`
	Address            string   `json:"address" validate:"required"`
	SignerEmails       []string `json:"signer_emails" validate:"required"`
	RequiredSignatures int      `json:"required_signatures" validate:"required"`
	PublicKeys         []string `json:"public_keys"`
}

// ValidateQuorum enforces the quorum bounds: at least 2 signers and
// 2 <= requiredSignatures <= signer count.
func ValidateQuorum(signerCount, requiredSignatures int) error {
	if signerCount < 2 {
		return fault.Validation("multisig wallet requires at least 2 signers, got %d", signerCount)
	}
	if requiredSignatures < 2 || requiredSignatures > signerCount {
		return fault.Validation("required signatures %d outside [2, %d]",
			requiredSignatures, signerCount)
	}
	return nil
}

// Create registers a new multisig wallet with its signer roster.
func Create(ctx context.Context, dbConn *db.DB, req NewWallet) (MultiSigWallet, error) {
	ctx, span := trace.StartSpan(ctx, "internal.wallet.Create")
	defer span.End()

	if err := ValidateQuorum(len(req.SignerEmails), req.RequiredSignatures); err != nil {
		return MultiSigWallet{}, err
	}

	// Resolve all signer identities before any write.
	signers := make([]Signer, 0, len(req.SignerEmails))
	seen := make(map[string]bool, len(req.SignerEmails))
	for i, email := range req.SignerEmails {
		user, err := order.FindUserByEmail(ctx, dbConn, email)
		if err != nil {
			return MultiSigWallet{}, errors.Wrap(err, "resolve signer")
		}
		if seen[user.ID] {
			return MultiSigWallet{}, fault.Conflict("duplicate signer %s", email)
		}
		seen[user.ID] = true

		signer := Signer{
			UserID:      user.ID,
			Email:       user.Email,
			Name:        user.Name,
			DateCreated: time.Now(),
		}
		if i < len(req.PublicKeys) {
			signer.PublicKey = req.PublicKeys[i]
		}
		signers = append(signers, signer)
	}

	now := time.Now()
	wallet := MultiSigWallet{
		ID:                 uuid.New().String(),
		OwnerID:            req.OwnerID,
		Cryptocurrency:     req.Cryptocurrency,
		Address:            req.Address,
		RequiredSignatures: req.RequiredSignatures,
		IsActive:           true,
		DateCreated:        now,
		DateModified:       now,
	}

	session := dbConn.Copy()
	defer session.Close()
	session.BeginTransaction()

	sql := `INSERT
		INTO wallets (
			id,
			owner_id,
			cryptocurrency,
			address,
			required_signatures,
			is_active,
			date_created,
			date_modified
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if err := session.Execute(ctx, sql,
		wallet.ID,
		wallet.OwnerID,
		wallet.Cryptocurrency,
		wallet.Address,
		wallet.RequiredSignatures,
		wallet.IsActive,
		wallet.DateCreated,
		wallet.DateModified); err != nil {

		session.Rollback()
		if db.IsUniqueViolation(err) {
			return MultiSigWallet{}, fault.Conflict("address %s already registered", req.Address)
		}
		return MultiSigWallet{}, errors.Wrap(err, "insert wallet")
	}

	for i := range signers {
		signers[i].WalletID = wallet.ID
		if err := insertSigner(ctx, session, signers[i]); err != nil {
			session.Rollback()
			return MultiSigWallet{}, errors.Wrap(err, "insert signer")
		}
	}

	if err := session.Commit(); err != nil {
		return MultiSigWallet{}, errors.Wrap(err, "commit wallet")
	}

	wallet.Signers = signers
	return wallet, nil
}

func insertSigner(ctx context.Context, dbConn *db.DB, signer Signer) error {
	sql := `INSERT
		INTO wallet_signers (
			wallet_id,
			user_id,
			email,
			name,
			public_key,
			date_created
		)
		VALUES (?, ?, ?, ?, ?, ?)`

	return dbConn.Execute(ctx, sql,
		signer.WalletID,
		signer.UserID,
		signer.Email,
		signer.Name,
		signer.PublicKey,
		signer.DateCreated)
}

// Fetch retrieves a wallet with its roster.
func Fetch(ctx context.Context, dbConn *db.DB, id string) (MultiSigWallet, error) {
	sql := `SELECT ` + WalletColumns + `
		FROM
			wallets w
		WHERE
			w.id=?`

	wallet := MultiSigWallet{}
	if err := dbConn.Get(ctx, &wallet, sql, id); err != nil {
		if errors.Cause(err) == db.ErrNotFound {
			err = fault.NotFound("wallet %s unknown", id)
		}
		return wallet, err
	}

	signers, err := FetchSigners(ctx, dbConn, id)
	if err != nil {
		return wallet, errors.Wrap(err, "fetch signers")
	}
	wallet.Signers = signers

	return wallet, nil
}

// FetchSigners returns the roster for a wallet, in join order.
func FetchSigners(ctx context.Context, dbConn *db.DB, walletID string) ([]Signer, error) {
	sql := `SELECT ` + SignerColumns + `
		FROM
			wallet_signers s
		WHERE
			s.wallet_id=?
		ORDER BY
			s.date_created`

	signers := []Signer{}
	err := dbConn.Select(ctx, &signers, sql, walletID)
	return signers, err
}

// ListByOwner returns all wallets owned by a user, active and inactive.
func ListByOwner(ctx context.Context, dbConn *db.DB, ownerID string) ([]MultiSigWallet, error) {
	sql := `SELECT ` + WalletColumns + `
		FROM
			wallets w
		WHERE
			w.owner_id=?
		ORDER BY
			w.date_created DESC`

	wallets := []MultiSigWallet{}
	err := dbConn.Select(ctx, &wallets, sql, ownerID)
	return wallets, err
}

// AddSigner adds a user to an active wallet's roster. Owner only.
func AddSigner(ctx context.Context, dbConn *db.DB, walletID, actorID, email,
	publicKey string) (Signer, error) {

	ctx, span := trace.StartSpan(ctx, "internal.wallet.AddSigner")
	defer span.End()

	wallet, err := Fetch(ctx, dbConn, walletID)
	if err != nil {
		return Signer{}, err
	}

	if wallet.OwnerID != actorID {
		return Signer{}, fault.Forbidden("only the wallet owner may modify the roster")
	}
	if !wallet.IsActive {
		return Signer{}, fault.State("wallet %s is deactivated", walletID)
	}

	user, err := order.FindUserByEmail(ctx, dbConn, email)
	if err != nil {
		return Signer{}, errors.Wrap(err, "resolve signer")
	}

	signer := Signer{
		WalletID:    walletID,
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		PublicKey:   publicKey,
		DateCreated: time.Now(),
	}

	if err := insertSigner(ctx, dbConn, signer); err != nil {
		if db.IsUniqueViolation(err) {
			return Signer{}, fault.Conflict("user %s is already a signer", email)
		}
		return Signer{}, errors.Wrap(err, "insert signer")
	}

	return signer, nil
}

// RemoveSigner removes a user from an active wallet's roster. Owner only.
// Removal that would leave fewer signers than the required signature count is
// rejected and leaves the roster unchanged.
func RemoveSigner(ctx context.Context, dbConn *db.DB, walletID, actorID, userID string) error {
	ctx, span := trace.StartSpan(ctx, "internal.wallet.RemoveSigner")
	defer span.End()

	wallet, err := Fetch(ctx, dbConn, walletID)
	if err != nil {
		return err
	}

	if wallet.OwnerID != actorID {
		return fault.Forbidden("only the wallet owner may modify the roster")
	}
	if !wallet.IsActive {
		return fault.State("wallet %s is deactivated", walletID)
	}
	if !wallet.IsSigner(userID) {
		return fault.NotFound("user %s is not a signer of wallet %s", userID, walletID)
	}

	// The subquery count keeps the quorum invariant under concurrent
	// removals: the delete only happens while enough signers remain.
	sql := `DELETE FROM wallet_signers
		WHERE wallet_id=? AND user_id=?
		AND (SELECT COUNT(*) FROM wallet_signers WHERE wallet_id=?) > ?`

	count, err := dbConn.ExecuteCount(ctx, sql, walletID, userID, walletID,
		wallet.RequiredSignatures)
	if err != nil {
		return errors.Wrap(err, "delete signer")
	}
	if count == 0 {
		return fault.Validation("removing signer would leave fewer signers than the %d required",
			wallet.RequiredSignatures)
	}

	return touch(ctx, dbConn, walletID)
}

// Deactivate soft-deletes a wallet. Owner only.
func Deactivate(ctx context.Context, dbConn *db.DB, walletID, actorID string) error {
	ctx, span := trace.StartSpan(ctx, "internal.wallet.Deactivate")
	defer span.End()

	wallet, err := Fetch(ctx, dbConn, walletID)
	if err != nil {
		return err
	}

	if wallet.OwnerID != actorID {
		return fault.Forbidden("only the wallet owner may deactivate the wallet")
	}

	sql := `UPDATE wallets SET is_active=?, date_modified=? WHERE id=? AND is_active`

	count, err := dbConn.ExecuteCount(ctx, sql, false, time.Now(), walletID)
	if err != nil {
		return errors.Wrap(err, "deactivate wallet")
	}
	if count == 0 {
		return fault.State("wallet %s is already deactivated", walletID)
	}

	return nil
}

// HasAccess returns true if the user is the wallet owner or any signer. Used
// as the authorization gate by the approval workflow.
func HasAccess(ctx context.Context, dbConn *db.DB, walletID, userID string) (bool, error) {
	wallet, err := Fetch(ctx, dbConn, walletID)
	if err != nil {
		return false, err
	}

	return wallet.HasAccess(userID), nil
}

func touch(ctx context.Context, dbConn *db.DB, walletID string) error {
	sql := `UPDATE wallets SET date_modified=? WHERE id=?`
	return dbConn.Execute(ctx, sql, time.Now(), walletID)
}
