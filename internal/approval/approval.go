package approval

import (
	"context"
	"time"

	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/settlement"
	"github.com/coincart/settlement-engine/internal/wallet"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

const (
	ApprovalColumns = `
		a.id,
		a.wallet_id,
		a.order_id,
		a.proposer_id,
		a.amount,
		a.to_address,
		a.required_signatures,
		a.status,
		a.transaction_hash,
		a.date_created,
		a.date_modified`

	VoteColumns = `
		v.approval_id,
		v.signer_user_id,
		v.approved,
		v.signature,
		v.comment,
		v.date_created`
)

// NewApproval is the request to propose a spend from a multisig wallet.
type NewApproval struct {
	WalletID   string          `json:"wallet_id" validate:"required"`
	OrderID    string          `json:"order_id"`
	ProposerID string          `json:"proposer_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	ToAddress  string          `json:"to_address" validate:"required"`
}

// NewVote is one signer's decision on a pending approval.
type NewVote struct {
	SignerUserID string `json:"signer_user_id" validate:"required"`
	Approved     bool   `json:"approved"`
	Signature    string `json:"signature"`
	Comment      string `json:"comment"`
}

// Propose creates a transaction approval, snapshotting the wallet's current
// required signature count onto the record.
func Propose(ctx context.Context, dbConn *db.DB, req NewApproval) (TransactionApproval, error) {
	ctx, span := trace.StartSpan(ctx, "internal.approval.Propose")
	defer span.End()

	if !req.Amount.IsPositive() {
		return TransactionApproval{}, fault.Validation("amount must be positive")
	}

	w, err := wallet.Fetch(ctx, dbConn, req.WalletID)
	if err != nil {
		return TransactionApproval{}, err
	}
	if !w.IsActive {
		return TransactionApproval{}, fault.Validation("wallet %s is deactivated", req.WalletID)
	}
	if !w.HasAccess(req.ProposerID) {
		return TransactionApproval{}, fault.Forbidden(
			"proposer %s is neither owner nor signer of wallet %s", req.ProposerID, req.WalletID)
	}

	now := time.Now()
	approval := TransactionApproval{
		ID:                 uuid.New().String(),
		WalletID:           req.WalletID,
		OrderID:            req.OrderID,
		ProposerID:         req.ProposerID,
		Amount:             req.Amount,
		ToAddress:          req.ToAddress,
		RequiredSignatures: w.RequiredSignatures,
		Status:             StatusPending,
		DateCreated:        now,
		DateModified:       now,
	}

	sql := `INSERT
		INTO approvals (
			id,
			wallet_id,
			order_id,
			proposer_id,
			amount,
			to_address,
			required_signatures,
			status,
			transaction_hash,
			date_created,
			date_modified
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if err := dbConn.Execute(ctx, sql,
		approval.ID,
		approval.WalletID,
		approval.OrderID,
		approval.ProposerID,
		approval.Amount,
		approval.ToAddress,
		approval.RequiredSignatures,
		approval.Status,
		approval.TransactionHash,
		approval.DateCreated,
		approval.DateModified); err != nil {
		return TransactionApproval{}, errors.Wrap(err, "insert approval")
	}

	approval.Votes = []Vote{}
	return approval, nil
}

// Fetch retrieves an approval with its votes.
func Fetch(ctx context.Context, dbConn *db.DB, id string) (TransactionApproval, error) {
	sql := `SELECT ` + ApprovalColumns + `
		FROM
			approvals a
		WHERE
			a.id=?`

	approval := TransactionApproval{}
	if err := dbConn.Get(ctx, &approval, sql, id); err != nil {
		if errors.Cause(err) == db.ErrNotFound {
			err = fault.NotFound("approval %s unknown", id)
		}
		return approval, err
	}

	votes, err := FetchVotes(ctx, dbConn, id)
	if err != nil {
		return approval, errors.Wrap(err, "fetch votes")
	}
	approval.Votes = votes

	return approval, nil
}

// FetchVotes returns the recorded votes for an approval.
func FetchVotes(ctx context.Context, dbConn *db.DB, approvalID string) ([]Vote, error) {
	sql := `SELECT ` + VoteColumns + `
		FROM
			approval_votes v
		WHERE
			v.approval_id=?
		ORDER BY
			v.date_created`

	votes := []Vote{}
	err := dbConn.Select(ctx, &votes, sql, approvalID)
	return votes, err
}

// ListByWallet returns approvals referencing a wallet. This is a lookup, not
// a stored back-pointer; wallets never enumerate their approvals.
func ListByWallet(ctx context.Context, dbConn *db.DB, walletID string) ([]TransactionApproval, error) {
	sql := `SELECT ` + ApprovalColumns + `
		FROM
			approvals a
		WHERE
			a.wallet_id=?
		ORDER BY
			a.date_created DESC`

	approvals := []TransactionApproval{}
	err := dbConn.Select(ctx, &approvals, sql, walletID)
	return approvals, err
}

// CastVote records a signer's decision and recomputes quorum. The quorum
// crossing is a single conditional update keyed on the pending status, so of
// two concurrent votes that each individually cross the threshold exactly one
// performs the pending -> approved transition.
func CastVote(ctx context.Context, dbConn *db.DB, approvalID string,
	req NewVote) (TransactionApproval, error) {

	ctx, span := trace.StartSpan(ctx, "internal.approval.Vote")
	defer span.End()

	approval, err := Fetch(ctx, dbConn, approvalID)
	if err != nil {
		return TransactionApproval{}, err
	}

	if approval.Status != StatusPending {
		return TransactionApproval{}, fault.State("approval %s is %s, voting is closed",
			approvalID, approval.Status)
	}

	w, err := wallet.Fetch(ctx, dbConn, approval.WalletID)
	if err != nil {
		return TransactionApproval{}, err
	}
	if !w.IsSigner(req.SignerUserID) {
		return TransactionApproval{}, fault.Forbidden("user %s is not a signer of wallet %s",
			req.SignerUserID, approval.WalletID)
	}

	sql := `INSERT
		INTO approval_votes (
			approval_id,
			signer_user_id,
			approved,
			signature,
			comment,
			date_created
		)
		VALUES (?, ?, ?, ?, ?, ?)`

	if err := dbConn.Execute(ctx, sql,
		approvalID,
		req.SignerUserID,
		req.Approved,
		req.Signature,
		req.Comment,
		time.Now()); err != nil {

		if db.IsUniqueViolation(err) {
			return TransactionApproval{}, fault.Conflict("signer %s already voted on approval %s",
				req.SignerUserID, approvalID)
		}
		return TransactionApproval{}, errors.Wrap(err, "insert vote")
	}

	votes, err := FetchVotes(ctx, dbConn, approvalID)
	if err != nil {
		return TransactionApproval{}, errors.Wrap(err, "fetch votes")
	}

	if QuorumReached(votes, approval.RequiredSignatures) {
		crossed, err := transition(ctx, dbConn, approvalID, StatusPending, StatusApproved)
		if err != nil {
			return TransactionApproval{}, err
		}
		if crossed {
			logger.Info(ctx, "Approval %s reached quorum %d/%d", approvalID,
				ApproveCount(votes), approval.RequiredSignatures)
		}
	} else if QuorumUnreachable(votes, approval.RequiredSignatures, len(w.Signers)) {
		if _, err := transition(ctx, dbConn, approvalID, StatusPending, StatusRejected); err != nil {
			return TransactionApproval{}, err
		}
	}

	return Fetch(ctx, dbConn, approvalID)
}

// Execute finalizes an approved spend as broadcast. The ledger append shares
// the settlement coordinator's dedup contract: a duplicate transaction hash is
// treated as already executed, not as an error.
func Execute(ctx context.Context, dbConn *db.DB, orders settlement.OrderStore,
	approvalID, actorID, transactionHash string) (TransactionApproval, error) {

	ctx, span := trace.StartSpan(ctx, "internal.approval.Execute")
	defer span.End()

	if len(transactionHash) == 0 {
		return TransactionApproval{}, fault.Validation("transaction hash required")
	}

	approval, err := Fetch(ctx, dbConn, approvalID)
	if err != nil {
		return TransactionApproval{}, err
	}

	if approval.Status != StatusApproved {
		return TransactionApproval{}, fault.State("approval %s is %s, only approved spends execute",
			approvalID, approval.Status)
	}

	hasAccess, err := wallet.HasAccess(ctx, dbConn, approval.WalletID, actorID)
	if err != nil {
		return TransactionApproval{}, err
	}
	if !hasAccess {
		return TransactionApproval{}, fault.Forbidden("user %s has no access to wallet %s",
			actorID, approval.WalletID)
	}

	w, err := wallet.Fetch(ctx, dbConn, approval.WalletID)
	if err != nil {
		return TransactionApproval{}, err
	}

	effects := settlement.Effects{
		OrderID:        approval.OrderID,
		Cryptocurrency: w.Cryptocurrency,
		Amount:         approval.Amount,
	}
	if len(approval.OrderID) > 0 {
		effects.OrderStatus = order.StatusPaid
	}

	result, err := settlement.Settle(ctx, dbConn, orders, transactionHash, effects)
	if err != nil {
		return TransactionApproval{}, errors.Wrap(err, "settle broadcast")
	}
	if result.AlreadySettled {
		logger.Info(ctx, "Broadcast %s already in ledger, marking approval %s executed",
			transactionHash, approvalID)
	}

	sql := `UPDATE approvals
		SET status=?, transaction_hash=?, date_modified=?
		WHERE id=? AND status=?`

	if _, err := dbConn.ExecuteCount(ctx, sql, StatusExecuted, transactionHash, time.Now(),
		approvalID, StatusApproved); err != nil {
		return TransactionApproval{}, errors.Wrap(err, "mark executed")
	}

	return Fetch(ctx, dbConn, approvalID)
}

// Cancel voids a pending or approved spend. Only the proposer or the wallet
// owner may cancel, and never after execution.
func Cancel(ctx context.Context, dbConn *db.DB, approvalID, actorID string) (TransactionApproval, error) {
	ctx, span := trace.StartSpan(ctx, "internal.approval.Cancel")
	defer span.End()

	approval, err := Fetch(ctx, dbConn, approvalID)
	if err != nil {
		return TransactionApproval{}, err
	}

	w, err := wallet.Fetch(ctx, dbConn, approval.WalletID)
	if err != nil {
		return TransactionApproval{}, err
	}

	if actorID != approval.ProposerID && actorID != w.OwnerID {
		return TransactionApproval{}, fault.Forbidden(
			"only the proposer or wallet owner may cancel")
	}

	sql := `UPDATE approvals
		SET status=?, date_modified=?
		WHERE id=? AND status IN (?, ?)`

	count, err := dbConn.ExecuteCount(ctx, sql, StatusCancelled, time.Now(), approvalID,
		StatusPending, StatusApproved)
	if err != nil {
		return TransactionApproval{}, errors.Wrap(err, "cancel approval")
	}
	if count == 0 {
		return TransactionApproval{}, fault.State("approval %s is %s and cannot be cancelled",
			approvalID, approval.Status)
	}

	return Fetch(ctx, dbConn, approvalID)
}

// transition performs a conditional status change and reports whether this
// call won it.
func transition(ctx context.Context, dbConn *db.DB, approvalID, from, to string) (bool, error) {
	sql := `UPDATE approvals
		SET status=?, date_modified=?
		WHERE id=? AND status=?`

	count, err := dbConn.ExecuteCount(ctx, sql, to, time.Now(), approvalID, from)
	if err != nil {
		return false, errors.Wrapf(err, "transition %s -> %s", from, to)
	}

	return count == 1, nil
}
