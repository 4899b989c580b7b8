package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

// Approval statuses. pending -> approved -> executed; rejected and cancelled
// are terminal, and transitions are monotonic: once approved or executed a
// record never moves backwards.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusExecuted  = "executed"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// TransactionApproval is a proposed spend from a multisig wallet.
// RequiredSignatures is snapshotted from the wallet at proposal time so the
// quorum does not shift retroactively if the wallet's policy later changes.
type TransactionApproval struct {
	ID                 string          `db:"id" json:"id"`
	WalletID           string          `db:"wallet_id" json:"wallet_id"`
	OrderID            string          `db:"order_id" json:"order_id,omitempty"`
	ProposerID         string          `db:"proposer_id" json:"proposer_id"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	ToAddress          string          `db:"to_address" json:"to_address"`
	RequiredSignatures int             `db:"required_signatures" json:"required_signatures"`
	Status             string          `db:"status" json:"status"`
	TransactionHash    string          `db:"transaction_hash" json:"transaction_hash,omitempty"`
	DateCreated        time.Time       `db:"date_created" json:"date_created"`
	DateModified       time.Time       `db:"date_modified" json:"date_modified"`

	Votes []Vote `db:"-" json:"votes"`
}

// Vote is one signer's recorded decision, at most one per signer.
type Vote struct {
	ApprovalID   string    `db:"approval_id" json:"approval_id"`
	SignerUserID string    `db:"signer_user_id" json:"signer_user_id"`
	Approved     bool      `db:"approved" json:"approved"`
	Signature    string    `db:"signature" json:"signature,omitempty"`
	Comment      string    `db:"comment" json:"comment,omitempty"`
	DateCreated  time.Time `db:"date_created" json:"date_created"`
}

// ApproveCount counts explicit approve votes. Abstentions and rejections
// never count toward quorum.
func ApproveCount(votes []Vote) int {
	count := 0
	for _, vote := range votes {
		if vote.Approved {
			count++
		}
	}
	return count
}

// RejectCount counts explicit reject votes.
func RejectCount(votes []Vote) int {
	count := 0
	for _, vote := range votes {
		if !vote.Approved {
			count++
		}
	}
	return count
}

// QuorumReached is strictly "count of approve votes >= threshold".
func QuorumReached(votes []Vote, requiredSignatures int) bool {
	return ApproveCount(votes) >= requiredSignatures
}

// QuorumUnreachable returns true when enough signers rejected that the
// threshold can no longer be met by the remaining roster.
func QuorumUnreachable(votes []Vote, requiredSignatures, signerCount int) bool {
	return signerCount-RejectCount(votes) < requiredSignatures
}
