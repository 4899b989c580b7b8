package wallet

import (
	"time"
)

// MultiSigWallet is a quorum-controlled custody wallet. Deactivation is a
// soft flag, never physical deletion, so historical approvals keep a valid
// wallet reference.
type MultiSigWallet struct {
	ID                 string    `db:"id" json:"id"`
	OwnerID            string    `db:"owner_id" json:"owner_id"`
	Cryptocurrency     string    `db:"cryptocurrency" json:"cryptocurrency"`
	Address            string    `db:"address" json:"address"`
	RequiredSignatures int       `db:"required_signatures" json:"required_signatures"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	DateCreated        time.Time `db:"date_created" json:"date_created"`
	DateModified       time.Time `db:"date_modified" json:"date_modified"`

	Signers []Signer `db:"-" json:"signers"`
}

// Signer is a member of a wallet's roster, unique per user within a wallet.
type Signer struct {
	WalletID    string    `db:"wallet_id" json:"wallet_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Email       string    `db:"email" json:"email"`
	Name        string    `db:"name" json:"name"`
	PublicKey   string    `db:"public_key" json:"public_key,omitempty"`
	DateCreated time.Time `db:"date_created" json:"date_created"`
}

// IsSigner returns true if the user is on the wallet's roster.
func (w *MultiSigWallet) IsSigner(userID string) bool {
	for _, signer := range w.Signers {
		if signer.UserID == userID {
			return true
		}
	}
	return false
}

// HasAccess returns true if the user is the owner or any signer.
func (w *MultiSigWallet) HasAccess(userID string) bool {
	return w.OwnerID == userID || w.IsSigner(userID)
}
