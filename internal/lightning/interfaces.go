package lightning

import (
	"context"
	"time"
)

// InvoiceStatus is the node's view of a payment. The node is the external
// source of truth; settlement only guarantees idempotency.
type InvoiceStatus struct {
	Status string    `json:"status"`
	PaidAt time.Time `json:"paid_at"`
}

// NodeInvoice is a payment request minted by the node.
type NodeInvoice struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
}

// DecodedPaymentRequest is the parsed form of a BOLT11 payment request.
type DecodedPaymentRequest struct {
	PaymentHash string `json:"payment_hash"`
	AmountMsat  int64  `json:"amount_msat"`
	Description string `json:"description"`
	Expiry      int64  `json:"expiry"`
}

// NodeClient is the contract with the Lightning node RPC service.
// Failures surface as external faults, retryable by the caller.
type NodeClient interface {
	// CreateInvoice mints an invoice on the node for the amount in
	// millisatoshis.
	CreateInvoice(ctx context.Context, amountMsat int64, description string,
		expiry time.Duration) (NodeInvoice, error)

	// GetInvoiceStatus reports whether the node has seen the invoice paid.
	GetInvoiceStatus(ctx context.Context, paymentHash string) (InvoiceStatus, error)

	// DecodePaymentRequest parses a BOLT11 payment request.
	DecodePaymentRequest(ctx context.Context, paymentRequest string) (DecodedPaymentRequest, error)
}
