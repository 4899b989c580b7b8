package handlers

import (
	"net/http"
	"testing"

	"github.com/coincart/settlement-engine/internal/approval"
	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/platform/tests"
	"github.com/coincart/settlement-engine/internal/platform/web"
	"github.com/coincart/settlement-engine/internal/settlement"
	"github.com/coincart/settlement-engine/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TestApprovalQuorumFlow walks a spend through proposal, voting and execution
// on a 3 signer wallet requiring 2 signatures. The spend references no order,
// so the ledger entry stands alone.
func TestApprovalQuorumFlow(t *testing.T) {
	ctx := tests.Context()
	test := tests.New()
	defer test.TearDown()

	owner := seedUser(t, test, order.RoleCustomer)
	signer1 := seedUser(t, test, order.RoleCustomer)
	signer2 := seedUser(t, test, order.RoleCustomer)
	signer3 := seedUser(t, test, order.RoleCustomer)

	wh := &Wallets{Config: test.WebConfig, MasterDB: test.MasterDB}
	ah := &Approvals{Config: test.WebConfig, MasterDB: test.MasterDB}

	// Create the wallet.
	createBody := struct {
		Cryptocurrency     string   `json:"cryptocurrency"`
		Address            string   `json:"address"`
		SignerEmails       []string `json:"signer_emails"`
		RequiredSignatures int      `json:"required_signatures"`
	}{
		Cryptocurrency:     "BTC",
		Address:            "addr-" + uuid.New().String(),
		SignerEmails:       []string{signer1.Email, signer2.Email, signer3.Email},
		RequiredSignatures: 2,
	}

	response := &MockResponseWriter{header: http.Header{}}
	request := newRequest(t, "POST", "http://test.com/wallets", createBody, owner.ID)
	if err := wh.Create(ctx, response, request, nil); err != nil {
		t.Fatalf("Failed to create wallet : %s", err)
	}
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("Wallet create status = %d, want %d", response.StatusCode, http.StatusCreated)
	}

	var w wallet.MultiSigWallet
	if err := web.Unmarshal(&response.buffer, &w); err != nil {
		t.Fatalf("Failed to unmarshal wallet : %s", err)
	}

	// Propose a spend with no order reference.
	proposeBody := struct {
		WalletID  string          `json:"wallet_id"`
		Amount    decimal.Decimal `json:"amount"`
		ToAddress string          `json:"to_address"`
	}{
		WalletID:  w.ID,
		Amount:    decimal.New(25, -2),
		ToAddress: "dest-" + uuid.New().String(),
	}

	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", "http://test.com/approvals", proposeBody, owner.ID)
	if err := ah.Propose(ctx, response, request, nil); err != nil {
		t.Fatalf("Failed to propose spend : %s", err)
	}

	var a approval.TransactionApproval
	if err := web.Unmarshal(&response.buffer, &a); err != nil {
		t.Fatalf("Failed to unmarshal approval : %s", err)
	}
	if a.Status != approval.StatusPending {
		t.Fatalf("New approval status = %s, want %s", a.Status, approval.StatusPending)
	}
	if a.RequiredSignatures != 2 {
		t.Fatalf("Snapshot required signatures = %d, want 2", a.RequiredSignatures)
	}

	params := map[string]string{"id": a.ID}
	voteBody := struct {
		Approved bool `json:"approved"`
	}{Approved: true}

	// First approval keeps the spend pending.
	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", "http://test.com/approvals/"+a.ID+"/votes", voteBody,
		signer1.ID)
	if err := ah.Vote(ctx, response, request, params); err != nil {
		t.Fatalf("Failed to cast first vote : %s", err)
	}
	if err := web.Unmarshal(&response.buffer, &a); err != nil {
		t.Fatalf("Failed to unmarshal approval : %s", err)
	}
	if a.Status != approval.StatusPending {
		t.Fatalf("After one vote status = %s, want %s", a.Status, approval.StatusPending)
	}

	// The same signer voting again is a conflict, not a second vote.
	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", "http://test.com/approvals/"+a.ID+"/votes", voteBody,
		signer1.ID)
	err := ah.Vote(ctx, response, request, params)
	if !fault.IsKind(err, fault.KindConflict) {
		t.Fatalf("Duplicate vote error = %v, want conflict", err)
	}

	// The second distinct approval reaches quorum.
	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", "http://test.com/approvals/"+a.ID+"/votes", voteBody,
		signer2.ID)
	if err := ah.Vote(ctx, response, request, params); err != nil {
		t.Fatalf("Failed to cast second vote : %s", err)
	}
	if err := web.Unmarshal(&response.buffer, &a); err != nil {
		t.Fatalf("Failed to unmarshal approval : %s", err)
	}
	if a.Status != approval.StatusApproved {
		t.Fatalf("After quorum status = %s, want %s", a.Status, approval.StatusApproved)
	}

	// Execute the approved spend.
	transactionHash := "tx-" + uuid.New().String()
	executeBody := struct {
		TransactionHash string `json:"transaction_hash"`
	}{TransactionHash: transactionHash}

	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", "http://test.com/approvals/"+a.ID+"/execute", executeBody,
		owner.ID)
	if err := ah.Execute(ctx, response, request, params); err != nil {
		t.Fatalf("Failed to execute approval : %s", err)
	}
	if err := web.Unmarshal(&response.buffer, &a); err != nil {
		t.Fatalf("Failed to unmarshal approval : %s", err)
	}
	if a.Status != approval.StatusExecuted {
		t.Fatalf("After execute status = %s, want %s", a.Status, approval.StatusExecuted)
	}
	if a.TransactionHash != transactionHash {
		t.Fatalf("Recorded hash = %s, want %s", a.TransactionHash, transactionHash)
	}

	// The broadcast landed in the ledger without an order reference.
	payment, err := settlement.FetchPayment(ctx, test.MasterDB, transactionHash)
	if err != nil {
		t.Fatalf("Failed to fetch ledger entry : %s", err)
	}
	if len(payment.OrderID) != 0 {
		t.Fatalf("Ledger order reference = %q, want empty", payment.OrderID)
	}

	// Executing a finished approval is a state error.
	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", "http://test.com/approvals/"+a.ID+"/execute", executeBody,
		owner.ID)
	err = ah.Execute(ctx, response, request, params)
	if !fault.IsKind(err, fault.KindState) {
		t.Fatalf("Re-execute error = %v, want state", err)
	}
}
