package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/coincart/settlement-engine/internal/lightning"
	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/platform/tests"
	"github.com/coincart/settlement-engine/internal/platform/web"
	"github.com/coincart/settlement-engine/internal/settlement"

	"github.com/shopspring/decimal"
)

// TestInvoiceLifecycle mints an invoice against a mock node, confirms it is
// rejected while unpaid, then pays and confirms twice. The second
// confirmation is a replay, not a second settlement.
func TestInvoiceLifecycle(t *testing.T) {
	ctx := tests.Context()
	test := tests.New()
	defer test.TearDown()

	buyer := seedUser(t, test, order.RoleCustomer)
	product := seedProduct(t, test, 5)
	o := seedOrder(t, test, buyer.ID, product.ID, 1)

	node := tests.NewMockNode()
	lh := &Lightning{
		Config:   test.WebConfig,
		MasterDB: test.MasterDB,
		Node:     node,
		Rates: &tests.MockRateSource{
			Prices: map[string]decimal.Decimal{"BTC": decimal.New(65000, 0)},
		},
		Expiry: time.Hour,
	}

	createBody := struct {
		OrderID   string `json:"order_id"`
		AmountSat int64  `json:"amount_sat"`
	}{
		OrderID:   o.ID,
		AmountSat: 100000,
	}

	response := &MockResponseWriter{header: http.Header{}}
	request := newRequest(t, "POST", "http://test.com/lightning/invoices", createBody, buyer.ID)
	if err := lh.CreateInvoice(ctx, response, request, nil); err != nil {
		t.Fatalf("Failed to create invoice : %s", err)
	}
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("Invoice create status = %d, want %d", response.StatusCode, http.StatusCreated)
	}

	var invoice lightning.Invoice
	if err := web.Unmarshal(&response.buffer, &invoice); err != nil {
		t.Fatalf("Failed to unmarshal invoice : %s", err)
	}
	if invoice.Status != lightning.StatusPending {
		t.Fatalf("New invoice status = %s, want %s", invoice.Status, lightning.StatusPending)
	}

	params := map[string]string{"hash": invoice.PaymentHash}
	confirmURL := "http://test.com/lightning/invoices/" + invoice.PaymentHash + "/confirm"

	// The node has not seen a payment yet.
	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", confirmURL, nil, buyer.ID)
	err := lh.ConfirmPayment(ctx, response, request, params)
	if !fault.IsKind(err, fault.KindState) {
		t.Fatalf("Unpaid confirmation error = %v, want state", err)
	}

	node.Pay(invoice.PaymentHash)

	var confirmed struct {
		Invoice    lightning.Invoice `json:"invoice"`
		Settlement settlement.Result `json:"settlement"`
	}

	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", confirmURL, nil, buyer.ID)
	if err := lh.ConfirmPayment(ctx, response, request, params); err != nil {
		t.Fatalf("Failed to confirm payment : %s", err)
	}
	if err := web.Unmarshal(&response.buffer, &confirmed); err != nil {
		t.Fatalf("Failed to unmarshal confirmation : %s", err)
	}
	if confirmed.Invoice.Status != lightning.StatusPaid {
		t.Fatalf("Confirmed invoice status = %s, want %s", confirmed.Invoice.Status,
			lightning.StatusPaid)
	}
	if confirmed.Settlement.AlreadySettled {
		t.Fatalf("First confirmation reported already settled")
	}

	if got := fetchOrder(t, test, o.ID); got.Status != order.StatusPaid {
		t.Fatalf("Order status = %s, want %s", got.Status, order.StatusPaid)
	}

	// Replay.
	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", confirmURL, nil, buyer.ID)
	if err := lh.ConfirmPayment(ctx, response, request, params); err != nil {
		t.Fatalf("Failed to replay confirmation : %s", err)
	}
	if err := web.Unmarshal(&response.buffer, &confirmed); err != nil {
		t.Fatalf("Failed to unmarshal confirmation : %s", err)
	}
	if !confirmed.Settlement.AlreadySettled {
		t.Fatalf("Replay did not report already settled")
	}

	// A paid order cannot mint another invoice.
	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", "http://test.com/lightning/invoices", createBody, buyer.ID)
	err = lh.CreateInvoice(ctx, response, request, nil)
	if !fault.IsKind(err, fault.KindConflict) {
		t.Fatalf("Invoice after payment error = %v, want conflict", err)
	}
}
