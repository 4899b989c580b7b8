package handlers

import (
	"net/http"
	"testing"

	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/platform/tests"
	"github.com/coincart/settlement-engine/internal/platform/web"
	"github.com/coincart/settlement-engine/internal/settlement"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type confirmRequest struct {
	TransactionHash string          `json:"transaction_hash"`
	OrderID         string          `json:"order_id"`
	Cryptocurrency  string          `json:"cryptocurrency"`
	Amount          decimal.Decimal `json:"amount"`
	Confirmations   int64           `json:"confirmations"`
}

// TestConfirmPaymentSettlesOnce replays an on-chain confirmation and verifies
// the ledger, order status and inventory only move the first time.
func TestConfirmPaymentSettlesOnce(t *testing.T) {
	ctx := tests.Context()
	test := tests.New()
	defer test.TearDown()

	buyer := seedUser(t, test, order.RoleCustomer)
	product := seedProduct(t, test, 10)
	o := seedOrder(t, test, buyer.ID, product.ID, 2)

	ph := &Payments{Config: test.WebConfig, MasterDB: test.MasterDB}

	body := confirmRequest{
		TransactionHash: "tx-" + uuid.New().String(),
		OrderID:         o.ID,
		Cryptocurrency:  "BTC",
		Amount:          decimal.New(5, -1),
		Confirmations:   int64(test.WebConfig.MinConfirmations),
	}

	response := &MockResponseWriter{header: http.Header{}}
	request := newRequest(t, "POST", "http://test.com/payments/confirm", body, buyer.ID)
	if err := ph.Confirm(ctx, response, request, nil); err != nil {
		t.Fatalf("Failed to confirm payment : %s", err)
	}

	var result settlement.Result
	if err := web.Unmarshal(&response.buffer, &result); err != nil {
		t.Fatalf("Failed to unmarshal result : %s", err)
	}
	if result.AlreadySettled {
		t.Fatalf("First confirmation reported already settled")
	}

	if got := fetchOrder(t, test, o.ID); got.Status != order.StatusPaid {
		t.Fatalf("Order status = %s, want %s", got.Status, order.StatusPaid)
	}

	got := fetchProduct(t, test, product.ID)
	if got.Stock != 8 || got.Sold != 2 {
		t.Fatalf("Inventory = %d/%d, want 8/2", got.Stock, got.Sold)
	}

	// The watcher replays the same confirmation.
	response = &MockResponseWriter{header: http.Header{}}
	request = newRequest(t, "POST", "http://test.com/payments/confirm", body, buyer.ID)
	if err := ph.Confirm(ctx, response, request, nil); err != nil {
		t.Fatalf("Failed to replay confirmation : %s", err)
	}

	if err := web.Unmarshal(&response.buffer, &result); err != nil {
		t.Fatalf("Failed to unmarshal result : %s", err)
	}
	if !result.AlreadySettled {
		t.Fatalf("Replay did not report already settled")
	}

	// Inventory moved exactly once.
	got = fetchProduct(t, test, product.ID)
	if got.Stock != 8 || got.Sold != 2 {
		t.Fatalf("Inventory after replay = %d/%d, want 8/2", got.Stock, got.Sold)
	}
}

func TestConfirmPaymentRequiresConfirmations(t *testing.T) {
	ctx := tests.Context()
	test := tests.New()
	defer test.TearDown()

	buyer := seedUser(t, test, order.RoleCustomer)
	product := seedProduct(t, test, 10)
	o := seedOrder(t, test, buyer.ID, product.ID, 1)

	ph := &Payments{Config: test.WebConfig, MasterDB: test.MasterDB}

	body := confirmRequest{
		TransactionHash: "tx-" + uuid.New().String(),
		OrderID:         o.ID,
		Cryptocurrency:  "BTC",
		Amount:          decimal.New(1, 0),
		Confirmations:   int64(test.WebConfig.MinConfirmations) - 1,
	}

	response := &MockResponseWriter{header: http.Header{}}
	request := newRequest(t, "POST", "http://test.com/payments/confirm", body, buyer.ID)
	err := ph.Confirm(ctx, response, request, nil)
	if !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("Under-confirmed error = %v, want validation", err)
	}
}
