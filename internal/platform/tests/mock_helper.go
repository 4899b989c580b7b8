package tests

import (
	"context"
	"time"

	"github.com/coincart/settlement-engine/internal/lightning"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tokenized/pkg/storage"
)

// ============================================================
// Storage

type mockStorage struct {
	data map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		data: map[string][]byte{},
	}
}

func (m mockStorage) Write(ctx context.Context, key string, body []byte, options *storage.Options) error {
	m.data[key] = body
	return nil
}

func (m mockStorage) Read(ctx context.Context, key string) ([]byte, error) {
	body, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return body, nil
}

func (m mockStorage) Remove(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m mockStorage) Search(ctx context.Context, query map[string]string) ([][]byte, error) {
	objects := [][]byte{}
	return objects, nil
}

func (m mockStorage) List(ctx context.Context, path string) ([]string, error) {
	objects := []string{}
	return objects, nil
}

func (m mockStorage) Clear(ctx context.Context, query map[string]string) error {
	for key := range m.data {
		delete(m.data, key)
	}
	return nil
}

// ============================================================
// Lightning Node

// MockNode is an in-memory Lightning node. Mark invoices paid through Pay.
type MockNode struct {
	Invoices map[string]lightning.InvoiceStatus
}

func NewMockNode() *MockNode {
	return &MockNode{
		Invoices: map[string]lightning.InvoiceStatus{},
	}
}

func (m *MockNode) CreateInvoice(ctx context.Context, amountMsat int64, description string,
	expiry time.Duration) (lightning.NodeInvoice, error) {

	hash := uuid.New().String()
	m.Invoices[hash] = lightning.InvoiceStatus{Status: lightning.StatusPending}

	return lightning.NodeInvoice{
		PaymentHash:    hash,
		PaymentRequest: "lnbc_test_" + hash,
	}, nil
}

func (m *MockNode) GetInvoiceStatus(ctx context.Context,
	paymentHash string) (lightning.InvoiceStatus, error) {

	status, ok := m.Invoices[paymentHash]
	if !ok {
		return lightning.InvoiceStatus{Status: lightning.StatusPending}, nil
	}
	return status, nil
}

func (m *MockNode) DecodePaymentRequest(ctx context.Context,
	paymentRequest string) (lightning.DecodedPaymentRequest, error) {

	return lightning.DecodedPaymentRequest{}, nil
}

// Pay marks an invoice settled on the mock node.
func (m *MockNode) Pay(paymentHash string) {
	m.Invoices[paymentHash] = lightning.InvoiceStatus{
		Status: lightning.StatusPaid,
		PaidAt: time.Now(),
	}
}

// ============================================================
// Price Oracle

// MockRateSource returns fixed prices per symbol.
type MockRateSource struct {
	Prices map[string]decimal.Decimal
}

func (m *MockRateSource) GetCryptoPrice(ctx context.Context,
	symbol string) (decimal.Decimal, error) {

	price, ok := m.Prices[symbol]
	if !ok {
		return decimal.New(1, 0), nil
	}
	return price, nil
}
