package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/tests"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MockResponseWriter struct {
	header     http.Header
	StatusCode int
	buffer     bytes.Buffer
}

func (rw *MockResponseWriter) Header() http.Header {
	return rw.header
}

func (rw *MockResponseWriter) Write(b []byte) (int, error) {
	return rw.buffer.Write(b)
}

func (rw *MockResponseWriter) WriteHeader(statusCode int) {
	rw.StatusCode = statusCode
}

// newRequest builds a JSON request carrying the actor's identity header.
func newRequest(t *testing.T, method, url string, body interface{}, actorID string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to serialize request data : %s", err)
		}
	}

	r, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("Failed to create request : %s", err)
	}
	if len(actorID) > 0 {
		r.Header.Set(headerUserID, actorID)
	}

	return r
}

func seedUser(t *testing.T, test *tests.Test, role string) order.User {
	t.Helper()
	ctx := tests.Context()

	user := order.User{
		ID:           uuid.New().String(),
		Email:        uuid.New().String() + "@test.com",
		Name:         "Test User",
		Role:         role,
		DateCreated:  time.Now(),
		DateModified: time.Now(),
	}

	sql := `INSERT
		INTO users (id, email, name, role, date_created, date_modified, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	if err := test.MasterDB.Execute(ctx, sql, user.ID, user.Email, user.Name, user.Role,
		user.DateCreated, user.DateModified, false); err != nil {
		t.Fatalf("Failed to seed user : %s", err)
	}

	return user
}

func seedProduct(t *testing.T, test *tests.Test, stock int64) order.Product {
	t.Helper()
	ctx := tests.Context()

	product := order.Product{
		ID:           uuid.New().String(),
		Name:         "Test Product",
		Stock:        stock,
		DateCreated:  time.Now(),
		DateModified: time.Now(),
	}

	sql := `INSERT
		INTO products (id, name, stock, sold, date_created, date_modified)
		VALUES (?, ?, ?, ?, ?, ?)`

	if err := test.MasterDB.Execute(ctx, sql, product.ID, product.Name, product.Stock,
		product.Sold, product.DateCreated, product.DateModified); err != nil {
		t.Fatalf("Failed to seed product : %s", err)
	}

	return product
}

func seedOrder(t *testing.T, test *tests.Test, buyerID, productID string,
	quantity int64) order.Order {

	t.Helper()
	ctx := tests.Context()

	o := order.Order{
		ID:           uuid.New().String(),
		BuyerID:      buyerID,
		Status:       order.StatusPending,
		TotalUSD:     decimal.New(100, 0),
		DateCreated:  time.Now(),
		DateModified: time.Now(),
	}

	sql := `INSERT
		INTO orders (id, buyer_id, status, total_usd, transaction_hash, date_created,
			date_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	if err := test.MasterDB.Execute(ctx, sql, o.ID, o.BuyerID, o.Status, o.TotalUSD, "",
		o.DateCreated, o.DateModified); err != nil {
		t.Fatalf("Failed to seed order : %s", err)
	}

	itemSQL := `INSERT
		INTO order_items (order_id, product_id, quantity, price_usd)
		VALUES (?, ?, ?, ?)`

	if err := test.MasterDB.Execute(ctx, itemSQL, o.ID, productID, quantity,
		decimal.New(50, 0)); err != nil {
		t.Fatalf("Failed to seed order item : %s", err)
	}

	return o
}

func fetchProduct(t *testing.T, test *tests.Test, productID string) order.Product {
	t.Helper()
	ctx := tests.Context()

	sql := `SELECT
			p.id,
			p.name,
			p.stock,
			p.sold,
			p.date_created,
			p.date_modified
		FROM
			products p
		WHERE
			p.id=?`

	product := order.Product{}
	if err := test.MasterDB.Get(ctx, &product, sql, productID); err != nil {
		t.Fatalf("Failed to fetch product : %s", err)
	}

	return product
}

func fetchOrder(t *testing.T, test *tests.Test, orderID string) order.Order {
	t.Helper()
	ctx := tests.Context()

	o, err := order.FetchOrder(ctx, test.MasterDB, orderID)
	if err != nil {
		t.Fatalf("Failed to fetch order : %s", err)
	}

	return o
}
