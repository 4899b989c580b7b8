package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/platform/tests"

	"github.com/shopspring/decimal"
)

func TestActorID(t *testing.T) {
	r, err := http.NewRequest("GET", "http://test.com/wallets", nil)
	if err != nil {
		t.Fatalf("Failed to create request : %s", err)
	}

	if _, err := actorID(r); !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("expected validation fault without header, got %v", err)
	}

	r.Header.Set(headerUserID, "user-1")
	actor, err := actorID(r)
	if err != nil {
		t.Fatalf("unexpected error : %s", err)
	}
	if actor != "user-1" {
		t.Fatalf("actor = %s, want user-1", actor)
	}
}

func TestIsAdmin(t *testing.T) {
	r, err := http.NewRequest("GET", "http://test.com/wallets", nil)
	if err != nil {
		t.Fatalf("Failed to create request : %s", err)
	}

	if isAdmin(r) {
		t.Errorf("no role header should not be admin")
	}

	r.Header.Set(headerUserRole, "customer")
	if isAdmin(r) {
		t.Errorf("customer role should not be admin")
	}

	r.Header.Set(headerUserRole, roleAdmin)
	if !isAdmin(r) {
		t.Errorf("admin role should be admin")
	}
}

func TestMilestoneIndex(t *testing.T) {
	tests := []struct {
		param string
		idx   int
		valid bool
	}{
		{"0", 0, true},
		{"3", 3, true},
		{"first", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		idx, err := milestoneIndex(map[string]string{"index": tt.param})
		if tt.valid {
			if err != nil {
				t.Errorf("index %q : unexpected error %s", tt.param, err)
			}
			if idx != tt.idx {
				t.Errorf("index %q = %d, want %d", tt.param, idx, tt.idx)
			}
		} else if err == nil {
			t.Errorf("index %q : expected error", tt.param)
		}
	}
}

func TestQuoteUSD(t *testing.T) {
	ctx := context.Background()

	h := Escrows{
		Rates: &tests.MockRateSource{
			Prices: map[string]decimal.Decimal{
				"BTC": decimal.New(65000, 0),
			},
		},
	}

	quote, err := h.quoteUSD(ctx, "BTC", decimal.New(5, -1))
	if err != nil {
		t.Fatalf("unexpected error : %s", err)
	}

	want := decimal.New(32500, 0)
	if !quote.Equal(want) {
		t.Fatalf("quote = %s, want %s", quote.String(), want.String())
	}
}
