package settlement

import (
	"testing"

	"github.com/coincart/settlement-engine/internal/platform/fault"

	"github.com/shopspring/decimal"
)

func TestEffectsValidate(t *testing.T) {
	tests := []struct {
		name    string
		effects Effects
		valid   bool
	}{
		{
			name: "bare payment",
			effects: Effects{
				Cryptocurrency: "BTC",
				Amount:         decimal.New(1, 0),
			},
			valid: true,
		},
		{
			name: "order with status",
			effects: Effects{
				OrderID:        "order-1",
				OrderStatus:    "paid",
				Cryptocurrency: "ETH",
				Amount:         decimal.New(5, -1),
			},
			valid: true,
		},
		{
			name: "order without status",
			effects: Effects{
				OrderID:        "order-1",
				Cryptocurrency: "ETH",
				Amount:         decimal.New(5, -1),
			},
			valid: false,
		},
		{
			name: "zero amount",
			effects: Effects{
				Cryptocurrency: "BTC",
				Amount:         decimal.Zero,
			},
			valid: false,
		},
		{
			name: "negative amount",
			effects: Effects{
				Cryptocurrency: "BTC",
				Amount:         decimal.New(-1, 0),
			},
			valid: false,
		},
		{
			name: "missing currency",
			effects: Effects{
				Amount: decimal.New(1, 0),
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.effects.Validate()

			if tt.valid && err != nil {
				t.Fatalf("expected valid, got %s", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatalf("expected invalid")
				}
				if !fault.IsKind(err, fault.KindValidation) {
					t.Fatalf("expected validation fault, got %s", err)
				}
			}
		})
	}
}
