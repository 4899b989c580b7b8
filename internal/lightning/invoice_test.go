package lightning

import (
	"testing"
	"time"
)

func TestCheckExpiration(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		invoice Invoice
		expired bool
	}{
		{
			name: "pending before expiry",
			invoice: Invoice{
				Status:    StatusPending,
				ExpiresAt: now.Add(time.Hour),
			},
			expired: false,
		},
		{
			name: "pending past expiry",
			invoice: Invoice{
				Status:    StatusPending,
				ExpiresAt: now.Add(-time.Minute),
			},
			expired: true,
		},
		{
			name: "paid never expires",
			invoice: Invoice{
				Status:    StatusPaid,
				ExpiresAt: now.Add(-time.Hour),
			},
			expired: false,
		},
		{
			name: "already expired stays put",
			invoice: Invoice{
				Status:    StatusExpired,
				ExpiresAt: now.Add(-time.Hour),
			},
			expired: false,
		},
		{
			name: "exactly at expiry is not yet expired",
			invoice: Invoice{
				Status:    StatusPending,
				ExpiresAt: now,
			},
			expired: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.invoice.CheckExpiration(now); got != tt.expired {
				t.Fatalf("CheckExpiration = %v, want %v", got, tt.expired)
			}
		})
	}
}
