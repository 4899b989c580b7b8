package wallet

import (
	"testing"

	"github.com/coincart/settlement-engine/internal/platform/fault"
)

func TestValidateQuorum(t *testing.T) {
	tests := []struct {
		name               string
		signerCount        int
		requiredSignatures int
		valid              bool
	}{
		{
			name:               "2 of 2",
			signerCount:        2,
			requiredSignatures: 2,
			valid:              true,
		},
		{
			name:               "2 of 3",
			signerCount:        3,
			requiredSignatures: 2,
			valid:              true,
		},
		{
			name:               "3 of 5",
			signerCount:        5,
			requiredSignatures: 3,
			valid:              true,
		},
		{
			name:               "single signer",
			signerCount:        1,
			requiredSignatures: 1,
			valid:              false,
		},
		{
			name:               "threshold of one",
			signerCount:        3,
			requiredSignatures: 1,
			valid:              false,
		},
		{
			name:               "threshold above roster",
			signerCount:        3,
			requiredSignatures: 4,
			valid:              false,
		},
		{
			name:               "zero threshold",
			signerCount:        2,
			requiredSignatures: 0,
			valid:              false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuorum(tt.signerCount, tt.requiredSignatures)

			if tt.valid && err != nil {
				t.Fatalf("expected valid quorum, got %s", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatalf("expected invalid quorum")
				}
				if !fault.IsKind(err, fault.KindValidation) {
					t.Fatalf("expected validation fault, got %s", err)
				}
			}
		})
	}
}

func TestWalletAccess(t *testing.T) {
	w := MultiSigWallet{
		ID:      "wallet-1",
		OwnerID: "owner",
		Signers: []Signer{
			{WalletID: "wallet-1", UserID: "alice"},
			{WalletID: "wallet-1", UserID: "bob"},
		},
	}

	if !w.HasAccess("owner") {
		t.Errorf("owner should have access")
	}
	if !w.HasAccess("alice") {
		t.Errorf("signer should have access")
	}
	if w.HasAccess("mallory") {
		t.Errorf("stranger should not have access")
	}

	if w.IsSigner("owner") {
		t.Errorf("owner is not on the signer roster")
	}
	if !w.IsSigner("bob") {
		t.Errorf("bob is on the signer roster")
	}
}
