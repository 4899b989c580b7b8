package fault

import (
	"testing"

	"github.com/pkg/errors"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain error", errors.New("boom"), KindUnknown},
		{"validation", Validation("bad input"), KindValidation},
		{"not found", NotFound("missing"), KindNotFound},
		{"forbidden", Forbidden("no"), KindForbidden},
		{"conflict", Conflict("duplicate"), KindConflict},
		{"state", State("wrong state"), KindState},
		{"external", External("node down"), KindExternal},
		{"wrapped once", errors.Wrap(State("wrong state"), "do thing"), KindState},
		{"wrapped twice", errors.Wrap(errors.Wrap(Conflict("dup"), "inner"), "outer"), KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Fatalf("KindOf = %s, want %s", got, tt.kind)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	err := errors.Wrap(Forbidden("not yours"), "remove signer")

	if !IsKind(err, KindForbidden) {
		t.Errorf("expected forbidden kind")
	}
	if IsKind(err, KindValidation) {
		t.Errorf("did not expect validation kind")
	}
}
