package approval

import (
	"testing"
)

func approve(user string) Vote {
	return Vote{SignerUserID: user, Approved: true}
}

func reject(user string) Vote {
	return Vote{SignerUserID: user, Approved: false}
}

func TestQuorumReached(t *testing.T) {
	tests := []struct {
		name     string
		votes    []Vote
		required int
		reached  bool
	}{
		{
			name:     "no votes",
			votes:    nil,
			required: 2,
			reached:  false,
		},
		{
			name:     "one of two",
			votes:    []Vote{approve("a")},
			required: 2,
			reached:  false,
		},
		{
			name:     "two of two on three signers",
			votes:    []Vote{approve("a"), approve("b")},
			required: 2,
			reached:  true,
		},
		{
			name:     "rejections never count",
			votes:    []Vote{approve("a"), reject("b"), reject("c")},
			required: 2,
			reached:  false,
		},
		{
			name:     "mixed reaching",
			votes:    []Vote{approve("a"), reject("b"), approve("c")},
			required: 2,
			reached:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QuorumReached(tt.votes, tt.required); got != tt.reached {
				t.Fatalf("QuorumReached = %v, want %v", got, tt.reached)
			}
		})
	}
}

func TestQuorumUnreachable(t *testing.T) {
	tests := []struct {
		name        string
		votes       []Vote
		required    int
		signerCount int
		unreachable bool
	}{
		{
			name:        "no votes",
			votes:       nil,
			required:    2,
			signerCount: 3,
			unreachable: false,
		},
		{
			name:        "one rejection of three still reachable",
			votes:       []Vote{reject("a")},
			required:    2,
			signerCount: 3,
			unreachable: false,
		},
		{
			name:        "two rejections of three make 2-of-3 unreachable",
			votes:       []Vote{reject("a"), reject("b")},
			required:    2,
			signerCount: 3,
			unreachable: true,
		},
		{
			name:        "one rejection of two makes 2-of-2 unreachable",
			votes:       []Vote{reject("a")},
			required:    2,
			signerCount: 2,
			unreachable: true,
		},
		{
			name:        "approvals do not reduce the remaining roster",
			votes:       []Vote{approve("a"), reject("b")},
			required:    2,
			signerCount: 3,
			unreachable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuorumUnreachable(tt.votes, tt.required, tt.signerCount)
			if got != tt.unreachable {
				t.Fatalf("QuorumUnreachable = %v, want %v", got, tt.unreachable)
			}
		})
	}
}

func TestVoteCounts(t *testing.T) {
	votes := []Vote{approve("a"), reject("b"), approve("c"), reject("d"), approve("e")}

	if got := ApproveCount(votes); got != 3 {
		t.Errorf("ApproveCount = %d, want 3", got)
	}
	if got := RejectCount(votes); got != 2 {
		t.Errorf("RejectCount = %d, want 2", got)
	}
}
