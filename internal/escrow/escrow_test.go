package escrow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		valid    bool
	}{
		{StatusCreated, StatusFunded, true},
		{StatusCreated, StatusCancelled, true},
		{StatusCreated, StatusReleased, false},
		{StatusCreated, StatusRefunded, false},
		{StatusFunded, StatusReleased, true},
		{StatusFunded, StatusRefunded, true},
		{StatusFunded, StatusDisputed, true},
		{StatusFunded, StatusCancelled, true},
		{StatusFunded, StatusCreated, false},
		{StatusDisputed, StatusReleased, true},
		{StatusDisputed, StatusRefunded, true},
		{StatusDisputed, StatusCancelled, false},
		{StatusDisputed, StatusFunded, false},
		{StatusReleased, StatusRefunded, false},
		{StatusRefunded, StatusFunded, false},
		{StatusCancelled, StatusFunded, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.valid {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestValidateMilestoneAmounts(t *testing.T) {
	amount := func(s string) decimal.Decimal {
		d, err := decimal.NewFromString(s)
		if err != nil {
			t.Fatalf("bad decimal %q : %s", s, err)
		}
		return d
	}

	tests := []struct {
		name       string
		total      string
		milestones []string
		valid      bool
	}{
		{
			name:       "no milestones",
			total:      "500",
			milestones: nil,
			valid:      true,
		},
		{
			name:       "sums exactly",
			total:      "500",
			milestones: []string{"200", "300"},
			valid:      true,
		},
		{
			name:       "sums under",
			total:      "500",
			milestones: []string{"200", "200"},
			valid:      false,
		},
		{
			name:       "sums over",
			total:      "500",
			milestones: []string{"300", "300"},
			valid:      false,
		},
		{
			name:       "fractional amounts",
			total:      "0.5",
			milestones: []string{"0.2", "0.3"},
			valid:      true,
		},
		{
			name:       "zero milestone",
			total:      "500",
			milestones: []string{"0", "500"},
			valid:      false,
		},
		{
			name:       "negative milestone",
			total:      "500",
			milestones: []string{"-100", "600"},
			valid:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			milestones := make([]Milestone, 0, len(tt.milestones))
			for i, m := range tt.milestones {
				milestones = append(milestones, Milestone{
					Idx:    i,
					Title:  "m",
					Amount: amount(m),
				})
			}

			err := ValidateMilestoneAmounts(amount(tt.total), milestones)
			if tt.valid && err != nil {
				t.Fatalf("expected valid, got %s", err)
			}
			if !tt.valid && err == nil {
				t.Fatalf("expected invalid")
			}
		})
	}
}

func TestValidateReleaseType(t *testing.T) {
	tests := []struct {
		name           string
		releaseType    string
		afterDays      int
		milestoneCount int
		valid          bool
	}{
		{"manual", ReleaseManual, 0, 0, true},
		{"automatic", ReleaseAutomatic, 0, 0, true},
		{"mutual", ReleaseMutual, 0, 0, true},
		{"milestones present", ReleaseMilestoneBased, 0, 2, true},
		{"milestones missing", ReleaseMilestoneBased, 0, 0, false},
		{"time based with window", ReleaseTimeBased, 14, 0, true},
		{"time based without window", ReleaseTimeBased, 0, 0, false},
		{"unknown type", "whenever", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReleaseType(tt.releaseType, tt.afterDays, tt.milestoneCount)
			if tt.valid && err != nil {
				t.Fatalf("expected valid, got %s", err)
			}
			if !tt.valid && err == nil {
				t.Fatalf("expected invalid")
			}
		})
	}
}

func TestTimeReleaseEligible(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		escrow   Escrow
		eligible bool
	}{
		{
			name: "window passed",
			escrow: Escrow{
				ReleaseType:          ReleaseTimeBased,
				Status:               StatusFunded,
				FundedAt:             now.AddDate(0, 0, -15),
				AutoReleaseAfterDays: 14,
			},
			eligible: true,
		},
		{
			name: "window not passed",
			escrow: Escrow{
				ReleaseType:          ReleaseTimeBased,
				Status:               StatusFunded,
				FundedAt:             now.AddDate(0, 0, -7),
				AutoReleaseAfterDays: 14,
			},
			eligible: false,
		},
		{
			name: "wrong release type",
			escrow: Escrow{
				ReleaseType:          ReleaseManual,
				Status:               StatusFunded,
				FundedAt:             now.AddDate(0, 0, -15),
				AutoReleaseAfterDays: 14,
			},
			eligible: false,
		},
		{
			name: "disputed never auto releases",
			escrow: Escrow{
				ReleaseType:          ReleaseTimeBased,
				Status:               StatusDisputed,
				FundedAt:             now.AddDate(0, 0, -15),
				AutoReleaseAfterDays: 14,
			},
			eligible: false,
		},
		{
			name: "never funded",
			escrow: Escrow{
				ReleaseType:          ReleaseTimeBased,
				Status:               StatusFunded,
				AutoReleaseAfterDays: 14,
			},
			eligible: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeReleaseEligible(&tt.escrow, now); got != tt.eligible {
				t.Fatalf("TimeReleaseEligible = %v, want %v", got, tt.eligible)
			}
		})
	}
}

func TestAllMilestonesReleased(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		released bool
	}{
		{"no milestones", nil, false},
		{"all released", []string{MilestoneReleased, MilestoneReleased}, true},
		{"one pending", []string{MilestoneReleased, MilestonePending}, false},
		{"completed not released", []string{MilestoneReleased, MilestoneCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			milestones := make([]Milestone, 0, len(tt.statuses))
			for i, status := range tt.statuses {
				milestones = append(milestones, Milestone{Idx: i, Status: status})
			}

			if got := AllMilestonesReleased(milestones); got != tt.released {
				t.Fatalf("AllMilestonesReleased = %v, want %v", got, tt.released)
			}
		})
	}
}

func TestOpenDispute(t *testing.T) {
	e := Escrow{
		Disputes: []Dispute{
			{ID: "d1", Status: DisputeResolved},
			{ID: "d2", Status: DisputeOpen},
		},
	}

	dispute := e.OpenDispute()
	if dispute == nil || dispute.ID != "d2" {
		t.Fatalf("expected open dispute d2, got %+v", dispute)
	}

	e.Disputes[1].Status = DisputeResolved
	if e.OpenDispute() != nil {
		t.Fatalf("expected no open dispute")
	}
}
