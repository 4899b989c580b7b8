package escrow

import (
	"time"

	"github.com/coincart/settlement-engine/internal/platform/fault"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Escrow statuses. All transitions are one-way; released, refunded and
// cancelled are terminal.
const (
	StatusCreated   = "created"
	StatusFunded    = "funded"
	StatusReleased  = "released"
	StatusRefunded  = "refunded"
	StatusDisputed  = "disputed"
	StatusCancelled = "cancelled"
)

// Release type policies, dispatched through a single transition function per
// type.
const (
	ReleaseAutomatic      = "automatic"
	ReleaseManual         = "manual"
	ReleaseMilestoneBased = "milestone_based"
	ReleaseTimeBased      = "time_based"
	ReleaseMutual         = "mutual"
)

// Milestone statuses.
const (
	MilestonePending   = "pending"
	MilestoneCompleted = "completed"
	MilestoneReleased  = "released"
)

// Dispute statuses and resolutions.
const (
	DisputeOpen     = "open"
	DisputeResolved = "resolved"

	ResolutionBuyerFavor    = "buyer_favor"
	ResolutionSellerFavor   = "seller_favor"
	ResolutionPartialRefund = "partial_refund"
	ResolutionCustom        = "custom"
)

// Escrow holds funds in trust pending a release condition. Milestones and
// disputes are embedded children with no independent lifecycle.
type Escrow struct {
	ID                  string          `db:"id" json:"id"`
	BuyerID             string          `db:"buyer_id" json:"buyer_id"`
	SellerID            string          `db:"seller_id" json:"seller_id"`
	OrderID             string          `db:"order_id" json:"order_id,omitempty"`
	Cryptocurrency      string          `db:"cryptocurrency" json:"cryptocurrency"`
	Amount              decimal.Decimal `db:"amount" json:"amount"`
	AmountUSD           decimal.Decimal `db:"amount_usd" json:"amount_usd"`
	DepositAddress      string          `db:"deposit_address" json:"deposit_address"`
	ReleaseAddress      string          `db:"release_address" json:"release_address,omitempty"`
	RefundAddress       string          `db:"refund_address" json:"refund_address,omitempty"`
	ReleaseType         string          `db:"release_type" json:"release_type"`
	AutoReleaseAfterDays int            `db:"auto_release_after_days" json:"auto_release_after_days,omitempty"`
	Status              string          `db:"status" json:"status"`
	BuyerReleaseOK      bool            `db:"buyer_release_ok" json:"buyer_release_ok"`
	SellerReleaseOK     bool            `db:"seller_release_ok" json:"seller_release_ok"`
	FundingTxHash       string          `db:"funding_tx_hash" json:"funding_tx_hash,omitempty"`
	FundedAt            time.Time       `db:"funded_at" json:"funded_at"`
	DateCreated         time.Time       `db:"date_created" json:"date_created"`
	DateModified        time.Time       `db:"date_modified" json:"date_modified"`

	ReleaseConditions []ReleaseCondition `db:"-" json:"release_conditions"`
	Milestones        []Milestone        `db:"-" json:"milestones"`
	Disputes          []Dispute          `db:"-" json:"disputes"`
}

// ReleaseCondition is one entry of the escrow's ordered condition list.
type ReleaseCondition struct {
	EscrowID string `db:"escrow_id" json:"escrow_id"`
	Idx      int    `db:"idx" json:"idx"`
	Type     string `db:"type" json:"type"`
	Value    string `db:"value" json:"value"`
}

// Milestone is a sub-portion of the escrow amount tied to a deliverable,
// released independently.
type Milestone struct {
	EscrowID     string          `db:"escrow_id" json:"escrow_id"`
	Idx          int             `db:"idx" json:"idx"`
	Title        string          `db:"title" json:"title"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Status       string          `db:"status" json:"status"`
	DateModified time.Time       `db:"date_modified" json:"date_modified"`
}

// Dispute is an arbitration request against a funded escrow. At most one
// open dispute exists per escrow at any time.
type Dispute struct {
	ID              string          `db:"id" json:"id"`
	EscrowID        string          `db:"escrow_id" json:"escrow_id"`
	FiledBy         string          `db:"filed_by" json:"filed_by"`
	Reason          string          `db:"reason" json:"reason"`
	Description     string          `db:"description" json:"description"`
	Evidence        pq.StringArray  `db:"evidence" json:"evidence"`
	Status          string          `db:"status" json:"status"`
	Resolution      string          `db:"resolution" json:"resolution,omitempty"`
	ResolutionNotes string          `db:"resolution_notes" json:"resolution_notes,omitempty"`
	RefundAmount    decimal.Decimal `db:"refund_amount" json:"refund_amount"`
	DateCreated     time.Time       `db:"date_created" json:"date_created"`
	DateResolved    time.Time       `db:"date_resolved" json:"date_resolved"`
}

// OpenDispute returns the unresolved dispute, if any.
func (e *Escrow) OpenDispute() *Dispute {
	for i := range e.Disputes {
		if e.Disputes[i].Status == DisputeOpen {
			return &e.Disputes[i]
		}
	}
	return nil
}

// validTransitions is the complete escrow state machine. Funds only move
// toward release/refund from funded, or from disputed through resolution. The
// resolution itself is recorded on the dispute row, so the escrow moves from
// disputed to its final state in a single step.
var validTransitions = map[string][]string{
	StatusCreated:  {StatusFunded, StatusCancelled},
	StatusFunded:   {StatusReleased, StatusRefunded, StatusDisputed, StatusCancelled},
	StatusDisputed: {StatusReleased, StatusRefunded},
}

// CanTransition reports whether from -> to is a legal escrow transition.
func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateReleaseType checks the release type and its parameters.
func ValidateReleaseType(releaseType string, autoReleaseAfterDays int,
	milestoneCount int) error {

	switch releaseType {
	case ReleaseAutomatic, ReleaseManual, ReleaseMutual:
	case ReleaseMilestoneBased:
		if milestoneCount == 0 {
			return fault.Validation("milestone based escrow requires milestones")
		}
	case ReleaseTimeBased:
		if autoReleaseAfterDays <= 0 {
			return fault.Validation("time based escrow requires auto_release_after_days > 0")
		}
	default:
		return fault.Validation("unknown release type %q", releaseType)
	}

	return nil
}

// ValidateMilestoneAmounts enforces that milestone amounts sum to the escrow
// total when milestones are used.
func ValidateMilestoneAmounts(total decimal.Decimal, milestones []Milestone) error {
	if len(milestones) == 0 {
		return nil
	}

	sum := decimal.Zero
	for _, m := range milestones {
		if !m.Amount.IsPositive() {
			return fault.Validation("milestone %q amount must be positive", m.Title)
		}
		sum = sum.Add(m.Amount)
	}

	if !sum.Equal(total) {
		return fault.Validation("milestone amounts sum to %s, escrow total is %s",
			sum.String(), total.String())
	}

	return nil
}

// TimeReleaseEligible reports whether a time based escrow has aged past its
// auto release window.
func TimeReleaseEligible(e *Escrow, now time.Time) bool {
	if e.ReleaseType != ReleaseTimeBased || e.Status != StatusFunded || e.FundedAt.IsZero() {
		return false
	}
	return now.After(e.FundedAt.AddDate(0, 0, e.AutoReleaseAfterDays))
}

// AllMilestonesReleased reports whether every milestone has been released.
func AllMilestonesReleased(milestones []Milestone) bool {
	if len(milestones) == 0 {
		return false
	}
	for _, m := range milestones {
		if m.Status != MilestoneReleased {
			return false
		}
	}
	return true
}
