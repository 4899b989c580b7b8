package escrow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

// disputeStorageKey is the path under which dispute snapshots are archived.
const disputeStorageKey = "escrow_disputes"

// NewDispute is the request to open arbitration on a funded escrow.
type NewDispute struct {
	Reason      string   `json:"reason" validate:"required"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

// Resolution is an admin's decision on an open dispute.
type Resolution struct {
	Resolution   string          `json:"resolution" validate:"required"`
	Notes        string          `json:"notes"`
	RefundAmount decimal.Decimal `json:"refund_amount"`

	// Outcome directs the final fund movement for custom resolutions,
	// released or refunded.
	Outcome string `json:"outcome"`
}

// FileDispute opens a dispute on a funded escrow. Only the buyer or seller
// may file, only while funded, and never while another dispute is open. The
// partial unique index on open disputes makes the single-open-dispute rule
// hold under concurrent filings.
func FileDispute(ctx context.Context, dbConn *db.DB, escrowID, actorID string,
	req NewDispute) (Escrow, error) {

	ctx, span := trace.StartSpan(ctx, "internal.escrow.FileDispute")
	defer span.End()

	e, err := Fetch(ctx, dbConn, escrowID)
	if err != nil {
		return Escrow{}, err
	}

	if actorID != e.BuyerID && actorID != e.SellerID {
		return Escrow{}, fault.Forbidden("only the buyer or seller may file a dispute")
	}
	if e.Status != StatusFunded {
		return Escrow{}, fault.State("escrow %s is %s, disputes require a funded escrow",
			escrowID, e.Status)
	}
	if e.OpenDispute() != nil {
		return Escrow{}, fault.Conflict("escrow %s already has an open dispute", escrowID)
	}

	dispute := Dispute{
		ID:          uuid.New().String(),
		EscrowID:    escrowID,
		FiledBy:     actorID,
		Reason:      req.Reason,
		Description: req.Description,
		Evidence:    pq.StringArray(req.Evidence),
		Status:      DisputeOpen,
		DateCreated: time.Now(),
	}

	sql := `INSERT
		INTO escrow_disputes (
			id,
			escrow_id,
			filed_by,
			reason,
			description,
			evidence,
			status,
			resolution,
			resolution_notes,
			refund_amount,
			date_created,
			date_resolved
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if err := dbConn.Execute(ctx, sql,
		dispute.ID,
		dispute.EscrowID,
		dispute.FiledBy,
		dispute.Reason,
		dispute.Description,
		dispute.Evidence,
		dispute.Status,
		"",
		"",
		decimal.Zero,
		dispute.DateCreated,
		time.Time{}); err != nil {

		if db.IsUniqueViolation(err) {
			return Escrow{}, fault.Conflict("escrow %s already has an open dispute", escrowID)
		}
		return Escrow{}, errors.Wrap(err, "insert dispute")
	}

	crossed, err := transition(ctx, dbConn, escrowID, StatusFunded, StatusDisputed)
	if err != nil {
		return Escrow{}, err
	}
	if !crossed {
		return Escrow{}, fault.State("escrow %s left funded while the dispute was filed", escrowID)
	}

	archiveDispute(ctx, dbConn, &dispute)

	logger.Info(ctx, "Dispute %s filed on escrow %s by %s", dispute.ID, escrowID, actorID)
	return Fetch(ctx, dbConn, escrowID)
}

// ResolveDispute is admin-only and the single authorized writer out of the
// disputed state. The resolution is recorded on the dispute row and the
// escrow moves to released or refunded in one conditional update, so a crash
// mid-resolution never strands the escrow between states.
func ResolveDispute(ctx context.Context, dbConn *db.DB, escrowID, actorID string,
	req Resolution) (Escrow, error) {

	ctx, span := trace.StartSpan(ctx, "internal.escrow.ResolveDispute")
	defer span.End()

	actor, err := order.FetchUser(ctx, dbConn, actorID)
	if err != nil {
		if errors.Cause(err) == db.ErrNotFound {
			return Escrow{}, fault.NotFound("user %s unknown", actorID)
		}
		return Escrow{}, errors.Wrap(err, "fetch actor")
	}
	if actor.Role != order.RoleAdmin {
		return Escrow{}, fault.Forbidden("resolving a dispute requires an admin")
	}

	e, err := Fetch(ctx, dbConn, escrowID)
	if err != nil {
		return Escrow{}, err
	}

	dispute := e.OpenDispute()
	if dispute == nil || e.Status != StatusDisputed {
		return Escrow{}, fault.State("escrow %s has no open dispute", escrowID)
	}

	var outcome string
	switch req.Resolution {
	case ResolutionBuyerFavor:
		outcome = StatusRefunded
	case ResolutionSellerFavor:
		outcome = StatusReleased
	case ResolutionPartialRefund:
		if !req.RefundAmount.IsPositive() || req.RefundAmount.GreaterThan(e.Amount) {
			return Escrow{}, fault.Validation("partial refund amount %s outside (0, %s]",
				req.RefundAmount.String(), e.Amount.String())
		}
		outcome = StatusRefunded
	case ResolutionCustom:
		if req.Outcome != StatusReleased && req.Outcome != StatusRefunded {
			return Escrow{}, fault.Validation("custom resolution outcome must be released or refunded")
		}
		outcome = req.Outcome
	default:
		return Escrow{}, fault.Validation("unknown resolution %q", req.Resolution)
	}

	now := time.Now()
	disputeSQL := `UPDATE escrow_disputes
		SET status=?, resolution=?, resolution_notes=?, refund_amount=?, date_resolved=?
		WHERE id=? AND status=?`

	count, err := dbConn.ExecuteCount(ctx, disputeSQL, DisputeResolved, req.Resolution,
		req.Notes, req.RefundAmount, now, dispute.ID, DisputeOpen)
	if err != nil {
		return Escrow{}, errors.Wrap(err, "resolve dispute")
	}
	if count == 0 {
		return Escrow{}, fault.State("dispute %s was resolved concurrently", dispute.ID)
	}

	crossed, err := transition(ctx, dbConn, escrowID, StatusDisputed, outcome)
	if err != nil {
		return Escrow{}, err
	}
	if !crossed {
		return Escrow{}, fault.State("escrow %s left disputed while the resolution was recorded",
			escrowID)
	}

	dispute.Status = DisputeResolved
	dispute.Resolution = req.Resolution
	dispute.ResolutionNotes = req.Notes
	dispute.RefundAmount = req.RefundAmount
	dispute.DateResolved = now
	archiveDispute(ctx, dbConn, dispute)

	logger.Info(ctx, "Dispute %s on escrow %s resolved %s -> %s", dispute.ID, escrowID,
		req.Resolution, outcome)
	return Fetch(ctx, dbConn, escrowID)
}

// archiveDispute writes a snapshot of the dispute to blob storage for the
// audit trail. Failures are logged, never fatal.
func archiveDispute(ctx context.Context, dbConn *db.DB, dispute *Dispute) {
	body, err := json.Marshal(dispute)
	if err != nil {
		logger.Warn(ctx, "Failed to serialize dispute %s : %s", dispute.ID, err)
		return
	}

	key := strings.Join([]string{disputeStorageKey, dispute.EscrowID, dispute.ID}, "/")
	if err := dbConn.Put(ctx, key, body); err != nil {
		logger.Warn(ctx, "Failed to archive dispute %s : %s", dispute.ID, err)
	}
}
