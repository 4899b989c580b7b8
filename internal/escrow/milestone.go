package escrow

import (
	"context"
	"time"

	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"

	"github.com/pkg/errors"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

// FetchMilestones returns an escrow's milestones in order.
func FetchMilestones(ctx context.Context, dbConn *db.DB, escrowID string) ([]Milestone, error) {
	sql := `SELECT
			m.escrow_id,
			m.idx,
			m.title,
			m.amount,
			m.status,
			m.date_modified
		FROM
			escrow_milestones m
		WHERE
			m.escrow_id=?
		ORDER BY
			m.idx`

	milestones := []Milestone{}
	err := dbConn.Select(ctx, &milestones, sql, escrowID)
	return milestones, err
}

// CompleteMilestone marks a deliverable done. Seller or admin only, while the
// escrow is funded.
func CompleteMilestone(ctx context.Context, dbConn *db.DB, escrowID string, idx int,
	actorID string, isAdmin bool) (Escrow, error) {

	ctx, span := trace.StartSpan(ctx, "internal.escrow.CompleteMilestone")
	defer span.End()

	e, err := fetchForMilestone(ctx, dbConn, escrowID, idx)
	if err != nil {
		return Escrow{}, err
	}

	if actorID != e.SellerID && !isAdmin {
		return Escrow{}, fault.Forbidden("completing a milestone requires the seller or an admin")
	}

	crossed, err := milestoneTransition(ctx, dbConn, escrowID, idx,
		MilestonePending, MilestoneCompleted)
	if err != nil {
		return Escrow{}, err
	}
	if !crossed {
		return Escrow{}, fault.State("milestone %d of escrow %s is not pending", idx, escrowID)
	}

	return Fetch(ctx, dbConn, escrowID)
}

// ReleaseMilestone releases the funds of a completed milestone. Buyer or
// admin only. The escrow itself reaches released only when every milestone
// has been released.
func ReleaseMilestone(ctx context.Context, dbConn *db.DB, escrowID string, idx int,
	actorID string, isAdmin bool) (Escrow, error) {

	ctx, span := trace.StartSpan(ctx, "internal.escrow.ReleaseMilestone")
	defer span.End()

	e, err := fetchForMilestone(ctx, dbConn, escrowID, idx)
	if err != nil {
		return Escrow{}, err
	}

	if actorID != e.BuyerID && !isAdmin {
		return Escrow{}, fault.Forbidden("releasing a milestone requires the buyer or an admin")
	}

	crossed, err := milestoneTransition(ctx, dbConn, escrowID, idx,
		MilestoneCompleted, MilestoneReleased)
	if err != nil {
		return Escrow{}, err
	}
	if !crossed {
		return Escrow{}, fault.State("milestone %d of escrow %s is not completed", idx, escrowID)
	}

	milestones, err := FetchMilestones(ctx, dbConn, escrowID)
	if err != nil {
		return Escrow{}, errors.Wrap(err, "fetch milestones")
	}

	if AllMilestonesReleased(milestones) {
		crossed, err := transition(ctx, dbConn, escrowID, StatusFunded, StatusReleased)
		if err != nil {
			return Escrow{}, err
		}
		if crossed {
			logger.Info(ctx, "Escrow %s released, all %d milestones released",
				escrowID, len(milestones))
		}
	}

	return Fetch(ctx, dbConn, escrowID)
}

// fetchForMilestone loads the escrow and checks milestone operations are
// currently allowed: the escrow is funded, the milestone exists and no
// dispute is open.
func fetchForMilestone(ctx context.Context, dbConn *db.DB, escrowID string,
	idx int) (Escrow, error) {

	e, err := Fetch(ctx, dbConn, escrowID)
	if err != nil {
		return Escrow{}, err
	}

	if e.ReleaseType != ReleaseMilestoneBased {
		return Escrow{}, fault.State("escrow %s is not milestone based", escrowID)
	}
	if e.Status != StatusFunded {
		return Escrow{}, fault.State("escrow %s is %s, milestones require a funded escrow",
			escrowID, e.Status)
	}
	if e.OpenDispute() != nil {
		return Escrow{}, fault.State("escrow %s has an open dispute, milestones are blocked",
			escrowID)
	}
	if idx < 0 || idx >= len(e.Milestones) {
		return Escrow{}, fault.NotFound("escrow %s has no milestone %d", escrowID, idx)
	}

	return e, nil
}

// milestoneTransition performs a conditional milestone status change and
// reports whether this call won it.
func milestoneTransition(ctx context.Context, dbConn *db.DB, escrowID string, idx int,
	from, to string) (bool, error) {

	sql := `UPDATE escrow_milestones
		SET status=?, date_modified=?
		WHERE escrow_id=? AND idx=? AND status=?`

	count, err := dbConn.ExecuteCount(ctx, sql, to, time.Now(), escrowID, idx, from)
	if err != nil {
		return false, errors.Wrapf(err, "milestone transition %s -> %s", from, to)
	}

	return count == 1, nil
}
