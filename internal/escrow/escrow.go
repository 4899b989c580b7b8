package escrow

import (
	"context"
	"time"

	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"
	"github.com/coincart/settlement-engine/internal/settlement"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tokenized/logger"
	"go.opencensus.io/trace"
)

const EscrowColumns = `
		e.id,
		e.buyer_id,
		e.seller_id,
		e.order_id,
		e.cryptocurrency,
		e.amount,
		e.amount_usd,
		e.deposit_address,
		e.release_address,
		e.refund_address,
		e.release_type,
		e.auto_release_after_days,
		e.status,
		e.buyer_release_ok,
		e.seller_release_ok,
		e.funding_tx_hash,
		e.funded_at,
		e.date_created,
		e.date_modified`

// NewEscrow is the request to open an escrow.
type NewEscrow struct {
	BuyerID              string             `json:"buyer_id" validate:"required"`
	SellerID             string             `json:"seller_id" validate:"required"`
	OrderID              string             `json:"order_id"`
	Cryptocurrency       string             `json:"cryptocurrency" validate:"required"`
	Amount               decimal.Decimal    `json:"amount" validate:"required"`
	DepositAddress       string             `json:"deposit_address" validate:"required"`
	ReleaseAddress       string             `json:"release_address"`
	RefundAddress        string             `json:"refund_address"`
	ReleaseType          string             `json:"release_type" validate:"required"`
	AutoReleaseAfterDays int                `json:"auto_release_after_days"`
	ReleaseConditions    []ReleaseCondition `json:"release_conditions"`
	Milestones           []Milestone        `json:"milestones"`
}

// Create opens an escrow in the created state. All validation happens before
// any write.
func Create(ctx context.Context, dbConn *db.DB, req NewEscrow,
	amountUSD decimal.Decimal) (Escrow, error) {

	ctx, span := trace.StartSpan(ctx, "internal.escrow.Create")
	defer span.End()

	if !req.Amount.IsPositive() {
		return Escrow{}, fault.Validation("escrow amount must be positive")
	}
	if req.BuyerID == req.SellerID {
		return Escrow{}, fault.Validation("buyer and seller must differ")
	}
	if err := ValidateReleaseType(req.ReleaseType, req.AutoReleaseAfterDays,
		len(req.Milestones)); err != nil {
		return Escrow{}, err
	}
	if err := ValidateMilestoneAmounts(req.Amount, req.Milestones); err != nil {
		return Escrow{}, err
	}

	for _, userID := range []string{req.BuyerID, req.SellerID} {
		if _, err := order.FetchUser(ctx, dbConn, userID); err != nil {
			if errors.Cause(err) == db.ErrNotFound {
				return Escrow{}, fault.NotFound("user %s unknown", userID)
			}
			return Escrow{}, errors.Wrap(err, "fetch user")
		}
	}

	now := time.Now()
	e := Escrow{
		ID:                   uuid.New().String(),
		BuyerID:              req.BuyerID,
		SellerID:             req.SellerID,
		OrderID:              req.OrderID,
		Cryptocurrency:       req.Cryptocurrency,
		Amount:               req.Amount,
		AmountUSD:            amountUSD,
		DepositAddress:       req.DepositAddress,
		ReleaseAddress:       req.ReleaseAddress,
		RefundAddress:        req.RefundAddress,
		ReleaseType:          req.ReleaseType,
		AutoReleaseAfterDays: req.AutoReleaseAfterDays,
		Status:               StatusCreated,
		DateCreated:          now,
		DateModified:         now,
	}

	session := dbConn.Copy()
	defer session.Close()
	session.BeginTransaction()

	sql := `INSERT
		INTO escrows (
			id,
			buyer_id,
			seller_id,
			order_id,
			cryptocurrency,
			amount,
			amount_usd,
			deposit_address,
			release_address,
			refund_address,
			release_type,
			auto_release_after_days,
			status,
			buyer_release_ok,
			seller_release_ok,
			funding_tx_hash,
			funded_at,
			date_created,
			date_modified
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if err := session.Execute(ctx, sql,
		e.ID,
		e.BuyerID,
		e.SellerID,
		e.OrderID,
		e.Cryptocurrency,
		e.Amount,
		e.AmountUSD,
		e.DepositAddress,
		e.ReleaseAddress,
		e.RefundAddress,
		e.ReleaseType,
		e.AutoReleaseAfterDays,
		e.Status,
		e.BuyerReleaseOK,
		e.SellerReleaseOK,
		e.FundingTxHash,
		time.Time{},
		e.DateCreated,
		e.DateModified); err != nil {

		session.Rollback()
		return Escrow{}, errors.Wrap(err, "insert escrow")
	}

	for i, condition := range req.ReleaseConditions {
		conditionSQL := `INSERT
			INTO escrow_conditions (escrow_id, idx, type, value)
			VALUES (?, ?, ?, ?)`
		if err := session.Execute(ctx, conditionSQL, e.ID, i, condition.Type,
			condition.Value); err != nil {
			session.Rollback()
			return Escrow{}, errors.Wrap(err, "insert condition")
		}
		condition.EscrowID = e.ID
		condition.Idx = i
		e.ReleaseConditions = append(e.ReleaseConditions, condition)
	}

	for i, milestone := range req.Milestones {
		milestoneSQL := `INSERT
			INTO escrow_milestones (escrow_id, idx, title, amount, status, date_modified)
			VALUES (?, ?, ?, ?, ?, ?)`
		if err := session.Execute(ctx, milestoneSQL, e.ID, i, milestone.Title,
			milestone.Amount, MilestonePending, now); err != nil {
			session.Rollback()
			return Escrow{}, errors.Wrap(err, "insert milestone")
		}
		milestone.EscrowID = e.ID
		milestone.Idx = i
		milestone.Status = MilestonePending
		milestone.DateModified = now
		e.Milestones = append(e.Milestones, milestone)
	}

	if err := session.Commit(); err != nil {
		return Escrow{}, errors.Wrap(err, "commit escrow")
	}

	e.Disputes = []Dispute{}
	return e, nil
}

// Fetch retrieves an escrow with its conditions, milestones and disputes.
func Fetch(ctx context.Context, dbConn *db.DB, id string) (Escrow, error) {
	sql := `SELECT ` + EscrowColumns + `
		FROM
			escrows e
		WHERE
			e.id=?`

	e := Escrow{}
	if err := dbConn.Get(ctx, &e, sql, id); err != nil {
		if errors.Cause(err) == db.ErrNotFound {
			err = fault.NotFound("escrow %s unknown", id)
		}
		return e, err
	}

	conditionSQL := `SELECT
			c.escrow_id,
			c.idx,
			c.type,
			c.value
		FROM
			escrow_conditions c
		WHERE
			c.escrow_id=?
		ORDER BY
			c.idx`

	if err := dbConn.Select(ctx, &e.ReleaseConditions, conditionSQL, id); err != nil {
		return e, errors.Wrap(err, "fetch conditions")
	}

	milestones, err := FetchMilestones(ctx, dbConn, id)
	if err != nil {
		return e, errors.Wrap(err, "fetch milestones")
	}
	e.Milestones = milestones

	disputeSQL := `SELECT
			d.id,
			d.escrow_id,
			d.filed_by,
			d.reason,
			d.description,
			d.evidence,
			d.status,
			d.resolution,
			d.resolution_notes,
			d.refund_amount,
			d.date_created,
			d.date_resolved
		FROM
			escrow_disputes d
		WHERE
			d.escrow_id=?
		ORDER BY
			d.date_created`

	if err := dbConn.Select(ctx, &e.Disputes, disputeSQL, id); err != nil {
		return e, errors.Wrap(err, "fetch disputes")
	}

	return e, nil
}

// Fund records the deposit confirmation and moves the escrow to funded. The
// funding transaction goes through the settlement ledger, so a replayed
// confirmation funds exactly once. Automatic escrows release immediately on
// funding.
func Fund(ctx context.Context, dbConn *db.DB, orders settlement.OrderStore,
	escrowID, transactionHash string, confirmations int64) (Escrow, error) {

	ctx, span := trace.StartSpan(ctx, "internal.escrow.Fund")
	defer span.End()

	e, err := Fetch(ctx, dbConn, escrowID)
	if err != nil {
		return Escrow{}, err
	}

	if !CanTransition(e.Status, StatusFunded) {
		// A replayed confirmation on an already funded escrow is success.
		if e.Status != StatusCreated && e.FundingTxHash == transactionHash {
			return e, nil
		}
		return Escrow{}, fault.State("escrow %s is %s and cannot be funded", escrowID, e.Status)
	}

	effects := settlement.Effects{
		OrderID:        e.OrderID,
		Cryptocurrency: e.Cryptocurrency,
		Amount:         e.Amount,
		AmountUSD:      e.AmountUSD,
		Confirmations:  confirmations,
	}
	if len(e.OrderID) > 0 {
		effects.OrderStatus = order.StatusPaid
	}

	if _, err := settlement.Settle(ctx, dbConn, orders, transactionHash, effects); err != nil {
		return Escrow{}, errors.Wrap(err, "settle funding")
	}

	now := time.Now()
	sql := `UPDATE escrows
		SET status=?, funding_tx_hash=?, funded_at=?, date_modified=?
		WHERE id=? AND status=?`

	count, err := dbConn.ExecuteCount(ctx, sql, StatusFunded, transactionHash, now, now,
		escrowID, StatusCreated)
	if err != nil {
		return Escrow{}, errors.Wrap(err, "mark funded")
	}
	if count == 0 {
		logger.Info(ctx, "Escrow %s funding already recorded", escrowID)
	}

	if e.ReleaseType == ReleaseAutomatic {
		if _, err := transition(ctx, dbConn, escrowID, StatusFunded, StatusReleased); err != nil {
			return Escrow{}, err
		}
	}

	return Fetch(ctx, dbConn, escrowID)
}

// Release moves funds to the seller according to the escrow's release type
// policy. Blocked while a dispute is open.
func Release(ctx context.Context, dbConn *db.DB, escrowID, actorID string,
	isAdmin bool) (Escrow, error) {

	ctx, span := trace.StartSpan(ctx, "internal.escrow.Release")
	defer span.End()

	e, err := Fetch(ctx, dbConn, escrowID)
	if err != nil {
		return Escrow{}, err
	}

	if e.OpenDispute() != nil {
		return Escrow{}, fault.State("escrow %s has an open dispute, release is blocked", escrowID)
	}
	if e.Status != StatusFunded {
		return Escrow{}, fault.State("escrow %s is %s, only funded escrows release",
			escrowID, e.Status)
	}

	switch e.ReleaseType {
	case ReleaseManual:
		if actorID != e.SellerID && !isAdmin {
			return Escrow{}, fault.Forbidden("manual release requires the seller or an admin")
		}

	case ReleaseMutual:
		if err := confirmMutualRelease(ctx, dbConn, &e, actorID); err != nil {
			return Escrow{}, err
		}
		if !e.BuyerReleaseOK || !e.SellerReleaseOK {
			// Waiting on the counterparty; no status change yet.
			return Fetch(ctx, dbConn, escrowID)
		}

	case ReleaseTimeBased:
		if !TimeReleaseEligible(&e, time.Now()) && !isAdmin {
			return Escrow{}, fault.State("escrow %s auto release window has not elapsed", escrowID)
		}

	case ReleaseAutomatic:
		return Escrow{}, fault.State("automatic escrows release on funding confirmation")

	case ReleaseMilestoneBased:
		return Escrow{}, fault.State("milestone based escrows release per milestone")
	}

	crossed, err := transition(ctx, dbConn, escrowID, StatusFunded, StatusReleased)
	if err != nil {
		return Escrow{}, err
	}
	if !crossed {
		return Escrow{}, fault.State("escrow %s release lost a concurrent transition", escrowID)
	}

	logger.Info(ctx, "Escrow %s released (%s)", escrowID, e.ReleaseType)
	return Fetch(ctx, dbConn, escrowID)
}

// confirmMutualRelease records one party's release confirmation on the
// escrow record and reflects it into e.
func confirmMutualRelease(ctx context.Context, dbConn *db.DB, e *Escrow, actorID string) error {
	var column string
	switch actorID {
	case e.BuyerID:
		column = "buyer_release_ok"
		e.BuyerReleaseOK = true
	case e.SellerID:
		column = "seller_release_ok"
		e.SellerReleaseOK = true
	default:
		return fault.Forbidden("mutual release requires the buyer or seller")
	}

	sql := `UPDATE escrows SET ` + column + `=true, date_modified=? WHERE id=?`
	if err := dbConn.Execute(ctx, sql, time.Now(), e.ID); err != nil {
		return errors.Wrap(err, "record release confirmation")
	}

	// Re-read so a concurrent counterparty confirmation is observed.
	refreshed, err := Fetch(ctx, dbConn, e.ID)
	if err != nil {
		return err
	}
	e.BuyerReleaseOK = refreshed.BuyerReleaseOK
	e.SellerReleaseOK = refreshed.SellerReleaseOK

	return nil
}

// Refund returns funds to the buyer. Authorized by the seller (surrendering
// the funds) or an admin, from funded only.
func Refund(ctx context.Context, dbConn *db.DB, escrowID, actorID string,
	isAdmin bool) (Escrow, error) {

	ctx, span := trace.StartSpan(ctx, "internal.escrow.Refund")
	defer span.End()

	e, err := Fetch(ctx, dbConn, escrowID)
	if err != nil {
		return Escrow{}, err
	}

	if actorID != e.SellerID && !isAdmin {
		return Escrow{}, fault.Forbidden("refund requires the seller or an admin")
	}
	if e.OpenDispute() != nil {
		return Escrow{}, fault.State("escrow %s has an open dispute, refund goes through resolution",
			escrowID)
	}

	crossed, err := transition(ctx, dbConn, escrowID, StatusFunded, StatusRefunded)
	if err != nil {
		return Escrow{}, err
	}
	if !crossed {
		return Escrow{}, fault.State("escrow %s is %s and cannot be refunded", escrowID, e.Status)
	}

	return Fetch(ctx, dbConn, escrowID)
}

// Cancel voids an escrow. Either party may cancel before funding; once
// funded only an admin may, and never after funds moved.
func Cancel(ctx context.Context, dbConn *db.DB, escrowID, actorID string,
	isAdmin bool) (Escrow, error) {

	ctx, span := trace.StartSpan(ctx, "internal.escrow.Cancel")
	defer span.End()

	e, err := Fetch(ctx, dbConn, escrowID)
	if err != nil {
		return Escrow{}, err
	}

	switch e.Status {
	case StatusCreated:
		if actorID != e.BuyerID && actorID != e.SellerID && !isAdmin {
			return Escrow{}, fault.Forbidden("cancel requires the buyer, seller or an admin")
		}
	case StatusFunded:
		if !isAdmin {
			return Escrow{}, fault.Forbidden("cancelling a funded escrow requires an admin")
		}
	default:
		return Escrow{}, fault.State("escrow %s is %s and cannot be cancelled", escrowID, e.Status)
	}

	sql := `UPDATE escrows
		SET status=?, date_modified=?
		WHERE id=? AND status IN (?, ?)`

	count, err := dbConn.ExecuteCount(ctx, sql, StatusCancelled, time.Now(), escrowID,
		StatusCreated, StatusFunded)
	if err != nil {
		return Escrow{}, errors.Wrap(err, "cancel escrow")
	}
	if count == 0 {
		return Escrow{}, fault.State("escrow %s is %s and cannot be cancelled", escrowID, e.Status)
	}

	return Fetch(ctx, dbConn, escrowID)
}

// AutoReleaseSweep releases every time based escrow whose window has elapsed
// with no dispute filed. Run periodically by the background worker.
func AutoReleaseSweep(ctx context.Context, dbConn *db.DB, now time.Time) (int, error) {
	ctx, span := trace.StartSpan(ctx, "internal.escrow.AutoReleaseSweep")
	defer span.End()

	sql := `SELECT ` + EscrowColumns + `
		FROM
			escrows e
		WHERE
			e.release_type=?
			AND e.status=?`

	eligible := []Escrow{}
	if err := dbConn.Select(ctx, &eligible, sql, ReleaseTimeBased, StatusFunded); err != nil {
		return 0, errors.Wrap(err, "select time based escrows")
	}

	released := 0
	for i := range eligible {
		if !TimeReleaseEligible(&eligible[i], now) {
			continue
		}

		// A dispute filed before this sweep wins: the conditional update
		// only fires while the escrow is still funded.
		crossed, err := transition(ctx, dbConn, eligible[i].ID, StatusFunded, StatusReleased)
		if err != nil {
			logger.Warn(ctx, "Auto release failed for escrow %s : %s", eligible[i].ID, err)
			continue
		}
		if crossed {
			logger.Info(ctx, "Escrow %s auto released after %d days", eligible[i].ID,
				eligible[i].AutoReleaseAfterDays)
			released++
		}
	}

	return released, nil
}

// transition performs a conditional status change and reports whether this
// call won it.
func transition(ctx context.Context, dbConn *db.DB, escrowID, from, to string) (bool, error) {
	if !CanTransition(from, to) {
		return false, fault.State("escrow transition %s -> %s is not allowed", from, to)
	}

	sql := `UPDATE escrows
		SET status=?, date_modified=?
		WHERE id=? AND status=?`

	count, err := dbConn.ExecuteCount(ctx, sql, to, time.Now(), escrowID, from)
	if err != nil {
		return false, errors.Wrapf(err, "transition %s -> %s", from, to)
	}

	return count == 1, nil
}
