package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	StepCreditPayee  = "CREDIT_PAYEE"
	StepCreditAgency = "CREDIT_AGENCY"
	StepRefundPayer  = "REFUND_PAYER"
)

// EscrowUsecase parks client money against contract milestones in the
// escrow wallet and pays it out on release.
type EscrowUsecase struct {
	*Ledger
	engine *SettlementEngine
}

func NewEscrowUsecase(ledger *Ledger, engine *SettlementEngine) *EscrowUsecase {
	return &EscrowUsecase{Ledger: ledger, engine: engine}
}

type FundEscrowRequest struct {
	PayerID     string
	ContractID  string
	MilestoneID string
	Amount      decimal.Decimal
	CostCenter  string
}

type EscrowResult struct {
	Hold       *domain.EscrowHold `json:"hold"`
	Settlement *domain.Saga       `json:"settlement,omitempty"`
	Replayed   bool               `json:"replayed"`
}

func (uc *EscrowUsecase) escrowWallet(ctx context.Context) (*domain.Wallet, error) {
	return uc.Wallet(ctx, uc.cfg.EscrowOwnerID)
}

// Fund moves amount from the payer into escrow for one milestone. A milestone
// holds at most one hold; funding it again with the same payer and amount
// returns the existing hold.
func (uc *EscrowUsecase) Fund(ctx context.Context, req FundEscrowRequest) (*EscrowResult, error) {
	if req.PayerID == "" || req.ContractID == "" || req.MilestoneID == "" {
		return nil, fmt.Errorf("%w: payer, contract and milestone are required", domain.ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, req.Amount.String())
	}

	payer, err := uc.Wallet(ctx, req.PayerID)
	if err != nil {
		return nil, err
	}
	escrow, err := uc.escrowWallet(ctx)
	if err != nil {
		return nil, err
	}

	hold := &domain.EscrowHold{
		ID:          id.New(),
		ContractID:  req.ContractID,
		MilestoneID: req.MilestoneID,
		PayerID:     req.PayerID,
		Amount:      req.Amount,
		CostCenter:  req.CostCenter,
		Status:      domain.EscrowHeld,
	}
	meta := domain.EscrowMetadata{
		HoldID:         hold.ID,
		ContractID:     hold.ContractID,
		MilestoneID:    hold.MilestoneID,
		CostCenter:     hold.CostCenter,
		CounterpartyID: req.PayerID,
	}

	var ps []*posting
	err = uc.store.WithinTx(ctx, func(q repository.Queries) error {
		if err := q.InsertEscrowHold(ctx, hold); err != nil {
			return err
		}
		if _, err := q.LockWallets(ctx, payer.ID, escrow.ID); err != nil {
			return err
		}
		now := uc.now()
		out, err := post(ctx, q, debit, domain.Entry{
			WalletID:    payer.ID,
			Amount:      hold.Amount,
			Type:        domain.TxEscrowHold,
			ReferenceID: hold.ID + ":fund",
			Description: "Escrow for milestone " + hold.MilestoneID,
			Metadata:    domain.EscrowHoldMetadata(meta),
		}, now)
		if err != nil {
			return err
		}
		in, err := post(ctx, q, credit, domain.Entry{
			WalletID:    escrow.ID,
			Amount:      hold.Amount,
			Type:        domain.TxEscrowHold,
			ReferenceID: hold.ID + ":hold",
			Description: "Escrow for milestone " + hold.MilestoneID,
			Metadata:    domain.EscrowHoldMetadata(meta),
		}, now)
		if err != nil {
			return err
		}
		ps = []*posting{out, in}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		existing, gerr := uc.store.GetEscrowHoldByMilestone(ctx, req.ContractID, req.MilestoneID)
		if gerr != nil {
			return nil, err
		}
		if existing.PayerID != req.PayerID || !existing.Amount.Equal(req.Amount) {
			return nil, fmt.Errorf("milestone %s already funded: %w", req.MilestoneID, domain.ErrDuplicateReference)
		}
		return &EscrowResult{Hold: existing, Replayed: true}, nil
	}
	if err != nil {
		uc.logger.Warn("escrow funding failed",
			zap.String("contract_id", req.ContractID),
			zap.String("milestone_id", req.MilestoneID),
			zap.Error(err))
		return nil, err
	}
	uc.committed(ctx, ps...)

	uc.audit.Emit(ctx, audit.Entry{
		EventType:   domain.EventEscrowFunded,
		ActorID:     req.PayerID,
		Amount:      amountPtr(hold.Amount),
		ReferenceID: hold.ID,
		Metadata: map[string]interface{}{
			"contractId":  hold.ContractID,
			"milestoneId": hold.MilestoneID,
			"costCenter":  hold.CostCenter,
		},
	})
	uc.logger.Info("escrow funded",
		zap.String("hold_id", hold.ID),
		zap.String("contract_id", hold.ContractID),
		zap.String("amount", hold.Amount.String()))
	return &EscrowResult{Hold: hold}, nil
}

// needsApproval reports whether releasing amount goes through the approval gate.
func (uc *EscrowUsecase) needsApproval(amount decimal.Decimal) bool {
	t := uc.cfg.EscrowApprovalThreshold
	return t.IsPositive() && amount.GreaterThan(t)
}

func validRelease(r *domain.EscrowRelease) error {
	if r == nil || r.PayeeID == "" {
		return fmt.Errorf("%w: payee is required", domain.ErrInvalidRequest)
	}
	if r.AgencyPercent.IsNegative() || r.AgencyPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: agency percent %s", domain.ErrInvalidRequest, r.AgencyPercent)
	}
	if r.AgencyPercent.IsPositive() && r.AgencyID == "" {
		return fmt.Errorf("%w: agency percent without agency", domain.ErrInvalidRequest)
	}
	if r.FreelancerPercent != nil && (r.FreelancerPercent.IsNegative() || r.FreelancerPercent.GreaterThan(hundred)) {
		return fmt.Errorf("%w: freelancer percent %s", domain.ErrInvalidRequest, r.FreelancerPercent)
	}
	return nil
}

// Release pays the whole hold to the payee. Amounts above the approval
// threshold must go through RequestRelease and Approve instead.
func (uc *EscrowUsecase) Release(ctx context.Context, holdID string, release domain.EscrowRelease, actorID string) (*EscrowResult, error) {
	release.FreelancerPercent = nil
	if err := validRelease(&release); err != nil {
		return nil, err
	}
	hold, err := uc.store.GetEscrowHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Status == domain.EscrowReleased {
		return uc.settleRelease(ctx, hold, actorID)
	}
	if hold.Status != domain.EscrowHeld {
		return nil, fmt.Errorf("hold %s is %s: %w", hold.ID, hold.Status, domain.ErrEscrowStateConflict)
	}
	if uc.needsApproval(hold.Amount) {
		return nil, fmt.Errorf("%w: %s exceeds %s", domain.ErrApprovalRequired, hold.Amount, uc.cfg.EscrowApprovalThreshold)
	}

	hold.Status = domain.EscrowReleased
	hold.Release = &release
	hold.RequestedBy = actorID
	if err := uc.store.UpdateEscrowHold(ctx, hold, domain.EscrowHeld); err != nil {
		return nil, err
	}
	return uc.settleRelease(ctx, hold, actorID)
}

// RequestRelease parks a payout for a second person to approve.
func (uc *EscrowUsecase) RequestRelease(ctx context.Context, holdID string, release domain.EscrowRelease, actorID string) (*domain.EscrowHold, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: requester is required", domain.ErrInvalidRequest)
	}
	if err := validRelease(&release); err != nil {
		return nil, err
	}
	hold, err := uc.store.GetEscrowHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	hold.Status = domain.EscrowPendingApproval
	hold.Release = &release
	hold.RequestedBy = actorID
	if err := uc.store.UpdateEscrowHold(ctx, hold, domain.EscrowHeld); err != nil {
		return nil, err
	}

	uc.audit.Emit(ctx, audit.Entry{
		EventType:   domain.EventEscrowReleaseRequested,
		ActorID:     actorID,
		Amount:      amountPtr(hold.Amount),
		ReferenceID: hold.ID,
		Metadata: map[string]interface{}{
			"contractId": hold.ContractID,
			"payeeId":    release.PayeeID,
		},
	})
	return hold, nil
}

// Approve executes a requested payout. The approver must be neither the
// requester nor the payer.
func (uc *EscrowUsecase) Approve(ctx context.Context, holdID, approverID string) (*EscrowResult, error) {
	if approverID == "" {
		return nil, fmt.Errorf("%w: approver is required", domain.ErrInvalidRequest)
	}
	hold, err := uc.store.GetEscrowHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Status == domain.EscrowReleased && hold.ApprovedBy == approverID {
		return uc.settleRelease(ctx, hold, approverID)
	}
	if hold.Status != domain.EscrowPendingApproval {
		return nil, fmt.Errorf("hold %s is %s: %w", hold.ID, hold.Status, domain.ErrEscrowStateConflict)
	}
	if approverID == hold.RequestedBy || approverID == hold.PayerID {
		return nil, domain.ErrSelfApproval
	}

	hold.Status = domain.EscrowReleased
	hold.ApprovedBy = approverID
	if err := uc.store.UpdateEscrowHold(ctx, hold, domain.EscrowPendingApproval); err != nil {
		return nil, err
	}
	return uc.settleRelease(ctx, hold, approverID)
}

// SplitRelease pays freelancerPercent of the hold to the payee and returns
// the rest to the payer. Both shares always add up to the held amount.
func (uc *EscrowUsecase) SplitRelease(ctx context.Context, holdID, payeeID string, freelancerPercent decimal.Decimal, actorID string) (*EscrowResult, error) {
	release := domain.EscrowRelease{PayeeID: payeeID, FreelancerPercent: &freelancerPercent}
	if err := validRelease(&release); err != nil {
		return nil, err
	}
	hold, err := uc.store.GetEscrowHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Status == domain.EscrowReleased {
		return uc.settleRelease(ctx, hold, actorID)
	}
	if !hold.Releasable() {
		return nil, fmt.Errorf("hold %s is %s: %w", hold.ID, hold.Status, domain.ErrEscrowStateConflict)
	}

	from := hold.Status
	hold.Status = domain.EscrowReleased
	hold.Release = &release
	hold.RequestedBy = actorID
	if err := uc.store.UpdateEscrowHold(ctx, hold, from); err != nil {
		return nil, err
	}
	return uc.settleRelease(ctx, hold, actorID)
}

// splitShares divides amount by the freelancer percent. The payer gets the
// remainder, so rounding never creates or loses a cent.
func splitShares(amount, freelancerPercent decimal.Decimal) (payee, payer decimal.Decimal) {
	payee = percentOf(amount, freelancerPercent)
	return payee, amount.Sub(payee)
}

// releasePlan builds the settlement of a RELEASED hold from its stored release.
func (uc *EscrowUsecase) releasePlan(ctx context.Context, hold *domain.EscrowHold) (*domain.SettlementPlan, error) {
	r := hold.Release
	escrow, err := uc.escrowWallet(ctx)
	if err != nil {
		return nil, err
	}
	payee, err := uc.Wallet(ctx, r.PayeeID)
	if err != nil {
		return nil, err
	}

	ref := hold.SettlementReference()
	meta := domain.EscrowMetadata{
		HoldID:         hold.ID,
		ContractID:     hold.ContractID,
		MilestoneID:    hold.MilestoneID,
		CostCenter:     hold.CostCenter,
		CounterpartyID: r.PayeeID,
	}
	desc := "Milestone " + hold.MilestoneID

	var holdUntil *time.Time
	if uc.cfg.ClearingPeriod > 0 {
		at := uc.now().Add(uc.cfg.ClearingPeriod)
		holdUntil = &at
	}

	payeeShare, payerShare := hold.Amount, decimal.Zero
	if r.Split() {
		payeeShare, payerShare = splitShares(hold.Amount, *r.FreelancerPercent)
	}
	agencyShare := decimal.Zero
	if r.AgencyID != "" && r.AgencyPercent.IsPositive() {
		agencyShare = percentOf(payeeShare, r.AgencyPercent)
	}
	netPayee := payeeShare.Sub(agencyShare)

	plan := &domain.SettlementPlan{
		Debit: domain.SagaLeg{
			Step:        domain.StepDebitPayer,
			WalletID:    escrow.ID,
			OwnerID:     escrow.OwnerID,
			Amount:      hold.Amount,
			Type:        domain.TxEscrowRelease,
			ReferenceID: ref + ":debit",
			Description: desc,
			Metadata:    domain.EscrowReleaseMetadata(meta),
		},
		Invoice: domain.InvoiceDraft{
			SenderID:   hold.PayerID,
			ReceiverID: r.PayeeID,
			Amount:     payeeShare,
			Currency:   escrow.Currency,
			Items: []domain.InvoiceItem{{
				Description: desc,
				Quantity:    1,
				UnitPrice:   payeeShare,
				GrossAmount: payeeShare,
				NetAmount:   payeeShare,
			}},
		},
	}
	if netPayee.IsPositive() {
		plan.Credits = append(plan.Credits, domain.SagaLeg{
			Step:        StepCreditPayee,
			WalletID:    payee.ID,
			OwnerID:     payee.OwnerID,
			Amount:      netPayee,
			Type:        domain.TxEscrowRelease,
			ReferenceID: ref + ":credit",
			Description: desc,
			HoldUntil:   holdUntil,
			Metadata:    domain.EscrowReleaseMetadata(meta),
		})
	}
	if agencyShare.IsPositive() {
		agency, err := uc.Wallet(ctx, r.AgencyID)
		if err != nil {
			return nil, err
		}
		plan.Credits = append(plan.Credits, domain.SagaLeg{
			Step:        StepCreditAgency,
			WalletID:    agency.ID,
			OwnerID:     agency.OwnerID,
			Amount:      agencyShare,
			Type:        domain.TxEscrowRelease,
			ReferenceID: ref + ":agency",
			Description: desc + " agency share",
			HoldUntil:   holdUntil,
			Metadata:    domain.EscrowReleaseMetadata(meta),
		})
	}
	if payerShare.IsPositive() {
		payer, err := uc.Wallet(ctx, hold.PayerID)
		if err != nil {
			return nil, err
		}
		back := meta
		back.CounterpartyID = hold.PayerID
		plan.Credits = append(plan.Credits, domain.SagaLeg{
			Step:        StepRefundPayer,
			WalletID:    payer.ID,
			OwnerID:     payer.OwnerID,
			Amount:      payerShare,
			Type:        domain.TxEscrowRefund,
			ReferenceID: ref + ":refund",
			Description: desc + " returned share",
			Metadata:    domain.EscrowRefundMetadata(back),
		})
	}
	return plan, nil
}

// settleRelease runs or replays the payout saga of a RELEASED hold. A saga
// that moved nothing puts the hold back where it was.
func (uc *EscrowUsecase) settleRelease(ctx context.Context, hold *domain.EscrowHold, actorID string) (*EscrowResult, error) {
	plan, err := uc.releasePlan(ctx, hold)
	if err != nil {
		return nil, err
	}
	s, replayed, err := uc.engine.Settle(ctx, domain.SagaEscrow, hold.SettlementReference(), *plan)
	if err != nil {
		if s != nil && (s.State == domain.SagaRejected || s.State == domain.SagaCompensated) {
			uc.reopen(ctx, hold)
		}
		uc.logger.Warn("escrow release failed",
			zap.String("hold_id", hold.ID),
			zap.Error(err))
		return nil, err
	}
	if replayed {
		return &EscrowResult{Hold: hold, Settlement: s, Replayed: true}, nil
	}

	event := domain.EventEscrowReleased
	meta := map[string]interface{}{
		"contractId":  hold.ContractID,
		"milestoneId": hold.MilestoneID,
		"payeeId":     hold.Release.PayeeID,
		"invoiceId":   *s.InvoiceID,
	}
	if hold.Release.Split() {
		event = domain.EventEscrowSplitReleased
		payee, payer := splitShares(hold.Amount, *hold.Release.FreelancerPercent)
		meta["freelancerPercent"] = hold.Release.FreelancerPercent.String()
		meta["payeeShare"] = payee.String()
		meta["payerShare"] = payer.String()
	}
	if hold.ApprovedBy != "" {
		meta["approvedBy"] = hold.ApprovedBy
	}
	uc.audit.Emit(ctx, audit.Entry{
		EventType:   event,
		ActorID:     actorID,
		Amount:      amountPtr(hold.Amount),
		ReferenceID: hold.ID,
		Metadata:    meta,
	})
	uc.logger.Info("escrow released",
		zap.String("hold_id", hold.ID),
		zap.String("payee_id", hold.Release.PayeeID),
		zap.String("amount", hold.Amount.String()))
	return &EscrowResult{Hold: hold, Settlement: s}, nil
}

// reopen returns a hold whose payout was refused to HELD so it can be
// refunded or released again.
func (uc *EscrowUsecase) reopen(ctx context.Context, hold *domain.EscrowHold) {
	hold.Status = domain.EscrowHeld
	hold.Release = nil
	hold.ApprovedBy = ""
	hold.RequestedBy = ""
	if err := uc.store.UpdateEscrowHold(context.WithoutCancel(ctx), hold, domain.EscrowReleased); err != nil {
		uc.logger.Error("failed to reopen escrow hold", zap.String("hold_id", hold.ID), zap.Error(err))
	}
}

// Refund returns the whole hold to the payer. Refunding a refunded hold is a
// no-op.
func (uc *EscrowUsecase) Refund(ctx context.Context, holdID, actorID string) (*EscrowResult, error) {
	hold, err := uc.store.GetEscrowHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Status == domain.EscrowRefunded {
		return &EscrowResult{Hold: hold, Replayed: true}, nil
	}
	if !hold.Releasable() {
		return nil, fmt.Errorf("hold %s is %s: %w", hold.ID, hold.Status, domain.ErrEscrowStateConflict)
	}

	payer, err := uc.Wallet(ctx, hold.PayerID)
	if err != nil {
		return nil, err
	}
	escrow, err := uc.escrowWallet(ctx)
	if err != nil {
		return nil, err
	}
	meta := domain.EscrowRefundMetadata{
		HoldID:         hold.ID,
		ContractID:     hold.ContractID,
		MilestoneID:    hold.MilestoneID,
		CostCenter:     hold.CostCenter,
		CounterpartyID: hold.PayerID,
	}

	from := hold.Status
	var ps []*posting
	err = uc.store.WithinTx(ctx, func(q repository.Queries) error {
		hold.Status = domain.EscrowRefunded
		if err := q.UpdateEscrowHold(ctx, hold, from); err != nil {
			return err
		}
		if _, err := q.LockWallets(ctx, payer.ID, escrow.ID); err != nil {
			return err
		}
		now := uc.now()
		out, err := post(ctx, q, debit, domain.Entry{
			WalletID:    escrow.ID,
			Amount:      hold.Amount,
			Type:        domain.TxEscrowRefund,
			ReferenceID: hold.ID + ":refund:debit",
			Description: "Escrow refund for milestone " + hold.MilestoneID,
			Metadata:    meta,
		}, now)
		if err != nil {
			return err
		}
		in, err := post(ctx, q, credit, domain.Entry{
			WalletID:    payer.ID,
			Amount:      hold.Amount,
			Type:        domain.TxEscrowRefund,
			ReferenceID: hold.ID + ":refund",
			Description: "Escrow refund for milestone " + hold.MilestoneID,
			Metadata:    meta,
		}, now)
		if err != nil {
			return err
		}
		ps = []*posting{out, in}
		return nil
	})
	if err != nil {
		hold.Status = from
		return nil, err
	}
	uc.committed(ctx, ps...)

	uc.audit.Emit(ctx, audit.Entry{
		EventType:   domain.EventEscrowRefunded,
		ActorID:     actorID,
		Amount:      amountPtr(hold.Amount),
		ReferenceID: hold.ID,
		Metadata: map[string]interface{}{
			"contractId":  hold.ContractID,
			"milestoneId": hold.MilestoneID,
		},
	})
	return &EscrowResult{Hold: hold}, nil
}

func (uc *EscrowUsecase) GetHold(ctx context.Context, holdID string) (*domain.EscrowHold, error) {
	return uc.store.GetEscrowHold(ctx, holdID)
}

func (uc *EscrowUsecase) ListHolds(ctx context.Context, contractID string) ([]*domain.EscrowHold, error) {
	if contractID == "" {
		return nil, fmt.Errorf("%w: contract id is required", domain.ErrInvalidRequest)
	}
	return uc.store.ListEscrowHolds(ctx, contractID)
}
