package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	StepCreditEmployee    = "CREDIT_EMPLOYEE"
	StepCreditWithholding = "CREDIT_WITHHOLDING"
)

type PayrollUsecase struct {
	*Ledger
	engine *SettlementEngine
	taxes  TaxTable
}

func NewPayrollUsecase(ledger *Ledger, engine *SettlementEngine, taxes TaxTable) *PayrollUsecase {
	return &PayrollUsecase{Ledger: ledger, engine: engine, taxes: taxes}
}

type ContractRequest struct {
	ClientID         string
	EmployeeID       string
	Jurisdiction     string
	RecurringAmount  decimal.Decimal
	EORFeePercentage *decimal.Decimal
	PayCycle         domain.PayCycle
	FirstPayrollAt   *time.Time
}

type ProcessPayrollRequest struct {
	ContractID  string
	EmployeeID  string
	GrossAmount decimal.Decimal // zero means the contract's recurring amount
	Period      string          // empty means the period containing now
}

// ===== CONTRACTS =====

func (uc *PayrollUsecase) CreateContract(ctx context.Context, req ContractRequest) (*domain.EORContract, error) {
	if req.ClientID == "" || req.EmployeeID == "" {
		return nil, fmt.Errorf("%w: client and employee are required", domain.ErrInvalidRequest)
	}
	if !req.RecurringAmount.IsPositive() {
		return nil, fmt.Errorf("%w: recurring amount must be positive", domain.ErrInvalidAmount)
	}
	pct := uc.cfg.DefaultEORFeePercent
	if req.EORFeePercentage != nil {
		pct = *req.EORFeePercentage
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return nil, fmt.Errorf("%w: eor fee percentage must be within 0..100", domain.ErrInvalidRequest)
	}
	cycle := req.PayCycle
	switch cycle {
	case "":
		cycle = domain.PayCycleMonthly
	case domain.PayCycleMonthly, domain.PayCycleWeekly:
	default:
		return nil, fmt.Errorf("%w: unknown pay cycle %q", domain.ErrInvalidRequest, cycle)
	}
	next := cycle.Next(uc.now())
	if req.FirstPayrollAt != nil {
		next = *req.FirstPayrollAt
	}

	c := &domain.EORContract{
		ID:               id.New(),
		ClientID:         req.ClientID,
		EmployeeID:       req.EmployeeID,
		Jurisdiction:     normalizeJurisdiction(req.Jurisdiction),
		RecurringAmount:  req.RecurringAmount.Round(2),
		EORFeePercentage: pct,
		PayCycle:         cycle,
		Status:           domain.ContractActive,
		NextPayrollAt:    next,
	}
	if err := uc.store.InsertContract(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (uc *PayrollUsecase) AddBenefit(ctx context.Context, employeeID, planName string, monthlyCost decimal.Decimal) (*domain.BenefitEnrollment, error) {
	if employeeID == "" || strings.TrimSpace(planName) == "" {
		return nil, fmt.Errorf("%w: employee and plan name are required", domain.ErrInvalidRequest)
	}
	if monthlyCost.IsNegative() {
		return nil, fmt.Errorf("%w: monthly cost must not be negative", domain.ErrInvalidAmount)
	}
	b := &domain.BenefitEnrollment{
		ID:          id.New(),
		EmployeeID:  employeeID,
		PlanName:    strings.TrimSpace(planName),
		MonthlyCost: monthlyCost.Round(2),
		Active:      true,
	}
	if err := uc.store.InsertBenefit(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (uc *PayrollUsecase) History(ctx context.Context, contractID string) ([]*domain.PayrollRecord, error) {
	if _, err := uc.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	return uc.store.ListPayrollRecords(ctx, contractID)
}

// ===== PAYROLL =====

// Preview computes the payroll breakdown without moving money.
func (uc *PayrollUsecase) Preview(ctx context.Context, contractID, employeeID string, gross decimal.Decimal) (*domain.PayrollBreakdown, error) {
	c, err := uc.contract(ctx, contractID, employeeID)
	if err != nil {
		return nil, err
	}
	return uc.breakdown(ctx, c, gross)
}

func (uc *PayrollUsecase) contract(ctx context.Context, contractID, employeeID string) (*domain.EORContract, error) {
	if contractID == "" {
		return nil, fmt.Errorf("%w: contract id is required", domain.ErrInvalidRequest)
	}
	c, err := uc.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if employeeID != "" && employeeID != c.EmployeeID {
		return nil, fmt.Errorf("%w: employee %s is not on contract %s", domain.ErrInvalidRequest, employeeID, contractID)
	}
	return c, nil
}

// breakdown derives every payroll amount from gross. Tax rate and benefits
// are looked up at call time, so processing never trusts an earlier preview.
func (uc *PayrollUsecase) breakdown(ctx context.Context, c *domain.EORContract, gross decimal.Decimal) (*domain.PayrollBreakdown, error) {
	if gross.IsZero() {
		gross = c.RecurringAmount
	}
	if !gross.IsPositive() || !gross.Equal(gross.Round(2)) {
		return nil, fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, gross.String())
	}

	var (
		rate     decimal.Decimal
		benefits []*domain.BenefitEnrollment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rate, err = uc.taxes.Rate(gctx, c.Jurisdiction)
		return err
	})
	g.Go(func() error {
		var err error
		benefits, err = uc.store.ListActiveBenefits(gctx, c.EmployeeID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	monthly := decimal.Zero
	for _, b := range benefits {
		monthly = monthly.Add(b.MonthlyCost)
	}
	benefitsCost := monthly.Mul(c.PayCycle.BenefitsFactor()).Round(2)
	tax := percentOf(gross, rate)
	eorFee := percentOf(gross, c.EORFeePercentage)

	return &domain.PayrollBreakdown{
		ContractID:        c.ID,
		EmployeeID:        c.EmployeeID,
		Gross:             gross,
		EORFee:            eorFee,
		TaxAmount:         tax,
		TaxRate:           rate,
		TotalBenefitsCost: benefitsCost,
		NetAmount:         gross.Sub(tax).Sub(benefitsCost),
		TotalEmployerCost: gross.Add(eorFee),
	}, nil
}

// Process pays one payroll period. The employer is debited gross plus the
// EOR fee; the employee gets net, withholding gets tax and benefits, and the
// platform gets the EOR fee. Each (contract, period) is paid at most once.
func (uc *PayrollUsecase) Process(ctx context.Context, req ProcessPayrollRequest) (*domain.PayrollRecord, error) {
	c, err := uc.contract(ctx, req.ContractID, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ContractActive {
		return nil, domain.ErrContractInactive
	}
	period := req.Period
	if period == "" {
		period = c.PayCycle.Period(uc.now())
	}
	ref := "payroll:" + c.ID + ":" + period

	if _, err := uc.store.GetPayrollRecord(ctx, c.ID, period); err == nil {
		return nil, domain.ErrPayrollAlreadyPaid
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	b, err := uc.breakdown(ctx, c, req.GrossAmount)
	if err != nil {
		return nil, err
	}
	if b.NetAmount.IsNegative() {
		return nil, fmt.Errorf("%w: deductions exceed gross pay", domain.ErrInvalidAmount)
	}

	plan, err := uc.plan(ctx, c, b, ref, period)
	if err != nil {
		return nil, err
	}

	s, replayed, err := uc.engine.Settle(ctx, domain.SagaPayroll, ref, *plan)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			err = fmt.Errorf("%w: %w", domain.ErrInsufficientEmployerFunds, err)
		}
		uc.logger.Warn("payroll failed",
			zap.String("contract_id", c.ID),
			zap.String("period", period),
			zap.Error(err))
		return nil, err
	}

	rec := &domain.PayrollRecord{
		ID:          id.New(),
		ContractID:  c.ID,
		Period:      period,
		Breakdown:   *b,
		Status:      domain.PayrollPaid,
		ReferenceID: ref,
		InvoiceID:   s.InvoiceID,
	}
	if err := uc.store.InsertPayrollRecord(ctx, rec); err != nil {
		if !errors.Is(err, domain.ErrDuplicateReference) {
			return nil, err
		}
		if rec, err = uc.store.GetPayrollRecord(ctx, c.ID, period); err != nil {
			return nil, err
		}
	}

	if !replayed {
		uc.audit.Emit(ctx, audit.Entry{
			EventType:   domain.EventPayrollProcessed,
			ActorID:     c.ClientID,
			Amount:      amountPtr(b.TotalEmployerCost),
			ReferenceID: ref,
			Metadata: map[string]interface{}{
				"contractId": c.ID,
				"employeeId": c.EmployeeID,
				"period":     period,
				"gross":      b.Gross.String(),
				"net":        b.NetAmount.String(),
				"tax":        b.TaxAmount.String(),
				"benefits":   b.TotalBenefitsCost.String(),
				"eorFee":     b.EORFee.String(),
			},
		})
		uc.logger.Info("payroll processed",
			zap.String("contract_id", c.ID),
			zap.String("period", period),
			zap.String("net", b.NetAmount.String()))
	}
	return rec, nil
}

// ProcessDue pays the period that starts at the contract's next payroll date
// and moves the date one cycle forward. A period that was already paid only
// advances the date.
func (uc *PayrollUsecase) ProcessDue(ctx context.Context, c *domain.EORContract) (*domain.PayrollRecord, error) {
	rec, err := uc.Process(ctx, ProcessPayrollRequest{
		ContractID: c.ID,
		Period:     c.PayCycle.Period(c.NextPayrollAt),
	})
	if err != nil && !errors.Is(err, domain.ErrPayrollAlreadyPaid) {
		return nil, err
	}
	if aerr := uc.store.AdvanceContract(ctx, c.ID, c.PayCycle.Next(c.NextPayrollAt)); aerr != nil {
		return rec, fmt.Errorf("advance contract %s: %w", c.ID, aerr)
	}
	return rec, err
}

func (uc *PayrollUsecase) plan(ctx context.Context, c *domain.EORContract, b *domain.PayrollBreakdown, ref, period string) (*domain.SettlementPlan, error) {
	employer, err := uc.Wallet(ctx, c.ClientID)
	if err != nil {
		return nil, err
	}
	employee, err := uc.Wallet(ctx, c.EmployeeID)
	if err != nil {
		return nil, err
	}
	withholding, err := uc.Wallet(ctx, uc.cfg.WithholdingOwnerID)
	if err != nil {
		return nil, err
	}
	platform, err := uc.platformWallet(ctx)
	if err != nil {
		return nil, err
	}

	withheld := b.TaxAmount.Add(b.TotalBenefitsCost)
	desc := fmt.Sprintf("Payroll %s", period)

	plan := &domain.SettlementPlan{
		Debit: domain.SagaLeg{
			Step:        domain.StepDebitPayer,
			WalletID:    employer.ID,
			OwnerID:     employer.OwnerID,
			Amount:      b.TotalEmployerCost,
			Type:        domain.TxPayment,
			ReferenceID: ref + ":debit",
			Description: desc,
			FeeAmount:   b.EORFee,
			TaxAmount:   b.TaxAmount,
			Metadata: domain.PaymentMetadata{
				Kind:           domain.PaymentPayroll,
				CounterpartyID: c.EmployeeID,
				ContractID:     c.ID,
				Period:         period,
			},
		},
		Invoice: domain.InvoiceDraft{
			SenderID:   c.ClientID,
			ReceiverID: c.EmployeeID,
			Amount:     b.NetAmount,
			FeeAmount:  b.EORFee,
			TaxAmount:  withheld,
			Currency:   employer.Currency,
			Items: []domain.InvoiceItem{
				{
					Description: "Salary " + period,
					Quantity:    1,
					UnitPrice:   b.Gross,
					GrossAmount: b.Gross,
					TaxAmount:   withheld,
					NetAmount:   b.NetAmount,
				},
				{
					Description: "Employer of Record fee",
					Quantity:    1,
					UnitPrice:   b.EORFee,
					GrossAmount: b.EORFee,
					FeeAmount:   b.EORFee,
				},
			},
		},
	}

	if b.NetAmount.IsPositive() {
		plan.Credits = append(plan.Credits, domain.SagaLeg{
			Step:        StepCreditEmployee,
			WalletID:    employee.ID,
			OwnerID:     employee.OwnerID,
			Amount:      b.NetAmount,
			Type:        domain.TxTransfer,
			ReferenceID: ref + ":credit",
			Description: desc,
			TaxAmount:   b.TaxAmount,
			Metadata: domain.TransferMetadata{
				FromUserID:  c.ClientID,
				ToUserID:    c.EmployeeID,
				GrossAmount: b.Gross,
				ContractID:  c.ID,
				Period:      period,
			},
		})
	}
	if withheld.IsPositive() {
		plan.Credits = append(plan.Credits, domain.SagaLeg{
			Step:        StepCreditWithholding,
			WalletID:    withholding.ID,
			OwnerID:     withholding.OwnerID,
			Amount:      withheld,
			Type:        domain.TxTax,
			ReferenceID: ref + ":withholding",
			Description: "Payroll withholding " + period,
			Metadata: domain.TaxMetadata{
				SourceReference: ref,
				Jurisdiction:    c.Jurisdiction,
				Rate:            b.TaxRate,
				BenefitsCost:    b.TotalBenefitsCost,
			},
		})
	}
	if b.EORFee.IsPositive() {
		plan.Credits = append(plan.Credits, domain.SagaLeg{
			Step:        StepCreditPlatform,
			WalletID:    platform.ID,
			OwnerID:     platform.OwnerID,
			Amount:      b.EORFee,
			Type:        domain.TxFee,
			ReferenceID: ref + ":fee",
			Description: "EOR fee " + period,
			Metadata: domain.FeeMetadata{
				SourceReference: ref,
				Percent:         c.EORFeePercentage,
				PayerID:         c.ClientID,
			},
		})
	}
	return plan, nil
}
