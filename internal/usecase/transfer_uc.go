package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	StepCreditReceiver = "CREDIT_RECEIVER"
	StepCreditPlatform = "CREDIT_PLATFORM"
	StepCreditTax      = "CREDIT_TAX"
)

type TransferUsecase struct {
	*Ledger
	engine *SettlementEngine
	fees   FeeSchedule
	taxes  TaxTable
}

func NewTransferUsecase(ledger *Ledger, engine *SettlementEngine, fees FeeSchedule, taxes TaxTable) *TransferUsecase {
	return &TransferUsecase{Ledger: ledger, engine: engine, fees: fees, taxes: taxes}
}

type TransferRequest struct {
	FromUserID   string
	ToUserID     string
	Amount       decimal.Decimal
	Description  string
	ReferenceID  string
	Jurisdiction string
}

type TransferResult struct {
	ReferenceID string          `json:"reference_id"`
	InvoiceID   string          `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	Replayed    bool            `json:"replayed"`
}

// Transfer moves amount from one user to another. The receiver gets amount
// less fee and tax; fee and tax go to the platform wallet.
func (uc *TransferUsecase) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.FromUserID == "" || req.ToUserID == "" {
		return nil, fmt.Errorf("%w: sender and receiver are required", domain.ErrInvalidRequest)
	}
	if req.FromUserID == req.ToUserID {
		return nil, domain.ErrSelfTransfer
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, req.Amount.String())
	}
	if req.ReferenceID == "" {
		req.ReferenceID = id.NewReference()
	}
	if err := checkReference(req.ReferenceID); err != nil {
		return nil, err
	}

	plan, quote, err := uc.plan(ctx, req)
	if err != nil {
		return nil, err
	}

	s, replayed, err := uc.engine.Settle(ctx, domain.SagaTransfer, req.ReferenceID, *plan)
	if err != nil {
		uc.logger.Warn("transfer failed",
			zap.String("reference_id", req.ReferenceID),
			zap.String("from", req.FromUserID),
			zap.String("to", req.ToUserID),
			zap.Error(err))
		return nil, err
	}

	res := &TransferResult{
		ReferenceID: req.ReferenceID,
		InvoiceID:   *s.InvoiceID,
		Amount:      s.Plan.Debit.Amount,
		FeeAmount:   s.Plan.Invoice.FeeAmount,
		TaxAmount:   s.Plan.Invoice.TaxAmount,
		NetAmount:   s.Plan.Invoice.Amount,
		Replayed:    replayed,
	}
	if replayed {
		return res, nil
	}

	uc.audit.Emit(ctx, audit.Entry{
		EventType:   domain.EventTransferCompleted,
		ActorID:     req.FromUserID,
		Amount:      amountPtr(req.Amount),
		ReferenceID: req.ReferenceID,
		Metadata: map[string]interface{}{
			"toUserId":   req.ToUserID,
			"invoiceId":  res.InvoiceID,
			"fee":        quote.fee.String(),
			"feePercent": quote.feePct.String(),
			"tax":        quote.tax.String(),
			"taxRate":    quote.taxRate.String(),
		},
	})
	if uc.events != nil {
		if err := uc.events.PublishTransferCompleted(ctx, req.FromUserID, req.ToUserID, req.ReferenceID, res.InvoiceID, req.Amount, quote.fee); err != nil {
			uc.logger.Warn("failed to publish transfer event", zap.String("reference_id", req.ReferenceID), zap.Error(err))
		}
	}
	return res, nil
}

type transferQuote struct {
	fee, feePct, tax, taxRate, net decimal.Decimal
}

func (uc *TransferUsecase) plan(ctx context.Context, req TransferRequest) (*domain.SettlementPlan, *transferQuote, error) {
	from, err := uc.Wallet(ctx, req.FromUserID)
	if err != nil {
		return nil, nil, err
	}
	to, err := uc.Wallet(ctx, req.ToUserID)
	if err != nil {
		return nil, nil, err
	}
	platform, err := uc.platformWallet(ctx)
	if err != nil {
		return nil, nil, err
	}

	feePct, err := uc.fees.PlatformPercent(ctx)
	if err != nil {
		return nil, nil, err
	}
	taxRate, err := uc.taxes.Rate(ctx, req.Jurisdiction)
	if err != nil {
		return nil, nil, err
	}
	q := &transferQuote{feePct: feePct, taxRate: taxRate}
	q.fee = percentOf(req.Amount, feePct)
	q.tax = percentOf(req.Amount, taxRate)
	q.net = req.Amount.Sub(q.fee).Sub(q.tax)
	if !q.net.IsPositive() {
		return nil, nil, fmt.Errorf("%w: fee and tax exceed the transfer amount", domain.ErrInvalidAmount)
	}

	ref := req.ReferenceID
	desc := req.Description
	if desc == "" {
		desc = "Transfer"
	}

	var hold *time.Time
	if uc.cfg.ClearingPeriod > 0 {
		at := uc.now().Add(uc.cfg.ClearingPeriod)
		hold = &at
	}

	plan := &domain.SettlementPlan{
		Debit: domain.SagaLeg{
			Step:        domain.StepDebitPayer,
			WalletID:    from.ID,
			OwnerID:     from.OwnerID,
			Amount:      req.Amount,
			Type:        domain.TxPayment,
			ReferenceID: ref + ":debit",
			Description: desc,
			FeeAmount:   q.fee,
			TaxAmount:   q.tax,
			Metadata: domain.PaymentMetadata{
				Kind:           domain.PaymentTransfer,
				CounterpartyID: req.ToUserID,
			},
		},
		Credits: []domain.SagaLeg{{
			Step:        StepCreditReceiver,
			WalletID:    to.ID,
			OwnerID:     to.OwnerID,
			Amount:      q.net,
			Type:        domain.TxTransfer,
			ReferenceID: ref + ":credit",
			Description: desc,
			FeeAmount:   q.fee,
			TaxAmount:   q.tax,
			HoldUntil:   hold,
			Metadata: domain.TransferMetadata{
				FromUserID:  req.FromUserID,
				ToUserID:    req.ToUserID,
				GrossAmount: req.Amount,
			},
		}},
		Invoice: domain.InvoiceDraft{
			SenderID:   req.FromUserID,
			ReceiverID: req.ToUserID,
			Amount:     q.net,
			FeeAmount:  q.fee,
			TaxAmount:  q.tax,
			Currency:   from.Currency,
			Items: []domain.InvoiceItem{{
				Description: desc,
				Quantity:    1,
				UnitPrice:   req.Amount,
				GrossAmount: req.Amount,
				FeeAmount:   q.fee,
				TaxAmount:   q.tax,
				NetAmount:   q.net,
			}},
		},
	}

	if q.fee.IsPositive() {
		plan.Credits = append(plan.Credits, domain.SagaLeg{
			Step:        StepCreditPlatform,
			WalletID:    platform.ID,
			OwnerID:     platform.OwnerID,
			Amount:      q.fee,
			Type:        domain.TxFee,
			ReferenceID: ref + ":fee",
			Description: "Platform fee",
			Metadata: domain.FeeMetadata{
				SourceReference: ref,
				Percent:         feePct,
				PayerID:         req.FromUserID,
			},
		})
	}
	if q.tax.IsPositive() {
		plan.Credits = append(plan.Credits, domain.SagaLeg{
			Step:        StepCreditTax,
			WalletID:    platform.ID,
			OwnerID:     platform.OwnerID,
			Amount:      q.tax,
			Type:        domain.TxTax,
			ReferenceID: ref + ":tax",
			Description: "Transfer tax",
			Metadata: domain.TaxMetadata{
				SourceReference: ref,
				Jurisdiction:    normalizeJurisdiction(req.Jurisdiction),
				Rate:            taxRate,
			},
		})
	}
	return plan, q, nil
}

// Settlement returns the step log of a settlement reference.
func (uc *TransferUsecase) Settlement(ctx context.Context, referenceID string) (*domain.Saga, error) {
	return uc.store.GetSagaByReference(ctx, referenceID)
}
