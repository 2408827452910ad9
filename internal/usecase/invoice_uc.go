package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/invoicepdf"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InvoiceUsecase struct {
	repo    repository.Queries
	numbers *id.Snowflake
	logger  *zap.Logger
}

func NewInvoiceUsecase(repo repository.Queries, numbers *id.Snowflake, logger *zap.Logger) *InvoiceUsecase {
	return &InvoiceUsecase{repo: repo, numbers: numbers, logger: logger}
}

// issue stores the invoice of a settlement as ISSUED and marks it PAID at
// once when none of its credits is held. Issuing the same reference twice
// returns the invoice stored first.
func (uc *InvoiceUsecase) issue(ctx context.Context, invoiceID, referenceID string, d domain.InvoiceDraft, now time.Time) (*domain.Invoice, error) {
	inv := &domain.Invoice{
		ID:            invoiceID,
		InvoiceNumber: uc.numbers.InvoiceNumber(now),
		SenderID:      d.SenderID,
		ReceiverID:    d.ReceiverID,
		Amount:        d.Amount,
		FeeAmount:     d.FeeAmount,
		TaxAmount:     d.TaxAmount,
		TotalAmount:   d.Amount.Add(d.FeeAmount).Add(d.TaxAmount),
		Status:        domain.InvoiceIssued,
		Items:         d.Items,
		Currency:      d.Currency,
		ReferenceID:   referenceID,
	}
	err := uc.repo.InsertInvoice(ctx, inv)
	if errors.Is(err, domain.ErrDuplicateReference) {
		return uc.repo.GetInvoiceByReference(ctx, referenceID)
	}
	if err != nil {
		return nil, err
	}

	paid, err := uc.repo.MarkInvoicePaid(ctx, inv.ID, now)
	if err != nil {
		return nil, err
	}
	if paid {
		inv.Status = domain.InvoicePaid
		inv.PaidAt = &now
	}
	return inv, nil
}

// voidInvoice marks an invoice VOID after the money behind it went back.
func voidInvoice(ctx context.Context, q repository.Queries, invoiceID *string) error {
	if invoiceID == nil {
		return nil
	}
	err := q.VoidInvoice(ctx, *invoiceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (uc *InvoiceUsecase) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	return uc.repo.GetInvoice(ctx, invoiceID)
}

// ListInvoices returns the invoices userID sent or received, newest first.
func (uc *InvoiceUsecase) ListInvoices(ctx context.Context, userID string) ([]*domain.Invoice, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	return uc.repo.ListInvoicesByUser(ctx, userID)
}

// TaxYearSummary totals the PAID invoices userID received with a payment
// date inside year. Issued and void invoices are left out.
func (uc *InvoiceUsecase) TaxYearSummary(ctx context.Context, userID string, year int, now time.Time) (*domain.TaxYearSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	if year < 1970 || year > now.UTC().Year() {
		return nil, fmt.Errorf("%w: year %d", domain.ErrInvalidRequest, year)
	}
	invoices, err := uc.repo.ListInvoicesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &domain.TaxYearSummary{UserID: userID, Year: year, GeneratedAt: now}
	for _, inv := range invoices {
		if inv.ReceiverID != userID || inv.Status != domain.InvoicePaid || inv.PaidAt == nil {
			continue
		}
		if inv.PaidAt.UTC().Year() != year {
			continue
		}
		out.GrossVolume = out.GrossVolume.Add(inv.TotalAmount)
		out.FeesPaid = out.FeesPaid.Add(inv.FeeAmount)
		out.TaxWithheld = out.TaxWithheld.Add(inv.TaxAmount)
		out.NetVolume = out.NetVolume.Add(inv.Amount)
		out.TransactionCount++
	}
	return out, nil
}

// InvoiceData returns the printable view of a transaction. Transactions that
// were never invoiced get a synthetic invoice number and a single line.
func (uc *InvoiceUsecase) InvoiceData(ctx context.Context, txID string) (*domain.InvoiceData, error) {
	t, err := uc.repo.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	if t.InvoiceID != nil {
		inv, err := uc.repo.GetInvoice(ctx, *t.InvoiceID)
		if err == nil {
			return invoiceData(inv, t.ID), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	w, err := uc.repo.GetWallet(ctx, t.WalletID)
	if err != nil {
		return nil, err
	}
	gross := t.Amount.Abs()
	amount := gross.Sub(t.FeeAmount).Sub(t.TaxAmount)
	data := &domain.InvoiceData{
		InvoiceNumber: domain.FallbackInvoiceNumber(t.ID),
		TransactionID: t.ID,
		Date:          t.CreatedAt,
		Items: []domain.InvoiceItem{{
			Description: describe(t),
			Quantity:    1,
			UnitPrice:   amount,
			GrossAmount: gross,
			FeeAmount:   t.FeeAmount,
			TaxAmount:   t.TaxAmount,
			NetAmount:   amount,
		}},
		Amount:      amount,
		FeeAmount:   t.FeeAmount,
		TaxAmount:   t.TaxAmount,
		NetAmount:   amount,
		TotalAmount: amount.Add(t.FeeAmount).Add(t.TaxAmount),
		Currency:    w.Currency,
		Status:      string(t.Status),
	}
	if t.IsCredit() {
		data.To = w.OwnerID
	} else {
		data.From = w.OwnerID
	}
	data.FeePercent = feePercent(data.FeeAmount, data.TotalAmount)
	return data, nil
}

// RenderPDF renders the invoice document of invoiceID.
func (uc *InvoiceUsecase) RenderPDF(ctx context.Context, invoiceID string) ([]byte, *domain.Invoice, error) {
	inv, err := uc.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	txID := ""
	if t, err := uc.repo.GetTransactionByReference(ctx, inv.ReferenceID+":debit"); err == nil {
		txID = t.ID
	}
	doc, err := invoicepdf.Render(invoiceData(inv, txID))
	if err != nil {
		uc.logger.Error("invoice render failed", zap.String("invoice_id", invoiceID), zap.Error(err))
		return nil, nil, err
	}
	return doc, inv, nil
}

func invoiceData(inv *domain.Invoice, txID string) *domain.InvoiceData {
	date := inv.CreatedAt
	if inv.PaidAt != nil {
		date = *inv.PaidAt
	}
	return &domain.InvoiceData{
		InvoiceNumber: inv.InvoiceNumber,
		TransactionID: txID,
		Date:          date,
		From:          inv.SenderID,
		To:            inv.ReceiverID,
		Items:         inv.Items,
		Amount:        inv.Amount,
		FeeAmount:     inv.FeeAmount,
		FeePercent:    feePercent(inv.FeeAmount, inv.TotalAmount),
		TaxAmount:     inv.TaxAmount,
		NetAmount:     inv.Amount,
		TotalAmount:   inv.TotalAmount,
		Currency:      inv.Currency,
		Status:        string(inv.Status),
	}
}

func feePercent(fee, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return fee.Div(total).Mul(hundred).Round(2)
}

func describe(t *domain.Transaction) string {
	if t.Description != "" {
		return t.Description
	}
	return string(t.Type)
}
