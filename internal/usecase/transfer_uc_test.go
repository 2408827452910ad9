package usecase

import (
	"testing"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/config"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer_SplitsFeeAndTax(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "100")
	require.NoError(t, f.store.UpsertTaxSetting(f.ctx, &domain.TaxSetting{Jurisdiction: "US", Rate: dec("5")}))

	res, err := f.transfers.Transfer(f.ctx, TransferRequest{
		FromUserID:   "client",
		ToUserID:     "freelancer",
		Amount:       dec("100"),
		ReferenceID:  "job-1",
		Jurisdiction: "us",
	})
	require.NoError(t, err)

	assert.False(t, res.Replayed)
	assert.True(t, res.FeeAmount.Equal(dec("10")))
	assert.True(t, res.TaxAmount.Equal(dec("5")))
	assert.True(t, res.NetAmount.Equal(dec("85")))
	assert.NotEmpty(t, res.InvoiceID)

	f.assertBalance(t, "client", "0")
	f.assertBalance(t, "freelancer", "85")
	f.assertBalance(t, platformOwner, "15")
	f.assertConserved(t, "100", "client", "freelancer", platformOwner)

	legs, err := f.wallets.TransactionsByReference(f.ctx, "job-1")
	require.NoError(t, err)
	assert.Len(t, legs, 4)
	for _, leg := range legs {
		require.NotNil(t, leg.InvoiceID)
		assert.Equal(t, res.InvoiceID, *leg.InvoiceID)
	}

	inv, err := f.invoices.GetInvoice(f.ctx, res.InvoiceID)
	require.NoError(t, err)
	assert.True(t, inv.TotalAmount.Equal(dec("100")))
	assert.Equal(t, domain.InvoicePaid, inv.Status)
	require.NotNil(t, inv.PaidAt)

	s, err := f.transfers.Settlement(f.ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SagaCompleted, s.State)
	assert.True(t, s.Done(domain.StepIssueInvoice))
}

func TestTransfer_ReplayReturnsFirstResult(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "300")
	req := TransferRequest{FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1"}

	first, err := f.transfers.Transfer(f.ctx, req)
	require.NoError(t, err)
	second, err := f.transfers.Transfer(f.ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.InvoiceID, second.InvoiceID)
	f.assertBalance(t, "client", "200")
	f.assertBalance(t, "freelancer", "90")

	req.Amount = dec("150")
	_, err = f.transfers.Transfer(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
}

func TestTransfer_InsufficientFundsMovesNothing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "50")

	_, err := f.transfers.Transfer(f.ctx, TransferRequest{
		FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	f.assertBalance(t, "client", "50")
	f.assertBalance(t, "freelancer", "0")
	f.assertBalance(t, platformOwner, "0")

	s, err := f.transfers.Settlement(f.ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SagaRejected, s.State)

	// a rejected reference may be retried once the payer has funds
	f.fund(t, "client", "100")
	_, err = f.transfers.Transfer(f.ctx, TransferRequest{
		FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1",
	})
	require.NoError(t, err)
	f.assertBalance(t, "client", "50")
	f.assertBalance(t, "freelancer", "90")
}

func TestTransfer_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.transfers.Transfer(f.ctx, TransferRequest{FromUserID: "a", ToUserID: "a", Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrSelfTransfer)

	_, err = f.transfers.Transfer(f.ctx, TransferRequest{FromUserID: "a", ToUserID: "b", Amount: dec("0")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.transfers.Transfer(f.ctx, TransferRequest{FromUserID: "", ToUserID: "b", Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	// derived leg references are reserved
	_, err = f.transfers.Transfer(f.ctx, TransferRequest{FromUserID: "a", ToUserID: "b", Amount: dec("1"), ReferenceID: "job-1:credit"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestTransfer_CompensatesWhenCreditLegFails(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "100")

	// another wallet already owns the receiver leg's reference
	other := f.wallet(t, "bystander")
	_, err := f.ledger.apply(f.ctx, credit, domain.Entry{
		WalletID: other.ID, Amount: dec("1"), Type: domain.TxDeposit, ReferenceID: "job-1:credit",
	})
	require.NoError(t, err)

	_, err = f.transfers.Transfer(f.ctx, TransferRequest{
		FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)

	f.assertBalance(t, "client", "100")
	f.assertBalance(t, "freelancer", "0")
	f.assertBalance(t, platformOwner, "0")
	f.assertConserved(t, "101", "client", "freelancer", platformOwner, "bystander")

	s, err := f.transfers.Settlement(f.ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SagaCompensated, s.State)
	assert.True(t, s.Done(domain.StepCompensate))

	refund, err := f.store.GetTransactionByReference(f.ctx, "job-1:compensate")
	require.NoError(t, err)
	assert.Equal(t, domain.TxRefund, refund.Type)

	// a reversed settlement is not run again
	_, err = f.transfers.Transfer(f.ctx, TransferRequest{
		FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	f.assertBalance(t, "client", "100")
}

func TestTransfer_InvoicePaidWhenReceiverLegClears(t *testing.T) {
	f := newFixture(t, func(c *config.LedgerConfig) { c.ClearingPeriod = 48 * time.Hour })
	f.fund(t, "client", "100")

	res, err := f.transfers.Transfer(f.ctx, TransferRequest{
		FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1",
	})
	require.NoError(t, err)

	held := f.wallet(t, "freelancer")
	assert.True(t, held.PendingBalance.Equal(dec("90")))
	assert.True(t, held.Balance.IsZero())

	inv, err := f.invoices.GetInvoice(f.ctx, res.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceIssued, inv.Status)
	assert.Nil(t, inv.PaidAt)

	f.clock.Advance(49 * time.Hour)
	n, err := f.wallets.ClearWallet(f.ctx, held.ID, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inv, err = f.invoices.GetInvoice(f.ctx, res.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePaid, inv.Status)
	require.NotNil(t, inv.PaidAt)
	assert.True(t, inv.PaidAt.Equal(f.clock.Now()))
	f.assertBalance(t, "freelancer", "90")
}

func TestTransfer_CompensationVoidsIssuedInvoice(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "100")

	req := TransferRequest{FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1"}
	plan, _, err := f.transfers.plan(f.ctx, req)
	require.NoError(t, err)

	// the invoice was stored but the process died before the saga finished
	invoiceID := "inv-1"
	s := &domain.Saga{
		ID:          "saga-1",
		ReferenceID: "job-1",
		Kind:        domain.SagaTransfer,
		State:       domain.SagaRunning,
		Plan:        *plan,
		InvoiceID:   &invoiceID,
	}
	require.NoError(t, f.store.InsertSaga(f.ctx, s))
	entry := plan.Debit.Entry()
	entry.InvoiceID = &invoiceID
	p, err := f.ledger.apply(f.ctx, debit, entry)
	require.NoError(t, err)
	s.Record(domain.StepDebitPayer, p.tx.ID, nil, f.clock.Now())
	_, err = f.invoices.issue(f.ctx, invoiceID, "job-1", plan.Invoice, f.clock.Now())
	require.NoError(t, err)

	// the receiver leg's reference was taken in the meantime
	bystander := f.wallet(t, "bystander")
	_, err = f.ledger.apply(f.ctx, credit, domain.Entry{
		WalletID: bystander.ID, Amount: dec("1"), Type: domain.TxDeposit, ReferenceID: "job-1:credit",
	})
	require.NoError(t, err)

	_, err = f.engine.Resume(f.ctx, s)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.Equal(t, domain.SagaCompensated, s.State)

	inv, err := f.invoices.GetInvoice(f.ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceVoid, inv.Status)
	f.assertBalance(t, "client", "100")
}

func TestSettlement_ResumesStaleSaga(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "100")

	req := TransferRequest{FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1"}
	plan, _, err := f.transfers.plan(f.ctx, req)
	require.NoError(t, err)

	// a saga whose debit landed before the process died
	invoiceID := "inv-1"
	s := &domain.Saga{
		ID:          "saga-1",
		ReferenceID: "job-1",
		Kind:        domain.SagaTransfer,
		State:       domain.SagaRunning,
		Plan:        *plan,
		InvoiceID:   &invoiceID,
	}
	require.NoError(t, f.store.InsertSaga(f.ctx, s))
	entry := plan.Debit.Entry()
	entry.InvoiceID = &invoiceID
	p, err := f.ledger.apply(f.ctx, debit, entry)
	require.NoError(t, err)
	s.Record(domain.StepDebitPayer, p.tx.ID, nil, f.clock.Now())
	require.NoError(t, f.store.UpdateSaga(f.ctx, s))

	// a retry inside the resume window is refused
	_, err = f.transfers.Transfer(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrTransferInProgress)

	f.clock.Advance(time.Minute)
	stale, err := f.engine.StaleSagas(f.ctx, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, stale, 1)

	done, err := f.engine.Resume(f.ctx, stale[0])
	require.NoError(t, err)
	assert.Equal(t, domain.SagaCompleted, done.State)

	f.assertBalance(t, "client", "0")
	f.assertBalance(t, "freelancer", "90")
	f.assertBalance(t, platformOwner, "10")

	stale, err = f.engine.StaleSagas(f.ctx, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestInvoiceData_FromSettledTransfer(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "200")

	res, err := f.transfers.Transfer(f.ctx, TransferRequest{
		FromUserID: "client", ToUserID: "freelancer", Amount: dec("200"), ReferenceID: "job-1", Description: "Logo design",
	})
	require.NoError(t, err)

	credit, err := f.store.GetTransactionByReference(f.ctx, "job-1:credit")
	require.NoError(t, err)
	data, err := f.invoices.InvoiceData(f.ctx, credit.ID)
	require.NoError(t, err)

	assert.Equal(t, "client", data.From)
	assert.Equal(t, "freelancer", data.To)
	assert.True(t, data.FeeAmount.Equal(dec("20")))
	assert.True(t, data.TotalAmount.Equal(dec("200")))

	doc, inv, err := f.invoices.RenderPDF(f.ctx, res.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, res.InvoiceID, inv.ID)
	assert.NotEmpty(t, doc)
}
