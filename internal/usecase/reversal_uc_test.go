package usecase

import (
	"testing"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/config"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settledTransfer(t *testing.T, f *fixture) *domain.Transaction {
	t.Helper()
	f.fund(t, "client", "100")
	_, err := f.transfers.Transfer(f.ctx, TransferRequest{
		FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1",
	})
	require.NoError(t, err)
	payment, err := f.store.GetTransactionByReference(f.ctx, "job-1:debit")
	require.NoError(t, err)
	return payment
}

func TestChargeback_TakesBackEveryLeg(t *testing.T) {
	f := newFixture(t)
	payment := settledTransfer(t, f)

	res, err := f.reversals.Chargeback(f.ctx, payment.ID, "fraud", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxChargeback, res.Reversal.Type)
	assert.True(t, res.Reversal.Amount.Equal(dec("100")))
	assert.Equal(t, "job-1:debit:chargeback", res.Reversal.ReferenceID)

	f.assertBalance(t, "client", "100")
	f.assertBalance(t, "freelancer", "0")
	f.assertBalance(t, platformOwner, "0")
	f.assertConserved(t, "100", "client", "freelancer", platformOwner)

	require.NotNil(t, payment.InvoiceID)
	inv, err := f.invoices.GetInvoice(f.ctx, *payment.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceVoid, inv.Status)

	_, err = f.reversals.Chargeback(f.ctx, payment.ID, "fraud", "admin-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyChargedBack)
	_, err = f.reversals.Refund(f.ctx, payment.ID, "goodwill", "admin-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyChargedBack)
	f.assertBalance(t, "client", "100")
}

func TestChargeback_FailsHeldLegs(t *testing.T) {
	f := newFixture(t, func(c *config.LedgerConfig) { c.ClearingPeriod = 48 * time.Hour })
	payment := settledTransfer(t, f)

	held := f.wallet(t, "freelancer")
	assert.True(t, held.PendingBalance.Equal(dec("90")))

	_, err := f.reversals.Chargeback(f.ctx, payment.ID, "dispute", "admin-1")
	require.NoError(t, err)

	leg, err := f.store.GetTransactionByReference(f.ctx, "job-1:credit")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, leg.Status)

	_, err = f.store.GetTransactionByReference(f.ctx, "job-1:credit:chargeback")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// the receiver leg never cleared, so the invoice goes from ISSUED to VOID
	inv, err := f.invoices.GetInvoice(f.ctx, *payment.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceVoid, inv.Status)
	assert.Nil(t, inv.PaidAt)

	f.assertBalance(t, "client", "100")
	f.assertBalance(t, platformOwner, "0")
	f.assertConserved(t, "100", "client", "freelancer", platformOwner)
}

func TestRefund_Subscription(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", "50")
	sub, err := f.subs.Create(f.ctx, "user-1", "pro", dec("30"))
	require.NoError(t, err)

	charge, err := f.store.GetTransactionByReference(f.ctx, "sub:"+sub.ID+":2026-03-02")
	require.NoError(t, err)

	res, err := f.reversals.Refund(f.ctx, charge.ID, "requested", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxRefund, res.Reversal.Type)
	f.assertBalance(t, "user-1", "50")
	f.assertBalance(t, platformOwner, "0")

	_, err = f.reversals.Refund(f.ctx, charge.ID, "requested", "user-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyRefunded)
}

func TestReversal_RejectsNonPayments(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", "50")
	deposit, err := f.store.GetTransactionByReference(f.ctx, "seed-user-1-50")
	require.NoError(t, err)

	_, err = f.reversals.Chargeback(f.ctx, deposit.ID, "", "admin-1")
	assert.ErrorIs(t, err, domain.ErrNotChargeable)
	_, err = f.reversals.Refund(f.ctx, deposit.ID, "", "admin-1")
	assert.ErrorIs(t, err, domain.ErrNotChargeable)

	_, err = f.reversals.Chargeback(f.ctx, "missing", "", "admin-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReversal_FailsWhenReceiverSpentFunds(t *testing.T) {
	f := newFixture(t)
	payment := settledTransfer(t, f)

	_, err := f.wallets.Debit(f.ctx, f.wallet(t, "freelancer").ID, dec("90"), domain.TxPayment, "spent", "")
	require.NoError(t, err)

	_, err = f.reversals.Chargeback(f.ctx, payment.ID, "dispute", "admin-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	f.assertBalance(t, "client", "0")
	f.assertBalance(t, platformOwner, "10")

	inv, err := f.invoices.GetInvoice(f.ctx, *payment.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePaid, inv.Status)
}
