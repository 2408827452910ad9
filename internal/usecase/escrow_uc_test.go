package usecase

import (
	"testing"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/config"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) hold(t *testing.T, amount string) *domain.EscrowHold {
	t.Helper()
	res, err := f.escrow.Fund(f.ctx, FundEscrowRequest{
		PayerID:     "client",
		ContractID:  "contract-1",
		MilestoneID: "milestone-1",
		Amount:      dec(amount),
		CostCenter:  "design",
	})
	require.NoError(t, err)
	return res.Hold
}

func TestEscrow_FundParksMoneyInEscrow(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "500")

	h := f.hold(t, "200")
	assert.Equal(t, domain.EscrowHeld, h.Status)
	f.assertBalance(t, "client", "300")
	f.assertBalance(t, escrowOwner, "200")

	legs, err := f.wallets.TransactionsByReference(f.ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	for _, leg := range legs {
		assert.Equal(t, domain.TxEscrowHold, leg.Type)
		meta, ok := leg.Metadata.(domain.EscrowHoldMetadata)
		require.True(t, ok)
		assert.Equal(t, "milestone-1", meta.MilestoneID)
		assert.Equal(t, "design", meta.CostCenter)
	}

	again, err := f.escrow.Fund(f.ctx, FundEscrowRequest{
		PayerID: "client", ContractID: "contract-1", MilestoneID: "milestone-1", Amount: dec("200"),
	})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, h.ID, again.Hold.ID)
	f.assertBalance(t, "client", "300")

	_, err = f.escrow.Fund(f.ctx, FundEscrowRequest{
		PayerID: "client", ContractID: "contract-1", MilestoneID: "milestone-1", Amount: dec("250"),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	f.assertConserved(t, "500", "client", escrowOwner)
}

func TestEscrow_FundWithoutMoneyLeavesNoHold(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "50")

	_, err := f.escrow.Fund(f.ctx, FundEscrowRequest{
		PayerID: "client", ContractID: "contract-1", MilestoneID: "milestone-1", Amount: dec("100"),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = f.store.GetEscrowHoldByMilestone(f.ctx, "contract-1", "milestone-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.assertBalance(t, "client", "50")
	f.assertBalance(t, escrowOwner, "0")
}

func TestEscrow_FundValidation(t *testing.T) {
	f := newFixture(t)
	cases := []FundEscrowRequest{
		{ContractID: "c", MilestoneID: "m", Amount: dec("10")},
		{PayerID: "client", MilestoneID: "m", Amount: dec("10")},
		{PayerID: "client", ContractID: "c", Amount: dec("10")},
		{PayerID: "client", ContractID: "c", MilestoneID: "m", Amount: dec("0")},
		{PayerID: "client", ContractID: "c", MilestoneID: "m", Amount: dec("1.001")},
	}
	for _, req := range cases {
		_, err := f.escrow.Fund(f.ctx, req)
		assert.Error(t, err)
	}
}

func TestEscrow_ReleasePaysPayeeAndAgency(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "500")
	h := f.hold(t, "200")

	res, err := f.escrow.Release(f.ctx, h.ID, domain.EscrowRelease{
		PayeeID: "freelancer", AgencyID: "agency", AgencyPercent: dec("20"),
	}, "client")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, domain.EscrowReleased, res.Hold.Status)
	require.NotNil(t, res.Settlement)
	assert.Equal(t, domain.SagaCompleted, res.Settlement.State)
	assert.Equal(t, domain.SagaEscrow, res.Settlement.Kind)

	f.assertBalance(t, escrowOwner, "0")
	f.assertBalance(t, "freelancer", "160")
	f.assertBalance(t, "agency", "40")
	f.assertConserved(t, "500", "client", "freelancer", "agency", escrowOwner)

	inv, err := f.invoices.GetInvoice(f.ctx, *res.Settlement.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, "client", inv.SenderID)
	assert.Equal(t, "freelancer", inv.ReceiverID)
	assert.True(t, inv.Amount.Equal(dec("200")))
	assert.Equal(t, domain.InvoicePaid, inv.Status)

	again, err := f.escrow.Release(f.ctx, h.ID, domain.EscrowRelease{PayeeID: "freelancer"}, "client")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	f.assertBalance(t, "freelancer", "160")

	_, err = f.escrow.Refund(f.ctx, h.ID, "client")
	assert.ErrorIs(t, err, domain.ErrEscrowStateConflict)
}

func TestEscrow_ReleaseHoldsPayeeShareThroughClearing(t *testing.T) {
	f := newFixture(t, func(c *config.LedgerConfig) { c.ClearingPeriod = 48 * time.Hour })
	f.fund(t, "client", "100")
	h := f.hold(t, "100")

	res, err := f.escrow.Release(f.ctx, h.ID, domain.EscrowRelease{PayeeID: "freelancer"}, "client")
	require.NoError(t, err)

	w := f.wallet(t, "freelancer")
	assert.True(t, w.Balance.IsZero())
	assert.True(t, w.PendingBalance.Equal(dec("100")))

	inv, err := f.invoices.GetInvoice(f.ctx, *res.Settlement.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceIssued, inv.Status)
}

func TestEscrow_ApprovalGate(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "2000")
	h := f.hold(t, "1500")
	release := domain.EscrowRelease{PayeeID: "freelancer"}

	_, err := f.escrow.Release(f.ctx, h.ID, release, "client")
	assert.ErrorIs(t, err, domain.ErrApprovalRequired)

	_, err = f.escrow.Approve(f.ctx, h.ID, "manager-2")
	assert.ErrorIs(t, err, domain.ErrEscrowStateConflict)

	pending, err := f.escrow.RequestRelease(f.ctx, h.ID, release, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowPendingApproval, pending.Status)
	assert.Equal(t, "manager-1", pending.RequestedBy)
	f.assertBalance(t, escrowOwner, "1500")

	_, err = f.escrow.RequestRelease(f.ctx, h.ID, release, "manager-3")
	assert.ErrorIs(t, err, domain.ErrEscrowStateConflict)

	_, err = f.escrow.Approve(f.ctx, h.ID, "manager-1")
	assert.ErrorIs(t, err, domain.ErrSelfApproval)
	_, err = f.escrow.Approve(f.ctx, h.ID, "client")
	assert.ErrorIs(t, err, domain.ErrSelfApproval)

	res, err := f.escrow.Approve(f.ctx, h.ID, "manager-2")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowReleased, res.Hold.Status)
	assert.Equal(t, "manager-2", res.Hold.ApprovedBy)
	f.assertBalance(t, "freelancer", "1500")
	f.assertBalance(t, escrowOwner, "0")

	again, err := f.escrow.Approve(f.ctx, h.ID, "manager-2")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	f.assertBalance(t, "freelancer", "1500")
}

func TestEscrow_ApprovalGateDisabledAtZero(t *testing.T) {
	f := newFixture(t, func(c *config.LedgerConfig) { c.EscrowApprovalThreshold = decimal.Zero })
	f.fund(t, "client", "5000")
	h := f.hold(t, "5000")

	_, err := f.escrow.Release(f.ctx, h.ID, domain.EscrowRelease{PayeeID: "freelancer"}, "client")
	require.NoError(t, err)
	f.assertBalance(t, "freelancer", "5000")
}

func TestEscrow_SplitReleaseSharesAddUpToHold(t *testing.T) {
	cases := []struct {
		amount, percent, payee, payer string
	}{
		{"100.01", "33", "33.00", "67.01"},
		{"0.03", "50", "0.02", "0.01"},
		{"250", "0", "0", "250"},
		{"250", "100", "250", "0"},
		{"999.99", "66.67", "666.69", "333.30"},
	}
	for _, tc := range cases {
		t.Run(tc.amount+"@"+tc.percent, func(t *testing.T) {
			f := newFixture(t)
			f.fund(t, "client", tc.amount)
			h := f.hold(t, tc.amount)

			res, err := f.escrow.SplitRelease(f.ctx, h.ID, "freelancer", dec(tc.percent), "arbiter")
			require.NoError(t, err)
			assert.Equal(t, domain.EscrowReleased, res.Hold.Status)

			payee, payer := splitShares(dec(tc.amount), dec(tc.percent))
			assert.True(t, payee.Equal(dec(tc.payee)), "payee share %s", payee)
			assert.True(t, payer.Equal(dec(tc.payer)), "payer share %s", payer)
			assert.True(t, payee.Add(payer).Equal(h.Amount))

			f.assertBalance(t, "freelancer", tc.payee)
			f.assertBalance(t, "client", tc.payer)
			f.assertBalance(t, escrowOwner, "0")
			f.assertConserved(t, tc.amount, "client", "freelancer", escrowOwner)
		})
	}
}

func TestEscrow_SplitReleaseIsNotGated(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "3000")
	h := f.hold(t, "3000")

	_, err := f.escrow.SplitRelease(f.ctx, h.ID, "freelancer", dec("40"), "arbiter")
	require.NoError(t, err)
	f.assertBalance(t, "freelancer", "1200")
	f.assertBalance(t, "client", "1800")
}

func TestEscrow_SplitReleaseRejectsBadPercent(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "100")
	h := f.hold(t, "100")

	for _, pct := range []string{"-1", "100.01"} {
		_, err := f.escrow.SplitRelease(f.ctx, h.ID, "freelancer", dec(pct), "arbiter")
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	}
	f.assertBalance(t, escrowOwner, "100")
}

func TestEscrow_RefundReturnsHold(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "1200")
	h := f.hold(t, "1200")

	_, err := f.escrow.RequestRelease(f.ctx, h.ID, domain.EscrowRelease{PayeeID: "freelancer"}, "manager-1")
	require.NoError(t, err)

	res, err := f.escrow.Refund(f.ctx, h.ID, "client")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowRefunded, res.Hold.Status)
	f.assertBalance(t, "client", "1200")
	f.assertBalance(t, escrowOwner, "0")

	again, err := f.escrow.Refund(f.ctx, h.ID, "client")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	f.assertBalance(t, "client", "1200")

	_, err = f.escrow.Approve(f.ctx, h.ID, "manager-2")
	assert.ErrorIs(t, err, domain.ErrEscrowStateConflict)
	_, err = f.escrow.SplitRelease(f.ctx, h.ID, "freelancer", dec("50"), "arbiter")
	assert.ErrorIs(t, err, domain.ErrEscrowStateConflict)
	f.assertConserved(t, "1200", "client", "freelancer", escrowOwner)
}

func TestEscrow_ListHoldsByContract(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "client", "300")
	for _, m := range []string{"m-1", "m-2"} {
		_, err := f.escrow.Fund(f.ctx, FundEscrowRequest{
			PayerID: "client", ContractID: "contract-1", MilestoneID: m, Amount: dec("100"),
		})
		require.NoError(t, err)
	}
	_, err := f.escrow.Fund(f.ctx, FundEscrowRequest{
		PayerID: "client", ContractID: "contract-2", MilestoneID: "m-1", Amount: dec("100"),
	})
	require.NoError(t, err)

	holds, err := f.escrow.ListHolds(f.ctx, "contract-1")
	require.NoError(t, err)
	assert.Len(t, holds, 2)

	_, err = f.escrow.ListHolds(f.ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
