package usecase

import (
	"testing"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription_CreateChargesFirstCycle(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", "50")

	sub, err := f.subs.Create(f.ctx, "user-1", "pro", dec("19.99"))
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	assert.Equal(t, f.clock.Now().AddDate(0, 1, 0), sub.NextBillingDate)

	f.assertBalance(t, "user-1", "30.01")
	f.assertBalance(t, platformOwner, "19.99")

	charge, err := f.store.GetTransactionByReference(f.ctx, "sub:"+sub.ID+":2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, domain.TxPayment, charge.Type)

	subs, err := f.subs.List(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubscription_CreateWithoutFunds(t *testing.T) {
	f := newFixture(t)

	_, err := f.subs.Create(f.ctx, "user-1", "pro", dec("19.99"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	subs, err := f.subs.List(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, subs)
	f.assertBalance(t, platformOwner, "0")
}

func TestSubscription_RenewAdvancesBillingDate(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", "100")
	sub, err := f.subs.Create(f.ctx, "user-1", "pro", dec("30"))
	require.NoError(t, err)

	// not due yet
	same, err := f.subs.Renew(f.ctx, sub, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, sub.NextBillingDate, same.NextBillingDate)
	f.assertBalance(t, "user-1", "70")

	due := sub.NextBillingDate
	renewed, err := f.subs.Renew(f.ctx, sub, due)
	require.NoError(t, err)
	assert.Equal(t, due.AddDate(0, 1, 0), renewed.NextBillingDate)
	require.NotNil(t, renewed.LastChargedAt)
	f.assertBalance(t, "user-1", "40")

	// the same cycle is never charged twice
	_, err = f.subs.Renew(f.ctx, sub, due)
	require.NoError(t, err)
	f.assertBalance(t, "user-1", "40")
	f.assertBalance(t, platformOwner, "60")
}

func TestSubscription_RenewWithoutFundsGoesPastDue(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", "40")
	sub, err := f.subs.Create(f.ctx, "user-1", "pro", dec("30"))
	require.NoError(t, err)

	got, err := f.subs.Renew(f.ctx, sub, sub.NextBillingDate)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NotNil(t, got)
	assert.Equal(t, domain.SubscriptionPastDue, got.Status)

	stored, err := f.store.GetSubscription(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionPastDue, stored.Status)
	f.assertBalance(t, "user-1", "10")

	due, err := f.store.ListDueSubscriptions(f.ctx, sub.NextBillingDate)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSubscription_Cancel(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "user-1", "40")
	sub, err := f.subs.Create(f.ctx, "user-1", "pro", dec("30"))
	require.NoError(t, err)

	_, err = f.subs.Cancel(f.ctx, "user-2", sub.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	canceled, err := f.subs.Cancel(f.ctx, "user-1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCanceled, canceled.Status)

	_, err = f.subs.Renew(f.ctx, canceled, canceled.NextBillingDate)
	assert.ErrorIs(t, err, domain.ErrSubscriptionInactive)
}
