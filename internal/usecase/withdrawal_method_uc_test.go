package usecase

import (
	"testing"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countDefaults(methods []*domain.WithdrawalMethod) int {
	n := 0
	for _, m := range methods {
		if m.IsDefault {
			n++
		}
	}
	return n
}

func TestWithdrawalMethods_SingleDefault(t *testing.T) {
	f := newFixture(t)

	first, err := f.methods.Add(f.ctx, AddMethodRequest{UserID: "user-1", Type: domain.MethodPayPal, AccountNumber: "jane@example.com"})
	require.NoError(t, err)
	assert.True(t, first.IsDefault, "first method becomes the default")
	assert.Equal(t, "****.com", first.AccountNumber)

	second, err := f.methods.Add(f.ctx, AddMethodRequest{UserID: "user-1", Type: domain.MethodWise, AccountNumber: "GB29NWBK60161331926819"})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	third, err := f.methods.Add(f.ctx, AddMethodRequest{UserID: "user-1", Type: domain.MethodMpesa, AccountNumber: "254700000001", IsDefault: true})
	require.NoError(t, err)
	assert.True(t, third.IsDefault)

	methods, err := f.methods.List(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, methods, 3)
	assert.Equal(t, 1, countDefaults(methods))

	_, err = f.methods.SetDefault(f.ctx, "user-1", second.ID)
	require.NoError(t, err)
	methods, err = f.methods.List(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, countDefaults(methods))

	w := f.wallet(t, "user-1")
	require.NotNil(t, w.DefaultWithdrawalMethodID)
	assert.Equal(t, second.ID, *w.DefaultWithdrawalMethodID)
}

func TestWithdrawalMethods_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.methods.Add(f.ctx, AddMethodRequest{UserID: "user-1", Type: "CHEQUE", AccountNumber: "123456"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.methods.Add(f.ctx, AddMethodRequest{UserID: "user-1", Type: domain.MethodBank})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestWithdrawalMethods_Ownership(t *testing.T) {
	f := newFixture(t)
	m, err := f.methods.Add(f.ctx, AddMethodRequest{UserID: "user-1", Type: domain.MethodBank, AccountNumber: "000111222333"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.methods.Delete(f.ctx, "user-2", m.ID), domain.ErrMethodNotOwned)
	_, err = f.methods.SetDefault(f.ctx, "user-2", m.ID)
	assert.ErrorIs(t, err, domain.ErrMethodNotOwned)
	_, err = f.methods.VerifyInstant(f.ctx, "user-2", m.ID)
	assert.ErrorIs(t, err, domain.ErrMethodNotOwned)

	verified, err := f.methods.VerifyInstant(f.ctx, "user-1", m.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsInstantCapable)

	require.NoError(t, f.methods.Delete(f.ctx, "user-1", m.ID))
	methods, err := f.methods.List(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, methods)
	assert.Nil(t, f.wallet(t, "user-1").DefaultWithdrawalMethodID)
}

func TestUpdateAutoWithdrawal(t *testing.T) {
	f := newFixture(t)
	_, err := f.methods.Add(f.ctx, AddMethodRequest{UserID: "user-1", Type: domain.MethodBank, AccountNumber: "000111222333"})
	require.NoError(t, err)
	b, err := f.methods.Add(f.ctx, AddMethodRequest{UserID: "user-1", Type: domain.MethodPix, AccountNumber: "pix-key-9876"})
	require.NoError(t, err)
	other, err := f.methods.Add(f.ctx, AddMethodRequest{UserID: "user-2", Type: domain.MethodBank, AccountNumber: "999888777666"})
	require.NoError(t, err)

	w, err := f.methods.UpdateAutoWithdrawal(f.ctx, "user-1", domain.AutoWithdrawalSettings{
		Enabled:   true,
		Schedule:  "weekly",
		Threshold: dec("50"),
		MethodID:  &b.ID,
	})
	require.NoError(t, err)
	assert.True(t, w.AutoWithdrawalEnabled)
	assert.Equal(t, domain.ScheduleWeekly, w.AutoWithdrawalSchedule)
	assert.True(t, w.AutoWithdrawalThreshold.Equal(dec("50")))
	require.NotNil(t, w.DefaultWithdrawalMethodID)
	assert.Equal(t, b.ID, *w.DefaultWithdrawalMethodID)

	methods, err := f.methods.List(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, countDefaults(methods))
	for _, m := range methods {
		assert.Equal(t, m.ID == b.ID, m.IsDefault, m.ID)
	}

	_, err = f.methods.UpdateAutoWithdrawal(f.ctx, "user-1", domain.AutoWithdrawalSettings{Schedule: "DAILY"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.methods.UpdateAutoWithdrawal(f.ctx, "user-1", domain.AutoWithdrawalSettings{Schedule: "MONTHLY", Threshold: dec("-1")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.methods.UpdateAutoWithdrawal(f.ctx, "user-1", domain.AutoWithdrawalSettings{Schedule: "MONTHLY", MethodID: &other.ID})
	assert.ErrorIs(t, err, domain.ErrMethodNotOwned)
}
