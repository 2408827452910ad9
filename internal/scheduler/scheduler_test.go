package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/config"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/provider"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository/memory"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/usecase"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Monday
var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	ctx       context.Context
	store     *memory.Store
	wallets   *usecase.WalletUsecase
	methods   *usecase.WithdrawalMethodUsecase
	transfers *usecase.TransferUsecase
	payroll   *usecase.PayrollUsecase
	subs      *usecase.SubscriptionUsecase
	sched     *Scheduler
}

func newHarness(t *testing.T, clearing time.Duration) *harness {
	t.Helper()
	cfg := config.LedgerConfig{
		Currency:             "USD",
		PlatformOwnerID:      "PLATFORM",
		WithholdingOwnerID:   "WITHHOLDING",
		PlatformFeePercent:   decimal.NewFromInt(10),
		DefaultEORFeePercent: decimal.NewFromInt(5),
		InstantFeePercent:    decimal.RequireFromString("1.5"),
		InstantMinFee:        decimal.RequireFromString("2"),
		CryptoFlatFee:        decimal.RequireFromString("1"),
		ClearingPeriod:       clearing,
		SagaResumeAfter:      30 * time.Second,
	}
	clock := func() time.Time { return start }
	store := memory.NewStore()
	store.SetClock(clock)
	logger := zap.NewNop()

	recorder := audit.NewRecorder(store, nil, "payment-service", "test-secret", logger)
	ledger := usecase.NewLedger(store, cfg, recorder, nil, nil, clock, logger)
	numbers, err := id.NewSnowflake(1)
	require.NoError(t, err)
	invoices := usecase.NewInvoiceUsecase(store, numbers, logger)
	engine := usecase.NewSettlementEngine(ledger, invoices)
	taxes := usecase.NewStoreTaxTable(store, nil, 0, logger)

	h := &harness{
		ctx:       context.Background(),
		store:     store,
		wallets:   usecase.NewWalletUsecase(ledger, provider.NewSandboxProvider(logger)),
		methods:   usecase.NewWithdrawalMethodUsecase(ledger),
		transfers: usecase.NewTransferUsecase(ledger, engine, usecase.NewCachedFeeSchedule(nil, cfg.PlatformFeePercent, logger), taxes),
		payroll:   usecase.NewPayrollUsecase(ledger, engine, taxes),
		subs:      usecase.NewSubscriptionUsecase(ledger),
	}
	h.sched = New(store, h.wallets, h.payroll, h.subs, engine, Options{
		Owner:   "test-node",
		LockTTL: time.Hour,
		Weekday: time.Monday,
	}, logger)
	return h
}

func (h *harness) fund(t *testing.T, owner, amount string) {
	t.Helper()
	_, err := h.wallets.Deposit(h.ctx, owner, decimal.RequireFromString(amount), "seed-"+owner, "test")
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, owner string) decimal.Decimal {
	t.Helper()
	w, err := h.wallets.GetWallet(h.ctx, owner)
	require.NoError(t, err)
	return w.Balance
}

func (h *harness) enableAuto(t *testing.T, owner string, schedule domain.AutoWithdrawalSchedule, threshold string, withMethod bool) string {
	t.Helper()
	settings := domain.AutoWithdrawalSettings{
		Enabled:   true,
		Schedule:  schedule,
		Threshold: decimal.RequireFromString(threshold),
	}
	if withMethod {
		m, err := h.methods.Add(h.ctx, usecase.AddMethodRequest{UserID: owner, Type: domain.MethodBank, AccountNumber: "000111222333"})
		require.NoError(t, err)
		settings.MethodID = &m.ID
	}
	w, err := h.methods.UpdateAutoWithdrawal(h.ctx, owner, settings)
	require.NoError(t, err)
	return w.ID
}

func states(r *domain.JobReport) map[string]domain.EntityState {
	out := make(map[string]domain.EntityState, len(r.Results))
	for _, res := range r.Results {
		out[res.EntityID] = res.State
	}
	return out
}

func TestScheduleDue(t *testing.T) {
	tests := []struct {
		name     string
		schedule domain.AutoWithdrawalSchedule
		now      time.Time
		want     bool
	}{
		{"weekly on the weekday", domain.ScheduleWeekly, start, true},
		{"weekly on another day", domain.ScheduleWeekly, start.AddDate(0, 0, 1), false},
		{"monthly on the first", domain.ScheduleMonthly, time.Date(2026, 4, 1, 2, 0, 0, 0, time.UTC), true},
		{"monthly mid month", domain.ScheduleMonthly, start, false},
		{"none", domain.ScheduleNone, start, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScheduleDue(tt.schedule, tt.now, time.Monday))
		})
	}
}

func TestThresholdMet(t *testing.T) {
	w := &domain.Wallet{Balance: decimal.NewFromInt(50), AutoWithdrawalThreshold: decimal.NewFromInt(50)}
	assert.True(t, ThresholdMet(w))

	w.Balance = decimal.NewFromInt(49)
	assert.False(t, ThresholdMet(w))

	w.Balance, w.AutoWithdrawalThreshold = decimal.Zero, decimal.Zero
	assert.False(t, ThresholdMet(w), "an empty wallet is never swept")
}

func TestAutoWithdrawals_GatesEachWallet(t *testing.T) {
	h := newHarness(t, 0)

	h.fund(t, "rich", "100")
	rich := h.enableAuto(t, "rich", domain.ScheduleWeekly, "50", true)
	h.fund(t, "poor", "20")
	poor := h.enableAuto(t, "poor", domain.ScheduleWeekly, "50", true)
	h.fund(t, "monthly", "500")
	monthly := h.enableAuto(t, "monthly", domain.ScheduleMonthly, "0", true)
	h.fund(t, "nomethod", "80")
	nomethod := h.enableAuto(t, "nomethod", domain.ScheduleWeekly, "10", false)

	report, err := h.sched.AutoWithdrawals(h.ctx, start)
	require.NoError(t, err)

	got := states(report)
	assert.Equal(t, domain.EntitySettled, got[rich])
	assert.Equal(t, domain.EntitySkipped, got[poor])
	assert.Equal(t, domain.EntitySkipped, got[monthly])
	assert.Equal(t, domain.EntityFailed, got[nomethod])

	assert.True(t, h.balance(t, "rich").IsZero())
	assert.True(t, h.balance(t, "poor").Equal(decimal.NewFromInt(20)))
	assert.True(t, h.balance(t, "monthly").Equal(decimal.NewFromInt(500)))
	assert.True(t, h.balance(t, "nomethod").Equal(decimal.NewFromInt(80)))

	// a second tick the same day finds nothing left to sweep
	report, err = h.sched.AutoWithdrawals(h.ctx, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.EntitySkipped, states(report)[rich])
}

func TestRun_LockPreventsOverlap(t *testing.T) {
	h := newHarness(t, 0)

	ok, err := h.store.AcquireJobLock(h.ctx, domain.JobPayrollCycle, "other-node", start, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.sched.PayrollCycle(h.ctx, start)
	assert.ErrorIs(t, err, domain.ErrJobLocked)

	// the other node's lock has expired
	report, err := h.sched.PayrollCycle(h.ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, report.Results)

	// released after the sweep
	_, err = h.sched.PayrollCycle(h.ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
}

func TestSubscriptionRenewals_PastDueIsIsolated(t *testing.T) {
	h := newHarness(t, 0)
	h.fund(t, "broke", "40")
	broke, err := h.subs.Create(h.ctx, "broke", "pro", decimal.NewFromInt(30))
	require.NoError(t, err)
	h.fund(t, "solvent", "100")
	solvent, err := h.subs.Create(h.ctx, "solvent", "pro", decimal.NewFromInt(30))
	require.NoError(t, err)

	due := start.AddDate(0, 1, 0).Add(time.Hour)
	report, err := h.sched.SubscriptionRenewals(h.ctx, due)
	require.NoError(t, err)

	got := states(report)
	assert.Equal(t, domain.EntityFailed, got[broke.ID])
	assert.Equal(t, domain.EntitySettled, got[solvent.ID])

	stored, err := h.store.GetSubscription(h.ctx, broke.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionPastDue, stored.Status)
	assert.True(t, h.balance(t, "solvent").Equal(decimal.NewFromInt(40)))

	// nothing is due again until the next cycle
	report, err = h.sched.SubscriptionRenewals(h.ctx, due)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestPayrollCycle_PaysDueContracts(t *testing.T) {
	h := newHarness(t, 0)
	c, err := h.payroll.CreateContract(h.ctx, usecase.ContractRequest{
		ClientID:        "employer",
		EmployeeID:      "employee",
		RecurringAmount: decimal.NewFromInt(1000),
		PayCycle:        domain.PayCycleMonthly,
	})
	require.NoError(t, err)
	h.fund(t, "employer", "2000")

	report, err := h.sched.PayrollCycle(h.ctx, start)
	require.NoError(t, err)
	assert.Empty(t, report.Results, "first payroll is a cycle away")

	report, err = h.sched.PayrollCycle(h.ctx, c.NextPayrollAt)
	require.NoError(t, err)
	assert.Equal(t, domain.EntitySettled, states(report)[c.ID])
	assert.True(t, h.balance(t, "employee").Equal(decimal.NewFromInt(1000)))
	assert.True(t, h.balance(t, "employer").Equal(decimal.NewFromInt(950)))

	report, err = h.sched.PayrollCycle(h.ctx, c.NextPayrollAt)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestPendingClearing_ReleasesMaturedCredits(t *testing.T) {
	h := newHarness(t, 48*time.Hour)
	h.fund(t, "client", "100")
	_, err := h.transfers.Transfer(h.ctx, usecase.TransferRequest{
		FromUserID: "client", ToUserID: "freelancer", Amount: decimal.NewFromInt(100), ReferenceID: "job-1",
	})
	require.NoError(t, err)

	report, err := h.sched.PendingClearing(h.ctx, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, report.Results)

	report, err = h.sched.PendingClearing(h.ctx, start.Add(49*time.Hour))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, domain.EntitySettled, report.Results[0].State)

	w, err := h.store.GetWalletByOwner(h.ctx, "freelancer")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(90)))
	assert.True(t, w.PendingBalance.IsZero())
}
