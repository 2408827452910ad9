package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/config"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/provider"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository/memory"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	platformOwner    = "PLATFORM"
	withholdingOwner = "WITHHOLDING"
	escrowOwner      = "ESCROW"
)

type MockPayouts struct {
	mock.Mock
}

func (m *MockPayouts) GetName() string { return "mock" }

func (m *MockPayouts) Payout(ctx context.Context, req *provider.PayoutRequest) (*provider.PayoutResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*provider.PayoutResponse)
	return resp, args.Error(1)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ctx       context.Context
	store     *memory.Store
	clock     *testClock
	cfg       config.LedgerConfig
	ledger    *Ledger
	wallets   *WalletUsecase
	methods   *WithdrawalMethodUsecase
	invoices  *InvoiceUsecase
	engine    *SettlementEngine
	transfers *TransferUsecase
	payroll   *PayrollUsecase
	subs      *SubscriptionUsecase
	reversals *ReversalUsecase
	escrow    *EscrowUsecase
	payouts   *MockPayouts
}

func testLedgerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		Currency:              "USD",
		PlatformOwnerID:       platformOwner,
		WithholdingOwnerID:    withholdingOwner,
		EscrowOwnerID:         escrowOwner,
		PlatformFeePercent:    decimal.NewFromInt(10),
		DefaultEORFeePercent:  decimal.NewFromInt(5),
		InstantFeePercent:     decimal.RequireFromString("1.5"),
		InstantMinFee:         decimal.RequireFromString("2.00"),
		CryptoFlatFee:         decimal.RequireFromString("1.00"),
		AutoWithdrawalWeekday: time.Monday,
		FeeRuleCacheTTL:       time.Minute,
		IdempotencyTTL:        time.Hour,
		SagaResumeAfter:       30 * time.Second,

		EscrowApprovalThreshold: decimal.NewFromInt(1000),
	}
}

func newFixture(t *testing.T, tweak ...func(*config.LedgerConfig)) *fixture {
	t.Helper()
	cfg := testLedgerConfig()
	for _, fn := range tweak {
		fn(&cfg)
	}

	clock := &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	store.SetClock(clock.Now)
	logger := zap.NewNop()

	recorder := audit.NewRecorder(store, nil, "payment-service", "test-secret", logger)
	ledger := NewLedger(store, cfg, recorder, nil, nil, clock.Now, logger)
	numbers, err := id.NewSnowflake(1)
	require.NoError(t, err)

	payouts := new(MockPayouts)
	invoices := NewInvoiceUsecase(store, numbers, logger)
	engine := NewSettlementEngine(ledger, invoices)
	fees := NewCachedFeeSchedule(nil, cfg.PlatformFeePercent, logger)
	taxes := NewStoreTaxTable(store, nil, cfg.FeeRuleCacheTTL, logger)

	return &fixture{
		ctx:       context.Background(),
		store:     store,
		clock:     clock,
		cfg:       cfg,
		ledger:    ledger,
		wallets:   NewWalletUsecase(ledger, payouts),
		methods:   NewWithdrawalMethodUsecase(ledger),
		invoices:  invoices,
		engine:    engine,
		transfers: NewTransferUsecase(ledger, engine, fees, taxes),
		payroll:   NewPayrollUsecase(ledger, engine, taxes),
		subs:      NewSubscriptionUsecase(ledger),
		reversals: NewReversalUsecase(ledger),
		escrow:    NewEscrowUsecase(ledger, engine),
		payouts:   payouts,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) fund(t *testing.T, owner, amount string) {
	t.Helper()
	_, err := f.wallets.Deposit(f.ctx, owner, dec(amount), "seed-"+owner+"-"+amount, "test")
	require.NoError(t, err)
}

func (f *fixture) wallet(t *testing.T, owner string) *domain.Wallet {
	t.Helper()
	w, err := f.wallets.GetWallet(f.ctx, owner)
	require.NoError(t, err)
	return w
}

func (f *fixture) assertBalance(t *testing.T, owner, balance string) {
	t.Helper()
	w := f.wallet(t, owner)
	assert.True(t, w.Balance.Equal(dec(balance)), "%s balance: want %s, got %s", owner, balance, w.Balance)
}

// assertConserved checks that the given wallets hold exactly the funds that
// were deposited into them.
func (f *fixture) assertConserved(t *testing.T, deposited string, owners ...string) {
	t.Helper()
	total := decimal.Zero
	for _, o := range owners {
		total = total.Add(f.wallet(t, o).Total())
	}
	assert.True(t, total.Equal(dec(deposited)), "want %s in the system, got %s", deposited, total)
}
