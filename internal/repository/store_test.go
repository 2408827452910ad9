package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var walletCols = []string{
	"id", "owner_id", "balance", "pending_balance", "currency",
	"auto_withdrawal_enabled", "auto_withdrawal_schedule", "auto_withdrawal_threshold",
	"default_withdrawal_method_id", "created_at", "updated_at",
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func walletRows(id, owner, balance string) *pgxmock.Rows {
	return pgxmock.NewRows(walletCols).
		AddRow(id, owner, balance, "0.00", "USD", false, domain.ScheduleNone, "0.00", nil, testTime, testTime)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestLockWallets_LocksInIdOrderOnce(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}

	mock.ExpectQuery(`FROM wallets WHERE id = \$1 FOR UPDATE`).
		WithArgs("w-a").
		WillReturnRows(walletRows("w-a", "alice", "10.00"))
	mock.ExpectQuery(`FROM wallets WHERE id = \$1 FOR UPDATE`).
		WithArgs("w-b").
		WillReturnRows(walletRows("w-b", "bob", "25.50"))

	locked, err := q.LockWallets(context.Background(), "w-b", "w-a", "w-b")
	require.NoError(t, err)
	require.Len(t, locked, 2)
	assert.Equal(t, "alice", locked["w-a"].OwnerID)
	assert.True(t, locked["w-b"].Balance.Equal(decimal.RequireFromString("25.50")))
	assert.Nil(t, locked["w-a"].DefaultWithdrawalMethodID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockWallets_MissingWallet(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}

	mock.ExpectQuery(`FROM wallets WHERE id = \$1 FOR UPDATE`).
		WithArgs("w-missing").
		WillReturnRows(pgxmock.NewRows(walletCols))

	_, err := q.LockWallets(context.Background(), "w-missing")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanWallet_RejectsMalformedNumeric(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}

	mock.ExpectQuery(`FROM wallets WHERE id = \$1`).
		WithArgs("w-a").
		WillReturnRows(walletRows("w-a", "alice", "ten"))

	w, err := q.GetWallet(context.Background(), "w-a")
	require.Error(t, err)
	assert.Nil(t, w)
	assert.NotErrorIs(t, err, domain.ErrWalletNotFound)
	assert.Contains(t, err.Error(), "parse numeric column")
}

func TestAcquireJobLock_LeaseDecidesOwnership(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}
	ttl := 5 * time.Minute
	upsert := `INSERT INTO job_locks .* ON CONFLICT \(job\) DO UPDATE .* ` +
		`WHERE job_locks.owner = '' OR job_locks.expires_at <= EXCLUDED.locked_at`

	// free row
	mock.ExpectExec(upsert).
		WithArgs(domain.JobPayrollCycle, "node-1", testTime, testTime.Add(ttl)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// lease of node-1 still running
	later := testTime.Add(time.Minute)
	mock.ExpectExec(upsert).
		WithArgs(domain.JobPayrollCycle, "node-2", later, later.Add(ttl)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	// lease of node-1 expired
	expired := testTime.Add(ttl)
	mock.ExpectExec(upsert).
		WithArgs(domain.JobPayrollCycle, "node-2", expired, expired.Add(ttl)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := q.AcquireJobLock(context.Background(), domain.JobPayrollCycle, "node-1", testTime, ttl)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.AcquireJobLock(context.Background(), domain.JobPayrollCycle, "node-2", later, ttl)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = q.AcquireJobLock(context.Background(), domain.JobPayrollCycle, "node-2", expired, ttl)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireJobLock_PropagatesErrors(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}

	mock.ExpectExec(`INSERT INTO job_locks`).
		WithArgs(anyArgs(4)...).
		WillReturnError(errors.New("connection reset"))

	ok, err := q.AcquireJobLock(context.Background(), domain.JobSagaRecovery, "node-1", testTime, time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestReleaseJobLock_OnlyOwnLease(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}

	mock.ExpectExec(`UPDATE job_locks SET owner = '', expires_at = locked_at WHERE job = \$1 AND owner = \$2`).
		WithArgs(domain.JobAutoWithdrawal, "node-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, q.ReleaseJobLock(context.Background(), domain.JobAutoWithdrawal, "node-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransaction_UniqueViolationIsDuplicateReference(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}

	mock.ExpectQuery(`INSERT INTO transactions`).
		WithArgs(anyArgs(12)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "transactions_reference_id_key"})

	err := q.InsertTransaction(context.Background(), &domain.Transaction{
		ID:          "tx-1",
		WalletID:    "w-a",
		Amount:      decimal.RequireFromString("10.00"),
		Type:        domain.TxDeposit,
		Status:      domain.TxStatusCompleted,
		ReferenceID: "dep-1",
		Metadata:    domain.DepositMetadata{Source: "card"},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransaction_OtherErrorsPassThrough(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}

	mock.ExpectQuery(`INSERT INTO transactions`).
		WithArgs(anyArgs(12)...).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := q.InsertTransaction(context.Background(), &domain.Transaction{ID: "tx-1", WalletID: "w-gone", Type: domain.TxDeposit})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateReference)
	assert.Equal(t, "23503", ParsePGErrorCode(err))
}

func TestMarkInvoicePaid_WaitsForHeldCredits(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}
	update := `UPDATE invoices SET status = 'PAID', paid_at = \$2 WHERE id = \$1 AND status = 'ISSUED' AND NOT EXISTS`

	mock.ExpectExec(update).
		WithArgs("inv-1", testTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(update).
		WithArgs("inv-1", testTime.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	paid, err := q.MarkInvoicePaid(context.Background(), "inv-1", testTime)
	require.NoError(t, err)
	assert.False(t, paid)

	paid, err = q.MarkInvoicePaid(context.Background(), "inv-1", testTime.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, paid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoidInvoice_UnknownInvoice(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}

	mock.ExpectExec(`UPDATE invoices SET status = 'VOID'`).
		WithArgs("inv-x").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("inv-x").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	assert.ErrorIs(t, q.VoidInvoice(context.Background(), "inv-x"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEscrowHold_StaleStatusConflicts(t *testing.T) {
	mock := newMockPool(t)
	q := &queries{db: mock}

	mock.ExpectQuery(`UPDATE escrow_holds .* WHERE id = \$1 AND status = \$2`).
		WithArgs(anyArgs(6)...).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}))

	err := q.UpdateEscrowHold(context.Background(), &domain.EscrowHold{ID: "hold-1", Status: domain.EscrowRefunded}, domain.EscrowHeld)
	assert.ErrorIs(t, err, domain.ErrEscrowStateConflict)
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresStore(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`UPDATE wallets SET balance = \$2, pending_balance = \$3`).
		WithArgs("w-a", "15", "0").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(q Queries) error {
		return q.SaveBalances(context.Background(), &domain.Wallet{ID: "w-a", Balance: decimal.RequireFromString("15.00")})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresStore(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`UPDATE wallets SET balance`).
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(q Queries) error {
		return q.SaveBalances(context.Background(), &domain.Wallet{ID: "w-gone"})
	})
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
