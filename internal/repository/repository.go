package repository

import (
	"context"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
)

type WalletRepository interface {
	GetWallet(ctx context.Context, id string) (*domain.Wallet, error)
	GetWalletByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error)
	// CreateWallet inserts w unless the owner already has one, and returns the stored row.
	CreateWallet(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error)
	// LockWallets row-locks the wallets in ascending id order and holds the
	// locks until the surrounding unit of work ends.
	LockWallets(ctx context.Context, ids ...string) (map[string]*domain.Wallet, error)
	SaveBalances(ctx context.Context, w *domain.Wallet) error
	UpdateAutoWithdrawal(ctx context.Context, walletID string, s domain.AutoWithdrawalSettings) error
	ListAutoWithdrawalWallets(ctx context.Context) ([]*domain.Wallet, error)
	ListWalletsWithClearable(ctx context.Context, now time.Time) ([]string, error)
}

type TransactionRepository interface {
	// InsertTransaction fails with domain.ErrDuplicateReference when the reference is taken.
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetTransactionByReference(ctx context.Context, referenceID string) (*domain.Transaction, error)
	// ListTransactionsByReference returns the entry for referenceID and every
	// derived leg ("<referenceID>:<step>").
	ListTransactionsByReference(ctx context.Context, referenceID string) ([]*domain.Transaction, error)
	ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus, clearedAt *time.Time) error
	ListClearable(ctx context.Context, walletID string, now time.Time) ([]*domain.Transaction, error)
}

type InvoiceRepository interface {
	InsertInvoice(ctx context.Context, inv *domain.Invoice) error
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	GetInvoiceByReference(ctx context.Context, referenceID string) (*domain.Invoice, error)
	// ListInvoicesByUser returns the invoices sent or received by userID, newest first.
	ListInvoicesByUser(ctx context.Context, userID string) ([]*domain.Invoice, error)
	// MarkInvoicePaid moves an ISSUED invoice to PAID once none of its credits
	// is still held. It reports whether the invoice changed.
	MarkInvoicePaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
	// VoidInvoice marks the invoice VOID. Voiding a VOID invoice is a no-op.
	VoidInvoice(ctx context.Context, id string) error
}

type EscrowRepository interface {
	// InsertEscrowHold fails with domain.ErrDuplicateReference when the
	// milestone already has a hold.
	InsertEscrowHold(ctx context.Context, h *domain.EscrowHold) error
	GetEscrowHold(ctx context.Context, id string) (*domain.EscrowHold, error)
	GetEscrowHoldByMilestone(ctx context.Context, contractID, milestoneID string) (*domain.EscrowHold, error)
	ListEscrowHolds(ctx context.Context, contractID string) ([]*domain.EscrowHold, error)
	// UpdateEscrowHold writes h only while the stored hold is still in status
	// from, and fails with domain.ErrEscrowStateConflict otherwise.
	UpdateEscrowHold(ctx context.Context, h *domain.EscrowHold, from domain.EscrowStatus) error
}

type WithdrawalMethodRepository interface {
	InsertWithdrawalMethod(ctx context.Context, m *domain.WithdrawalMethod) error
	GetWithdrawalMethod(ctx context.Context, id string) (*domain.WithdrawalMethod, error)
	ListWithdrawalMethods(ctx context.Context, userID string) ([]*domain.WithdrawalMethod, error)
	DeleteWithdrawalMethod(ctx context.Context, id string) error
	ClearDefaultMethods(ctx context.Context, userID string) error
	SetDefaultMethod(ctx context.Context, id string) error
	SetInstantCapable(ctx context.Context, id string, capable bool) error
}

type SubscriptionRepository interface {
	InsertSubscription(ctx context.Context, s *domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, userID string) ([]*domain.Subscription, error)
	ListDueSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, s *domain.Subscription) error
}

type PayrollRepository interface {
	InsertContract(ctx context.Context, c *domain.EORContract) error
	GetContract(ctx context.Context, id string) (*domain.EORContract, error)
	ListDueContracts(ctx context.Context, now time.Time) ([]*domain.EORContract, error)
	AdvanceContract(ctx context.Context, id string, next time.Time) error
	ListActiveBenefits(ctx context.Context, employeeID string) ([]*domain.BenefitEnrollment, error)
	InsertBenefit(ctx context.Context, b *domain.BenefitEnrollment) error
	GetTaxSetting(ctx context.Context, jurisdiction string) (*domain.TaxSetting, error)
	UpsertTaxSetting(ctx context.Context, s *domain.TaxSetting) error
	GetPayrollRecord(ctx context.Context, contractID, period string) (*domain.PayrollRecord, error)
	InsertPayrollRecord(ctx context.Context, r *domain.PayrollRecord) error
	ListPayrollRecords(ctx context.Context, contractID string) ([]*domain.PayrollRecord, error)
}

type SagaRepository interface {
	InsertSaga(ctx context.Context, s *domain.Saga) error
	GetSagaByReference(ctx context.Context, referenceID string) (*domain.Saga, error)
	UpdateSaga(ctx context.Context, s *domain.Saga) error
	ListStaleSagas(ctx context.Context, before time.Time) ([]*domain.Saga, error)
}

type AuditRepository interface {
	InsertAuditRecord(ctx context.Context, r *domain.AuditRecord) error
	GetAuditRecord(ctx context.Context, id string) (*domain.AuditRecord, error)
}

type JobLockRepository interface {
	// AcquireJobLock takes the run-lock row of job unless another owner holds
	// an unexpired lock. It reports whether the lock was taken.
	AcquireJobLock(ctx context.Context, job domain.JobName, owner string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseJobLock(ctx context.Context, job domain.JobName, owner string) error
}

// Queries is the full ledger store surface, usable with or without a unit of work.
type Queries interface {
	WalletRepository
	TransactionRepository
	InvoiceRepository
	EscrowRepository
	WithdrawalMethodRepository
	SubscriptionRepository
	PayrollRepository
	SagaRepository
	AuditRepository
	JobLockRepository
}

// Store is the ledger store. WithinTx runs fn as one atomic unit: every
// write inside fn commits together or not at all.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(q Queries) error) error
}
