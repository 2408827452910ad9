package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string
type TransactionStatus string

const (
	TxDeposit    TransactionType = "DEPOSIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxPayment    TransactionType = "PAYMENT"
	TxTransfer   TransactionType = "TRANSFER"
	TxFee        TransactionType = "FEE"
	TxTax        TransactionType = "TAX"
	TxRefund     TransactionType = "REFUND"
	TxChargeback TransactionType = "CHARGEBACK"

	TxEscrowHold    TransactionType = "ESCROW_HOLD"
	TxEscrowRelease TransactionType = "ESCROW_RELEASE"
	TxEscrowRefund  TransactionType = "ESCROW_REFUND"
)

const (
	TxStatusPending   TransactionStatus = "PENDING"
	TxStatusCompleted TransactionStatus = "COMPLETED"
	TxStatusFailed    TransactionStatus = "FAILED"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxPayment, TxTransfer, TxFee, TxTax, TxRefund, TxChargeback,
		TxEscrowHold, TxEscrowRelease, TxEscrowRefund:
		return true
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusCompleted, TxStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a status change is allowed. Only PENDING moves.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	return s == TxStatusPending && (next == TxStatusCompleted || next == TxStatusFailed)
}

// Transaction is an immutable ledger entry. Amount is signed: credits are
// positive, debits negative.
type Transaction struct {
	ID          string            `json:"id" db:"id"`
	WalletID    string            `json:"wallet_id" db:"wallet_id"`
	Amount      decimal.Decimal   `json:"amount" db:"amount"`
	Type        TransactionType   `json:"type" db:"type"`
	Status      TransactionStatus `json:"status" db:"status"`
	ReferenceID string            `json:"reference_id" db:"reference_id"`
	Description string            `json:"description" db:"description"`
	FeeAmount   decimal.Decimal   `json:"fee_amount" db:"fee_amount"`
	TaxAmount   decimal.Decimal   `json:"tax_amount" db:"tax_amount"`
	InvoiceID   *string           `json:"invoice_id,omitempty" db:"invoice_id"`
	Metadata    Metadata          `json:"metadata,omitempty" db:"metadata"`
	ClearedAt   *time.Time        `json:"cleared_at,omitempty" db:"cleared_at"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

// IsCredit reports whether the entry added funds to its wallet.
func (t *Transaction) IsCredit() bool {
	return t.Amount.IsPositive()
}

type TransactionFilter struct {
	WalletID string
	Type     TransactionType
	Status   TransactionStatus
	Limit    int
	Offset   int
}

// Normalize clamps paging to sane bounds.
func (f *TransactionFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Entry describes one balance movement requested by a usecase.
type Entry struct {
	WalletID    string
	Amount      decimal.Decimal // always positive; direction comes from the call
	Type        TransactionType
	ReferenceID string
	Description string
	FeeAmount   decimal.Decimal
	TaxAmount   decimal.Decimal
	InvoiceID   *string
	Metadata    Metadata
	// HoldUntil routes a credit into the pending balance until the given time.
	HoldUntil *time.Time
	// AwaitSettlement records a debit as PENDING until an external party confirms it.
	AwaitSettlement bool
}
