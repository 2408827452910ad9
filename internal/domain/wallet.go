package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type AutoWithdrawalSchedule string

const (
	ScheduleNone    AutoWithdrawalSchedule = "NONE"
	ScheduleWeekly  AutoWithdrawalSchedule = "WEEKLY"
	ScheduleMonthly AutoWithdrawalSchedule = "MONTHLY"
)

func (s AutoWithdrawalSchedule) Valid() bool {
	switch s {
	case ScheduleNone, ScheduleWeekly, ScheduleMonthly:
		return true
	}
	return false
}

// Wallet is the ledger account of a user or organization.
type Wallet struct {
	ID                        string                 `json:"id" db:"id"`
	OwnerID                   string                 `json:"owner_id" db:"owner_id"`
	Balance                   decimal.Decimal        `json:"balance" db:"balance"`
	PendingBalance            decimal.Decimal        `json:"pending_balance" db:"pending_balance"`
	Currency                  string                 `json:"currency" db:"currency"`
	AutoWithdrawalEnabled     bool                   `json:"auto_withdrawal_enabled" db:"auto_withdrawal_enabled"`
	AutoWithdrawalSchedule    AutoWithdrawalSchedule `json:"auto_withdrawal_schedule" db:"auto_withdrawal_schedule"`
	AutoWithdrawalThreshold   decimal.Decimal        `json:"auto_withdrawal_threshold" db:"auto_withdrawal_threshold"`
	DefaultWithdrawalMethodID *string                `json:"default_withdrawal_method_id,omitempty" db:"default_withdrawal_method_id"`
	CreatedAt                 time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time              `json:"updated_at" db:"updated_at"`
}

// Apply adds delta to the available balance. It refuses to commit a negative balance.
func (w *Wallet) Apply(delta decimal.Decimal) error {
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("wallet %s: %w", w.ID, ErrInsufficientFunds)
	}
	w.Balance = next
	return nil
}

// ApplyPending adds delta to the pending balance.
func (w *Wallet) ApplyPending(delta decimal.Decimal) error {
	next := w.PendingBalance.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("wallet %s pending: %w", w.ID, ErrInsufficientFunds)
	}
	w.PendingBalance = next
	return nil
}

// Total is available plus pending funds.
func (w *Wallet) Total() decimal.Decimal {
	return w.Balance.Add(w.PendingBalance)
}

type AutoWithdrawalSettings struct {
	Enabled   bool                   `json:"enabled"`
	Schedule  AutoWithdrawalSchedule `json:"schedule"`
	Threshold decimal.Decimal        `json:"threshold"`
	MethodID  *string                `json:"method_id,omitempty"`
}
