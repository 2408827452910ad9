package domain

import "errors"

// Ledger
var (
	ErrInsufficientFunds         = errors.New("insufficient wallet balance")
	ErrInsufficientEmployerFunds = errors.New("insufficient employer wallet balance")
	ErrWalletNotFound            = errors.New("wallet not found")
	ErrInvalidAmount             = errors.New("amount must be a positive decimal")
	ErrDuplicateReference        = errors.New("reference already processed")
	ErrSettlementFailure         = errors.New("payout provider settlement failed")
	ErrCompensationFailed        = errors.New("transfer compensation failed; flagged for reconciliation")
	ErrTransferInProgress        = errors.New("transfer with this reference is still in progress")
	ErrSelfTransfer              = errors.New("cannot transfer to the same wallet")
)

// Generic
var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrNotFound                = errors.New("not found")
	ErrInvalidStatusTransition = errors.New("invalid transaction status transition")
)

// Withdrawal methods
var (
	ErrNoDefaultWithdrawalMethod = errors.New("no default withdrawal method configured")
	ErrInstantNotSupported       = errors.New("withdrawal method does not support instant payouts")
	ErrMethodNotOwned            = errors.New("withdrawal method does not belong to user")
)

// Payroll / subscriptions / chargebacks
var (
	ErrPayrollAlreadyPaid   = errors.New("payroll for this period has already been paid")
	ErrContractInactive     = errors.New("contract is not active")
	ErrSubscriptionInactive = errors.New("subscription is not active")
	ErrNotChargeable        = errors.New("transaction cannot be charged back")
	ErrAlreadyChargedBack   = errors.New("transaction already charged back")
	ErrAlreadyRefunded      = errors.New("transaction already refunded")
)

// Escrow
var (
	ErrEscrowStateConflict = errors.New("escrow hold is not in the expected state")
	ErrApprovalRequired    = errors.New("release requires approval")
	ErrSelfApproval        = errors.New("approver cannot approve their own request")
)

// Audit / scheduler
var (
	ErrChecksumMismatch = errors.New("audit checksum mismatch")
	ErrJobLocked        = errors.New("job is already running")
)
