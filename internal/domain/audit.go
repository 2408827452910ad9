package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventDepositCompleted         = "DEPOSIT_COMPLETED"
	EventWithdrawCompleted        = "WITHDRAW_COMPLETED"
	EventInstantWithdrawCompleted = "INSTANT_WITHDRAW_COMPLETED"
	EventWithdrawFailed           = "WITHDRAW_FAILED"
	EventTransferCompleted        = "TRANSFER_COMPLETED"
	EventTransferCompensated      = "TRANSFER_COMPENSATED"
	EventTransferFlagged          = "TRANSFER_FLAGGED"
	EventPayrollProcessed         = "PAYROLL_PROCESSED"
	EventSubscriptionFeePaid      = "SUBSCRIPTION_FEE_PAID"
	EventSubscriptionPastDue      = "SUBSCRIPTION_PAST_DUE"
	EventChargebackProcessed      = "CHARGEBACK_PROCESSED"
	EventRefundProcessed          = "REFUND_PROCESSED"
	EventTransactionStatusUpdated = "TRANSACTION_STATUS_UPDATED"
	EventFundsCleared             = "FUNDS_CLEARED"
	EventAutoWithdrawalUpdated    = "AUTO_WITHDRAWAL_SETTINGS_UPDATED"
	EventEscrowFunded             = "ESCROW_FUNDED"
	EventEscrowReleaseRequested   = "ESCROW_RELEASE_REQUESTED"
	EventEscrowReleased           = "ESCROW_RELEASED"
	EventEscrowSplitReleased      = "ESCROW_SPLIT_RELEASED"
	EventEscrowRefunded           = "ESCROW_REFUNDED"
)

// AuditEvent is the payload covered by a checksum.
type AuditEvent struct {
	Service     string                 `json:"service"`
	EventType   string                 `json:"event_type"`
	ActorID     string                 `json:"actor_id"`
	Amount      *decimal.Decimal       `json:"amount,omitempty"`
	ReferenceID string                 `json:"reference_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// AuditRecord is an appended, checksummed audit entry.
type AuditRecord struct {
	ID        string     `json:"id" db:"id"`
	Event     AuditEvent `json:"event" db:"event"`
	Checksum  string     `json:"checksum" db:"checksum"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
