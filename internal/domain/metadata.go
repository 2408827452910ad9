package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Metadata is the typed payload attached to a transaction. Each transaction
// type has its own variant; DecodeMetadata picks the variant from the type.
type Metadata interface {
	TransactionType() TransactionType
}

type DepositMetadata struct {
	Source string `json:"source,omitempty"`
}

type WithdrawalMetadata struct {
	MethodID   string               `json:"method_id"`
	MethodType WithdrawalMethodType `json:"method_type"`
	Provider   string               `json:"provider,omitempty"`
	Instant    bool                 `json:"instant"`
	PayoutRef  string               `json:"payout_ref,omitempty"`
	Auto       bool                 `json:"auto,omitempty"`
}

type PaymentKind string

const (
	PaymentTransfer     PaymentKind = "transfer"
	PaymentSubscription PaymentKind = "subscription"
	PaymentPayroll      PaymentKind = "payroll"
)

type PaymentMetadata struct {
	Kind           PaymentKind `json:"kind"`
	CounterpartyID string      `json:"counterparty_id,omitempty"`
	SubscriptionID string      `json:"subscription_id,omitempty"`
	PlanID         string      `json:"plan_id,omitempty"`
	ContractID     string      `json:"contract_id,omitempty"`
	Period         string      `json:"period,omitempty"`
}

type TransferMetadata struct {
	FromUserID  string          `json:"from_user_id"`
	ToUserID    string          `json:"to_user_id"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	ContractID  string          `json:"contract_id,omitempty"`
	Period      string          `json:"period,omitempty"`
}

type FeeMetadata struct {
	SourceReference string          `json:"source_reference"`
	Percent         decimal.Decimal `json:"percent"`
	PayerID         string          `json:"payer_id,omitempty"`
}

type TaxMetadata struct {
	SourceReference string          `json:"source_reference"`
	Jurisdiction    string          `json:"jurisdiction,omitempty"`
	Rate            decimal.Decimal `json:"rate"`
	BenefitsCost    decimal.Decimal `json:"benefits_cost,omitempty"`
}

type RefundMetadata struct {
	OriginalTransactionID string `json:"original_transaction_id,omitempty"`
	Reason                string `json:"reason,omitempty"`
}

type ChargebackMetadata struct {
	OriginalTransactionID string `json:"original_transaction_id"`
	Reason                string `json:"reason,omitempty"`
}

// EscrowMetadata ties an escrow movement to its hold.
type EscrowMetadata struct {
	HoldID         string `json:"hold_id"`
	ContractID     string `json:"contract_id"`
	MilestoneID    string `json:"milestone_id"`
	CostCenter     string `json:"cost_center,omitempty"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
}

type (
	EscrowHoldMetadata    EscrowMetadata
	EscrowReleaseMetadata EscrowMetadata
	EscrowRefundMetadata  EscrowMetadata
)

func (DepositMetadata) TransactionType() TransactionType    { return TxDeposit }
func (WithdrawalMetadata) TransactionType() TransactionType { return TxWithdrawal }
func (PaymentMetadata) TransactionType() TransactionType    { return TxPayment }
func (TransferMetadata) TransactionType() TransactionType   { return TxTransfer }
func (FeeMetadata) TransactionType() TransactionType        { return TxFee }
func (TaxMetadata) TransactionType() TransactionType        { return TxTax }
func (RefundMetadata) TransactionType() TransactionType     { return TxRefund }
func (ChargebackMetadata) TransactionType() TransactionType { return TxChargeback }

func (EscrowHoldMetadata) TransactionType() TransactionType    { return TxEscrowHold }
func (EscrowReleaseMetadata) TransactionType() TransactionType { return TxEscrowRelease }
func (EscrowRefundMetadata) TransactionType() TransactionType  { return TxEscrowRefund }

// CheckMetadata verifies the variant matches the transaction type. A nil
// payload is allowed for every type.
func CheckMetadata(t TransactionType, m Metadata) error {
	if m == nil {
		return nil
	}
	if m.TransactionType() != t {
		return fmt.Errorf("%w: %s metadata on %s transaction", ErrInvalidRequest, m.TransactionType(), t)
	}
	return nil
}

// EncodeMetadata serializes a variant for storage.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// DecodeMetadata restores the variant that belongs to t.
func DecodeMetadata(t TransactionType, raw []byte) (Metadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var (
		m   Metadata
		err error
	)
	switch t {
	case TxDeposit:
		var v DepositMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxWithdrawal:
		var v WithdrawalMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxPayment:
		var v PaymentMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxTransfer:
		var v TransferMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxFee:
		var v FeeMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxTax:
		var v TaxMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxRefund:
		var v RefundMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxChargeback:
		var v ChargebackMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxEscrowHold:
		var v EscrowHoldMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxEscrowRelease:
		var v EscrowReleaseMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case TxEscrowRefund:
		var v EscrowRefundMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	default:
		return nil, fmt.Errorf("unknown transaction type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", t, err)
	}
	return m, nil
}
