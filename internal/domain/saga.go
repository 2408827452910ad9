package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type SagaKind string
type SagaState string

const (
	SagaTransfer SagaKind = "TRANSFER"
	SagaPayroll  SagaKind = "PAYROLL"
	SagaEscrow   SagaKind = "ESCROW"
)

const (
	SagaRunning     SagaState = "RUNNING"
	SagaCompleted   SagaState = "COMPLETED"
	SagaRejected    SagaState = "REJECTED"    // failed before any money moved
	SagaCompensated SagaState = "COMPENSATED" // payer refunded after a later step failed
	SagaFlagged     SagaState = "FLAGGED"     // compensation failed, needs manual reconciliation
)

const (
	StepDebitPayer   = "DEBIT_PAYER"
	StepIssueInvoice = "ISSUE_INVOICE"
	StepCompensate   = "COMPENSATE_PAYER"
)

// SagaLeg is one single-wallet movement of a settlement.
type SagaLeg struct {
	Step        string          `json:"step"`
	WalletID    string          `json:"wallet_id"`
	OwnerID     string          `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	ReferenceID string          `json:"reference_id"`
	Description string          `json:"description"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	HoldUntil   *time.Time      `json:"hold_until,omitempty"`
	Metadata    Metadata        `json:"-"`
	RawMetadata json.RawMessage `json:"metadata,omitempty"`
}

// Pack serializes the typed metadata into RawMetadata.
func (l *SagaLeg) Pack() error {
	raw, err := EncodeMetadata(l.Metadata)
	if err != nil {
		return err
	}
	l.RawMetadata = raw
	return nil
}

// Unpack restores the typed metadata from RawMetadata.
func (l *SagaLeg) Unpack() error {
	m, err := DecodeMetadata(l.Type, l.RawMetadata)
	if err != nil {
		return err
	}
	l.Metadata = m
	return nil
}

func (l *SagaLeg) Entry() Entry {
	return Entry{
		WalletID:    l.WalletID,
		Amount:      l.Amount,
		Type:        l.Type,
		ReferenceID: l.ReferenceID,
		Description: l.Description,
		FeeAmount:   l.FeeAmount,
		TaxAmount:   l.TaxAmount,
		Metadata:    l.Metadata,
		HoldUntil:   l.HoldUntil,
	}
}

// SettlementPlan is everything a saga needs to run or resume.
type SettlementPlan struct {
	Debit   SagaLeg      `json:"debit"`
	Credits []SagaLeg    `json:"credits"`
	Invoice InvoiceDraft `json:"invoice"`
}

type InvoiceDraft struct {
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	FeeAmount  decimal.Decimal `json:"fee_amount"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	Currency   string          `json:"currency"`
	Items      []InvoiceItem   `json:"items"`
}

// Net is the sum of signed movements in the plan. A valid plan nets to zero.
func (p *SettlementPlan) Net() decimal.Decimal {
	net := p.Debit.Amount.Neg()
	for _, c := range p.Credits {
		net = net.Add(c.Amount)
	}
	return net
}

type SagaStep struct {
	Name          string    `json:"name"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

// Saga is the persisted step log of one settlement, keyed by reference.
type Saga struct {
	ID          string         `json:"id" db:"id"`
	ReferenceID string         `json:"reference_id" db:"reference_id"`
	Kind        SagaKind       `json:"kind" db:"kind"`
	State       SagaState      `json:"state" db:"state"`
	Plan        SettlementPlan `json:"plan" db:"plan"`
	Steps       []SagaStep     `json:"steps" db:"steps"`
	InvoiceID   *string        `json:"invoice_id,omitempty" db:"invoice_id"`
	Error       string         `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Done reports whether the named step finished successfully.
func (s *Saga) Done(step string) bool {
	for _, st := range s.Steps {
		if st.Name == step && st.Status == "OK" {
			return true
		}
	}
	return false
}

// Record appends a step outcome to the log.
func (s *Saga) Record(step, txID string, err error, at time.Time) {
	st := SagaStep{Name: step, TransactionID: txID, Status: "OK", At: at}
	if err != nil {
		st.Status = "ERROR"
		st.Error = err.Error()
	}
	s.Steps = append(s.Steps, st)
	s.UpdatedAt = at
}

// StepTransaction returns the transaction recorded by a successful step.
func (s *Saga) StepTransaction(step string) string {
	for _, st := range s.Steps {
		if st.Name == step && st.Status == "OK" {
			return st.TransactionID
		}
	}
	return ""
}

// Compensating reports whether a step already failed, so the saga can only unwind.
func (s *Saga) Compensating() bool {
	for _, st := range s.Steps {
		if st.Status == "ERROR" {
			return true
		}
	}
	return false
}

// Terminal reports whether the saga will not run again.
func (s *Saga) Terminal() bool {
	switch s.State {
	case SagaCompleted, SagaCompensated, SagaFlagged:
		return true
	}
	return false
}
