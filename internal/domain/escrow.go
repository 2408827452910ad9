package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EscrowStatus string

const (
	EscrowHeld            EscrowStatus = "HELD"
	EscrowPendingApproval EscrowStatus = "PENDING_APPROVAL"
	EscrowReleased        EscrowStatus = "RELEASED"
	EscrowRefunded        EscrowStatus = "REFUNDED"
)

// EscrowHold is money a client parked against one contract milestone. The
// funds sit in the escrow wallet until the hold is released or refunded.
type EscrowHold struct {
	ID          string          `json:"id" db:"id"`
	ContractID  string          `json:"contract_id" db:"contract_id"`
	MilestoneID string          `json:"milestone_id" db:"milestone_id"`
	PayerID     string          `json:"payer_id" db:"payer_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	CostCenter  string          `json:"cost_center,omitempty" db:"cost_center"`
	Status      EscrowStatus    `json:"status" db:"status"`
	// Release is the payout requested or executed for this hold.
	Release     *EscrowRelease `json:"release,omitempty" db:"release"`
	RequestedBy string         `json:"requested_by,omitempty" db:"requested_by"`
	ApprovedBy  string         `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// EscrowRelease says who receives a hold. AgencyPercent of the payee share
// goes to AgencyID when set. A split release returns the part not owed to
// the payee to the payer.
type EscrowRelease struct {
	PayeeID           string           `json:"payee_id"`
	AgencyID          string           `json:"agency_id,omitempty"`
	AgencyPercent     decimal.Decimal  `json:"agency_percent,omitempty"`
	FreelancerPercent *decimal.Decimal `json:"freelancer_percent,omitempty"`
}

// Split reports whether the release divides the hold between payee and payer.
func (r *EscrowRelease) Split() bool {
	return r != nil && r.FreelancerPercent != nil
}

// Releasable reports whether the hold can still pay out.
func (h *EscrowHold) Releasable() bool {
	return h.Status == EscrowHeld || h.Status == EscrowPendingApproval
}

// SettlementReference is the saga reference of the hold's payout.
func (h *EscrowHold) SettlementReference() string {
	return h.ID + ":release"
}
