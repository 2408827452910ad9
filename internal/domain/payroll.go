package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PayCycle string

const (
	PayCycleMonthly PayCycle = "MONTHLY"
	PayCycleWeekly  PayCycle = "WEEKLY"
)

// BenefitsFactor scales a monthly benefits cost to one pay period.
func (c PayCycle) BenefitsFactor() decimal.Decimal {
	if c == PayCycleWeekly {
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(4))
	}
	return decimal.NewFromInt(1)
}

// Next returns the start of the pay period after t.
func (c PayCycle) Next(t time.Time) time.Time {
	if c == PayCycleWeekly {
		return t.AddDate(0, 0, 7)
	}
	return t.AddDate(0, 1, 0)
}

// Period labels the pay period that contains t.
func (c PayCycle) Period(t time.Time) string {
	t = t.UTC()
	if c == PayCycleWeekly {
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	}
	return t.Format("2006-01")
}

type ContractStatus string

const (
	ContractActive     ContractStatus = "ACTIVE"
	ContractTerminated ContractStatus = "TERMINATED"
)

// EORContract is an Employer-of-Record engagement paid through the ledger.
type EORContract struct {
	ID               string          `json:"id" db:"id"`
	ClientID         string          `json:"client_id" db:"client_id"`
	EmployeeID       string          `json:"employee_id" db:"employee_id"`
	Jurisdiction     string          `json:"jurisdiction" db:"jurisdiction"`
	RecurringAmount  decimal.Decimal `json:"recurring_amount" db:"recurring_amount"`
	EORFeePercentage decimal.Decimal `json:"eor_fee_percentage" db:"eor_fee_percentage"`
	PayCycle         PayCycle        `json:"pay_cycle" db:"pay_cycle"`
	Status           ContractStatus  `json:"status" db:"status"`
	NextPayrollAt    time.Time       `json:"next_payroll_at" db:"next_payroll_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

type BenefitEnrollment struct {
	ID          string          `json:"id" db:"id"`
	EmployeeID  string          `json:"employee_id" db:"employee_id"`
	PlanName    string          `json:"plan_name" db:"plan_name"`
	MonthlyCost decimal.Decimal `json:"monthly_cost" db:"monthly_cost"`
	Active      bool            `json:"active" db:"active"`
}

// TaxSetting is the withholding rate of one jurisdiction, in percent.
type TaxSetting struct {
	Jurisdiction string          `json:"jurisdiction" db:"jurisdiction"`
	Rate         decimal.Decimal `json:"rate" db:"rate"`
}

type PayrollBreakdown struct {
	ContractID        string          `json:"contract_id"`
	EmployeeID        string          `json:"employee_id"`
	Gross             decimal.Decimal `json:"gross"`
	EORFee            decimal.Decimal `json:"eor_fee"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	TotalBenefitsCost decimal.Decimal `json:"total_benefits_cost"`
	NetAmount         decimal.Decimal `json:"net_amount"`
	TotalEmployerCost decimal.Decimal `json:"total_employer_cost"`
}

type PayrollStatus string

const (
	PayrollPaid   PayrollStatus = "PAID"
	PayrollFailed PayrollStatus = "FAILED"
)

type PayrollRecord struct {
	ID          string           `json:"id" db:"id"`
	ContractID  string           `json:"contract_id" db:"contract_id"`
	Period      string           `json:"period" db:"period"`
	Breakdown   PayrollBreakdown `json:"breakdown" db:"breakdown"`
	Status      PayrollStatus    `json:"status" db:"status"`
	ReferenceID string           `json:"reference_id" db:"reference_id"`
	InvoiceID   *string          `json:"invoice_id,omitempty" db:"invoice_id"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}
