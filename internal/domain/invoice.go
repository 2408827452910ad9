package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceIssued InvoiceStatus = "ISSUED"
	InvoicePaid   InvoiceStatus = "PAID"
	InvoiceVoid   InvoiceStatus = "VOID"
)

type InvoiceItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
}

type Invoice struct {
	ID            string          `json:"id" db:"id"`
	InvoiceNumber string          `json:"invoice_number" db:"invoice_number"`
	SenderID      string          `json:"sender_id" db:"sender_id"`
	ReceiverID    string          `json:"receiver_id" db:"receiver_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	FeeAmount     decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status        InvoiceStatus   `json:"status" db:"status"`
	DueDate       *time.Time      `json:"due_date,omitempty" db:"due_date"`
	PaidAt        *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	Items         []InvoiceItem   `json:"items" db:"items"`
	Currency      string          `json:"currency" db:"currency"`
	ReferenceID   string          `json:"reference_id" db:"reference_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// InvoiceData is the printable view of a transaction and its invoice.
type InvoiceData struct {
	InvoiceNumber string          `json:"invoice_number"`
	TransactionID string          `json:"transaction_id"`
	Date          time.Time       `json:"date"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	Items         []InvoiceItem   `json:"items"`
	Amount        decimal.Decimal `json:"amount"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	FeePercent    decimal.Decimal `json:"fee_percent"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
}

// FallbackInvoiceNumber names a transaction that was never invoiced.
func FallbackInvoiceNumber(txID string) string {
	n := txID
	if len(n) > 8 {
		n = n[:8]
	}
	return "INV-" + strings.ToUpper(n)
}

// TaxYearSummary totals the invoices a user was paid on during one calendar
// year (UTC).
type TaxYearSummary struct {
	UserID           string          `json:"user_id"`
	Year             int             `json:"year"`
	GrossVolume      decimal.Decimal `json:"gross_volume"`
	FeesPaid         decimal.Decimal `json:"fees_paid"`
	TaxWithheld      decimal.Decimal `json:"tax_withheld"`
	NetVolume        decimal.Decimal `json:"net_volume"`
	TransactionCount int             `json:"transaction_count"`
	GeneratedAt      time.Time       `json:"generated_at"`
}
