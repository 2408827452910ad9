// Package invoicepdf renders invoice documents.
package invoicepdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	pageMargin = 15.0
	lineHeight = 7.0
)

// Render lays out an A4 invoice: header, parties, line items and totals.
func Render(d *domain.InvoiceData) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("invoicepdf: nil invoice data")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetCreationDate(d.Date)
	pdf.SetTitle(d.InvoiceNumber, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "INVOICE", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, lineHeight, "Invoice #: "+d.InvoiceNumber, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineHeight, "Date: "+d.Date.UTC().Format("2006-01-02"), "", 1, "L", false, 0, "")
	if d.TransactionID != "" {
		pdf.CellFormat(0, lineHeight, "Transaction: "+d.TransactionID, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, lineHeight, "Status: "+d.Status, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(90, lineHeight, "From", "", 0, "L", false, 0, "")
	pdf.CellFormat(90, lineHeight, "To", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(90, lineHeight, orDash(d.From), "", 0, "L", false, 0, "")
	pdf.CellFormat(90, lineHeight, orDash(d.To), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(90, lineHeight, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, lineHeight, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, lineHeight, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, lineHeight, "Net", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, it := range d.Items {
		pdf.CellFormat(90, lineHeight, it.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, lineHeight, fmt.Sprintf("%d", it.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, lineHeight, money(it.UnitPrice, d.Currency), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, lineHeight, money(it.NetAmount, d.Currency), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	totals := []struct {
		label string
		value string
	}{
		{"Gross amount", money(d.TotalAmount, d.Currency)},
		{fmt.Sprintf("Platform fee (%s%%)", d.FeePercent.StringFixed(2)), money(d.FeeAmount, d.Currency)},
		{"Tax", money(d.TaxAmount, d.Currency)},
		{"Net amount", money(d.NetAmount, d.Currency)},
	}
	for i, row := range totals {
		if i == len(totals)-1 {
			pdf.SetFont("Helvetica", "B", 11)
		}
		pdf.CellFormat(145, lineHeight, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, lineHeight, row.value, "", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("invoicepdf: %w", err)
	}
	return buf.Bytes(), nil
}

func money(v decimal.Decimal, currency string) string {
	return v.StringFixed(2) + " " + currency
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
