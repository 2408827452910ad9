package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const invoiceColumns = `
	id, invoice_number, sender_id, receiver_id, amount::text, fee_amount::text,
	tax_amount::text, total_amount::text, status, due_date, paid_at, items,
	currency, reference_id, created_at`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var (
		inv                     domain.Invoice
		amount, fee, tax, total string
		items                   []byte
	)
	err := row.Scan(
		&inv.ID,
		&inv.InvoiceNumber,
		&inv.SenderID,
		&inv.ReceiverID,
		&amount,
		&fee,
		&tax,
		&total,
		&inv.Status,
		&inv.DueDate,
		&inv.PaidAt,
		&items,
		&inv.Currency,
		&inv.ReferenceID,
		&inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	err = parseDecimals([]*decimal.Decimal{&inv.Amount, &inv.FeeAmount, &inv.TaxAmount, &inv.TotalAmount},
		amount, fee, tax, total)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &inv.Items); err != nil {
			return nil, fmt.Errorf("decode invoice items: %w", err)
		}
	}
	return &inv, nil
}

func (q *queries) InsertInvoice(ctx context.Context, inv *domain.Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("encode invoice items: %w", err)
	}

	query := `
		INSERT INTO invoices (
			id, invoice_number, sender_id, receiver_id, amount, fee_amount,
			tax_amount, total_amount, status, due_date, paid_at, items,
			currency, reference_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`
	err = q.db.QueryRow(ctx, query,
		inv.ID,
		inv.InvoiceNumber,
		inv.SenderID,
		inv.ReceiverID,
		inv.Amount.String(),
		inv.FeeAmount.String(),
		inv.TaxAmount.String(),
		inv.TotalAmount.String(),
		inv.Status,
		inv.DueDate,
		inv.PaidAt,
		items,
		inv.Currency,
		inv.ReferenceID,
	).Scan(&inv.CreatedAt)
	return mapUnique(err)
}

func (q *queries) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	inv, err := scanInvoice(q.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return inv, nil
}

func (q *queries) GetInvoiceByReference(ctx context.Context, referenceID string) (*domain.Invoice, error) {
	inv, err := scanInvoice(q.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE reference_id = $1`, referenceID))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return inv, nil
}

func (q *queries) ListInvoicesByUser(ctx context.Context, userID string) ([]*domain.Invoice, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (q *queries) MarkInvoicePaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE invoices SET status = 'PAID', paid_at = $2
		WHERE id = $1 AND status = 'ISSUED'
		  AND NOT EXISTS (
			SELECT 1 FROM transactions
			WHERE invoice_id = $1 AND status = 'PENDING' AND amount > 0
		  )
	`, id, paidAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) VoidInvoice(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `UPDATE invoices SET status = 'VOID' WHERE id = $1 AND status <> 'VOID'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}
