package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `
	id, wallet_id, amount::text, type, status, reference_id, description,
	fee_amount::text, tax_amount::text, invoice_id, metadata, cleared_at, created_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t                domain.Transaction
		amount, fee, tax string
		metadata         []byte
	)
	err := row.Scan(
		&t.ID,
		&t.WalletID,
		&amount,
		&t.Type,
		&t.Status,
		&t.ReferenceID,
		&t.Description,
		&fee,
		&tax,
		&t.InvoiceID,
		&metadata,
		&t.ClearedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := parseDecimals([]*decimal.Decimal{&t.Amount, &t.FeeAmount, &t.TaxAmount}, amount, fee, tax); err != nil {
		return nil, err
	}
	if t.Metadata, err = domain.DecodeMetadata(t.Type, metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *queries) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	metadata, err := domain.EncodeMetadata(t.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (
			id, wallet_id, amount, type, status, reference_id, description,
			fee_amount, tax_amount, invoice_id, metadata, cleared_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err = q.db.QueryRow(ctx, query,
		t.ID,
		t.WalletID,
		t.Amount.String(),
		t.Type,
		t.Status,
		t.ReferenceID,
		t.Description,
		t.FeeAmount.String(),
		t.TaxAmount.String(),
		t.InvoiceID,
		metadata,
		t.ClearedAt,
	).Scan(&t.CreatedAt)
	return mapUnique(err)
}

func (q *queries) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return t, nil
}

func (q *queries) GetTransactionByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference_id = $1`, referenceID))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return t, nil
}

func (q *queries) ListTransactionsByReference(ctx context.Context, referenceID string) ([]*domain.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE reference_id = $1 OR starts_with(reference_id, $1 || ':')
		ORDER BY created_at, id
	`, referenceID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (q *queries) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, error) {
	f.Normalize()

	conds := []string{"wallet_id = $1"}
	args := []any{f.WalletID}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, f.Limit, f.Offset)

	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, transactionColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (q *queries) UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus, clearedAt *time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions
		SET status = $2, cleared_at = COALESCE($3, cleared_at)
		WHERE id = $1 AND status = 'PENDING'
	`, id, status, clearedAt)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidStatusTransition
	}
	return nil
}

func (q *queries) ListClearable(ctx context.Context, walletID string, now time.Time) ([]*domain.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE wallet_id = $1 AND status = 'PENDING' AND amount > 0
		  AND cleared_at IS NOT NULL AND cleared_at <= $2
		ORDER BY cleared_at, id
	`, walletID, now)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}
