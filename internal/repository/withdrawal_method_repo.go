package repository

import (
	"context"
	"fmt"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
)

const methodColumns = `
	id, user_id, type, provider, account_number, account_name,
	is_default, is_instant_capable, created_at`

func scanMethod(row pgx.Row) (*domain.WithdrawalMethod, error) {
	var m domain.WithdrawalMethod
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Type,
		&m.Provider,
		&m.AccountNumber,
		&m.AccountName,
		&m.IsDefault,
		&m.IsInstantCapable,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (q *queries) InsertWithdrawalMethod(ctx context.Context, m *domain.WithdrawalMethod) error {
	query := `
		INSERT INTO withdrawal_methods (
			id, user_id, type, provider, account_number, account_name,
			is_default, is_instant_capable
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := q.db.QueryRow(ctx, query,
		m.ID,
		m.UserID,
		m.Type,
		m.Provider,
		m.AccountNumber,
		m.AccountName,
		m.IsDefault,
		m.IsInstantCapable,
	).Scan(&m.CreatedAt)
	return mapUnique(err)
}

func (q *queries) GetWithdrawalMethod(ctx context.Context, id string) (*domain.WithdrawalMethod, error) {
	m, err := scanMethod(q.db.QueryRow(ctx, `SELECT `+methodColumns+` FROM withdrawal_methods WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return m, nil
}

func (q *queries) ListWithdrawalMethods(ctx context.Context, userID string) ([]*domain.WithdrawalMethod, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+methodColumns+` FROM withdrawal_methods
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []*domain.WithdrawalMethod
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func (q *queries) DeleteWithdrawalMethod(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM withdrawal_methods WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete withdrawal method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	// a wallet must not keep pointing at a removed method
	_, err = q.db.Exec(ctx, `
		UPDATE wallets SET default_withdrawal_method_id = NULL, updated_at = NOW()
		WHERE default_withdrawal_method_id = $1
	`, id)
	return err
}

func (q *queries) ClearDefaultMethods(ctx context.Context, userID string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE withdrawal_methods SET is_default = false
		WHERE user_id = $1 AND is_default = true
	`, userID)
	return err
}

func (q *queries) SetDefaultMethod(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `UPDATE withdrawal_methods SET is_default = true WHERE id = $1`, id)
	if err != nil {
		return mapUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	_, err = q.db.Exec(ctx, `
		UPDATE wallets w SET default_withdrawal_method_id = m.id, updated_at = NOW()
		FROM withdrawal_methods m
		WHERE m.id = $1 AND w.owner_id = m.user_id
	`, id)
	return err
}

func (q *queries) SetInstantCapable(ctx context.Context, id string, capable bool) error {
	tag, err := q.db.Exec(ctx, `UPDATE withdrawal_methods SET is_instant_capable = $2 WHERE id = $1`, id, capable)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
