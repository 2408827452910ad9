package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const walletColumns = `
	id, owner_id, balance::text, pending_balance::text, currency,
	auto_withdrawal_enabled, auto_withdrawal_schedule, auto_withdrawal_threshold::text,
	default_withdrawal_method_id, created_at, updated_at`

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w                           domain.Wallet
		balance, pending, threshold string
	)
	err := row.Scan(
		&w.ID,
		&w.OwnerID,
		&balance,
		&pending,
		&w.Currency,
		&w.AutoWithdrawalEnabled,
		&w.AutoWithdrawalSchedule,
		&threshold,
		&w.DefaultWithdrawalMethodID,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	err = parseDecimals([]*decimal.Decimal{&w.Balance, &w.PendingBalance, &w.AutoWithdrawalThreshold},
		balance, pending, threshold)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (q *queries) GetWallet(ctx context.Context, id string) (*domain.Wallet, error) {
	w, err := scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrWalletNotFound)
	}
	return w, nil
}

func (q *queries) GetWalletByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	w, err := scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, ownerID))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrWalletNotFound)
	}
	return w, nil
}

func (q *queries) CreateWallet(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error) {
	query := `
		INSERT INTO wallets (
			id, owner_id, balance, pending_balance, currency,
			auto_withdrawal_enabled, auto_withdrawal_schedule, auto_withdrawal_threshold
		) VALUES ($1, $2, 0, 0, $3, false, $4, 0)
		ON CONFLICT (owner_id) DO NOTHING
	`
	if _, err := q.db.Exec(ctx, query, w.ID, w.OwnerID, w.Currency, domain.ScheduleNone); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return q.GetWalletByOwner(ctx, w.OwnerID)
}

func (q *queries) LockWallets(ctx context.Context, ids ...string) (map[string]*domain.Wallet, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	out := make(map[string]*domain.Wallet, len(ordered))
	for _, id := range ordered {
		if _, seen := out[id]; seen {
			continue
		}
		w, err := scanWallet(q.db.QueryRow(ctx,
			`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return nil, mapNotFound(err, domain.ErrWalletNotFound)
		}
		out[id] = w
	}
	return out, nil
}

func (q *queries) SaveBalances(ctx context.Context, w *domain.Wallet) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE wallets
		SET balance = $2, pending_balance = $3, updated_at = NOW()
		WHERE id = $1
	`, w.ID, w.Balance.String(), w.PendingBalance.String())
	if err != nil {
		return fmt.Errorf("save balances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

func (q *queries) UpdateAutoWithdrawal(ctx context.Context, walletID string, s domain.AutoWithdrawalSettings) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE wallets
		SET auto_withdrawal_enabled = $2,
		    auto_withdrawal_schedule = $3,
		    auto_withdrawal_threshold = $4,
		    default_withdrawal_method_id = COALESCE($5, default_withdrawal_method_id),
		    updated_at = NOW()
		WHERE id = $1
	`, walletID, s.Enabled, s.Schedule, s.Threshold.String(), s.MethodID)
	if err != nil {
		return fmt.Errorf("update auto withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

func (q *queries) ListAutoWithdrawalWallets(ctx context.Context) ([]*domain.Wallet, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE auto_withdrawal_enabled = true AND auto_withdrawal_schedule <> 'NONE'
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (q *queries) ListWalletsWithClearable(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT wallet_id FROM transactions
		WHERE status = 'PENDING' AND cleared_at IS NOT NULL AND cleared_at <= $1 AND amount > 0
		ORDER BY wallet_id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
