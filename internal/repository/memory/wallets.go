package memory

import (
	"context"
	"sort"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
)

func copyWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	if w.DefaultWithdrawalMethodID != nil {
		id := *w.DefaultWithdrawalMethodID
		c.DefaultWithdrawalMethodID = &id
	}
	return &c
}

func (v *view) GetWallet(ctx context.Context, id string) (*domain.Wallet, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	w, ok := v.s.wallets[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return copyWallet(w), nil
}

func (v *view) GetWalletByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.walletByOwner[ownerID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return copyWallet(v.s.wallets[id]), nil
}

func (v *view) CreateWallet(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if id, ok := v.s.walletByOwner[w.OwnerID]; ok {
		return copyWallet(v.s.wallets[id]), nil
	}

	now := v.s.now()
	stored := copyWallet(w)
	stored.CreatedAt, stored.UpdatedAt = now, now
	if stored.AutoWithdrawalSchedule == "" {
		stored.AutoWithdrawalSchedule = domain.ScheduleNone
	}
	v.s.wallets[stored.ID] = stored
	v.s.walletByOwner[stored.OwnerID] = stored.ID
	v.record(func() {
		delete(v.s.wallets, stored.ID)
		delete(v.s.walletByOwner, stored.OwnerID)
	})
	return copyWallet(stored), nil
}

func (v *view) LockWallets(ctx context.Context, ids ...string) (map[string]*domain.Wallet, error) {
	v.lockRows(ids)

	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make(map[string]*domain.Wallet, len(ids))
	for _, id := range ids {
		w, ok := v.s.wallets[id]
		if !ok {
			return nil, domain.ErrWalletNotFound
		}
		out[id] = copyWallet(w)
	}
	return out, nil
}

func (v *view) SaveBalances(ctx context.Context, w *domain.Wallet) error {
	if w.Balance.IsNegative() || w.PendingBalance.IsNegative() {
		// mirrors the CHECK constraints on the wallets table
		return domain.ErrInsufficientFunds
	}

	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.wallets[w.ID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	prevBalance, prevPending := stored.Balance, stored.PendingBalance
	stored.Balance = w.Balance
	stored.PendingBalance = w.PendingBalance
	stored.UpdatedAt = v.s.now()
	v.record(func() {
		stored.Balance = prevBalance
		stored.PendingBalance = prevPending
	})
	return nil
}

func (v *view) UpdateAutoWithdrawal(ctx context.Context, walletID string, s domain.AutoWithdrawalSettings) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	prev := *stored
	stored.AutoWithdrawalEnabled = s.Enabled
	stored.AutoWithdrawalSchedule = s.Schedule
	stored.AutoWithdrawalThreshold = s.Threshold
	if s.MethodID != nil {
		id := *s.MethodID
		stored.DefaultWithdrawalMethodID = &id
	}
	stored.UpdatedAt = v.s.now()
	v.record(func() {
		stored.AutoWithdrawalEnabled = prev.AutoWithdrawalEnabled
		stored.AutoWithdrawalSchedule = prev.AutoWithdrawalSchedule
		stored.AutoWithdrawalThreshold = prev.AutoWithdrawalThreshold
		stored.DefaultWithdrawalMethodID = prev.DefaultWithdrawalMethodID
	})
	return nil
}

func (v *view) ListAutoWithdrawalWallets(ctx context.Context) ([]*domain.Wallet, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*domain.Wallet
	for _, w := range v.s.wallets {
		if w.AutoWithdrawalEnabled && w.AutoWithdrawalSchedule != domain.ScheduleNone {
			out = append(out, copyWallet(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) ListWalletsWithClearable(ctx context.Context, now time.Time) ([]string, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for _, t := range v.s.txs {
		if clearable(t, now) && !seen[t.WalletID] {
			seen[t.WalletID] = true
			ids = append(ids, t.WalletID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func clearable(t *domain.Transaction, now time.Time) bool {
	return t.Status == domain.TxStatusPending && t.Amount.IsPositive() &&
		t.ClearedAt != nil && !t.ClearedAt.After(now)
}
