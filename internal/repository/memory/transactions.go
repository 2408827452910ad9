package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
)

func copyTx(t *domain.Transaction) *domain.Transaction {
	c := *t
	if t.ClearedAt != nil {
		at := *t.ClearedAt
		c.ClearedAt = &at
	}
	if t.InvoiceID != nil {
		id := *t.InvoiceID
		c.InvoiceID = &id
	}
	return &c
}

func (v *view) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, taken := v.s.txByRef[t.ReferenceID]; taken {
		return domain.ErrDuplicateReference
	}
	if _, taken := v.s.txs[t.ID]; taken {
		return domain.ErrDuplicateReference
	}

	t.CreatedAt = v.s.now()
	stored := copyTx(t)
	v.s.txs[t.ID] = stored
	v.s.txByRef[t.ReferenceID] = t.ID
	v.s.txSeq[t.ID] = v.s.nextSeq()
	v.record(func() {
		delete(v.s.txs, t.ID)
		delete(v.s.txByRef, stored.ReferenceID)
		delete(v.s.txSeq, t.ID)
	})
	return nil
}

func (v *view) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.txs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyTx(t), nil
}

func (v *view) GetTransactionByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.txByRef[referenceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyTx(v.s.txs[id]), nil
}

// sorted returns matching transactions in insertion order.
func (v *view) sorted(match func(*domain.Transaction) bool) []*domain.Transaction {
	var out []*domain.Transaction
	for _, t := range v.s.txs {
		if match(t) {
			out = append(out, copyTx(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return v.s.txSeq[out[i].ID] < v.s.txSeq[out[j].ID] })
	return out
}

func (v *view) ListTransactionsByReference(ctx context.Context, referenceID string) ([]*domain.Transaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	prefix := referenceID + ":"
	return v.sorted(func(t *domain.Transaction) bool {
		return t.ReferenceID == referenceID || strings.HasPrefix(t.ReferenceID, prefix)
	}), nil
}

func (v *view) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, error) {
	f.Normalize()

	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	all := v.sorted(func(t *domain.Transaction) bool {
		if t.WalletID != f.WalletID {
			return false
		}
		if f.Type != "" && t.Type != f.Type {
			return false
		}
		if f.Status != "" && t.Status != f.Status {
			return false
		}
		return true
	})

	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if f.Offset >= len(all) {
		return nil, nil
	}
	end := f.Offset + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], nil
}

func (v *view) UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus, clearedAt *time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.txs[id]
	if !ok || t.Status != domain.TxStatusPending {
		return domain.ErrInvalidStatusTransition
	}
	prevStatus, prevCleared := t.Status, t.ClearedAt
	t.Status = status
	if clearedAt != nil {
		at := *clearedAt
		t.ClearedAt = &at
	}
	v.record(func() {
		t.Status = prevStatus
		t.ClearedAt = prevCleared
	})
	return nil
}

func (v *view) ListClearable(ctx context.Context, walletID string, now time.Time) ([]*domain.Transaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.sorted(func(t *domain.Transaction) bool {
		return t.WalletID == walletID && clearable(t, now)
	}), nil
}
