package memory

import (
	"context"
	"sort"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
)

func (v *view) InsertInvoice(ctx context.Context, inv *domain.Invoice) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, taken := v.s.invoiceByRef[inv.ReferenceID]; taken {
		return domain.ErrDuplicateReference
	}
	inv.CreatedAt = v.s.now()
	stored := *inv
	stored.Items = append([]domain.InvoiceItem(nil), inv.Items...)
	v.s.invoices[inv.ID] = &stored
	v.s.invoiceByRef[inv.ReferenceID] = inv.ID
	v.s.invoiceSeq[inv.ID] = v.s.nextSeq()
	v.record(func() {
		delete(v.s.invoices, stored.ID)
		delete(v.s.invoiceByRef, stored.ReferenceID)
		delete(v.s.invoiceSeq, stored.ID)
	})
	return nil
}

func (v *view) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	inv, ok := v.s.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *inv
	return &c, nil
}

func (v *view) GetInvoiceByReference(ctx context.Context, referenceID string) (*domain.Invoice, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.invoiceByRef[referenceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *v.s.invoices[id]
	return &c, nil
}

func (v *view) ListInvoicesByUser(ctx context.Context, userID string) ([]*domain.Invoice, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*domain.Invoice
	for _, inv := range v.s.invoices {
		if inv.SenderID == userID || inv.ReceiverID == userID {
			c := *inv
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return v.s.invoiceSeq[out[i].ID] > v.s.invoiceSeq[out[j].ID]
	})
	return out, nil
}

func (v *view) MarkInvoicePaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	inv, ok := v.s.invoices[id]
	if !ok || inv.Status != domain.InvoiceIssued {
		return false, nil
	}
	for _, t := range v.s.txs {
		if t.InvoiceID != nil && *t.InvoiceID == id && t.Status == domain.TxStatusPending && t.Amount.IsPositive() {
			return false, nil
		}
	}
	prev := *inv
	at := paidAt
	inv.Status = domain.InvoicePaid
	inv.PaidAt = &at
	v.record(func() { *inv = prev })
	return true, nil
}

func (v *view) VoidInvoice(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	inv, ok := v.s.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	if inv.Status == domain.InvoiceVoid {
		return nil
	}
	prev := *inv
	inv.Status = domain.InvoiceVoid
	v.record(func() { *inv = prev })
	return nil
}

func (v *view) InsertWithdrawalMethod(ctx context.Context, m *domain.WithdrawalMethod) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, taken := v.s.methods[m.ID]; taken {
		return domain.ErrDuplicateReference
	}
	m.CreatedAt = v.s.now()
	stored := *m
	v.s.methods[m.ID] = &stored
	v.record(func() { delete(v.s.methods, stored.ID) })
	return nil
}

func (v *view) GetWithdrawalMethod(ctx context.Context, id string) (*domain.WithdrawalMethod, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	m, ok := v.s.methods[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (v *view) ListWithdrawalMethods(ctx context.Context, userID string) ([]*domain.WithdrawalMethod, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*domain.WithdrawalMethod
	for _, m := range v.s.methods {
		if m.UserID == userID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) DeleteWithdrawalMethod(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	m, ok := v.s.methods[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(v.s.methods, id)
	v.record(func() { v.s.methods[id] = m })

	for _, w := range v.s.wallets {
		if w.DefaultWithdrawalMethodID != nil && *w.DefaultWithdrawalMethodID == id {
			prev := w.DefaultWithdrawalMethodID
			w.DefaultWithdrawalMethodID = nil
			v.record(func() { w.DefaultWithdrawalMethodID = prev })
		}
	}
	return nil
}

func (v *view) ClearDefaultMethods(ctx context.Context, userID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, m := range v.s.methods {
		if m.UserID == userID && m.IsDefault {
			m.IsDefault = false
			v.record(func() { m.IsDefault = true })
		}
	}
	return nil
}

func (v *view) SetDefaultMethod(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	m, ok := v.s.methods[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, other := range v.s.methods {
		if other.UserID == m.UserID && other.IsDefault && other.ID != id {
			// mirrors the partial unique index on (user_id) WHERE is_default
			return domain.ErrDuplicateReference
		}
	}
	prev := m.IsDefault
	m.IsDefault = true
	v.record(func() { m.IsDefault = prev })

	if wid, ok := v.s.walletByOwner[m.UserID]; ok {
		w := v.s.wallets[wid]
		prevID := w.DefaultWithdrawalMethodID
		mid := m.ID
		w.DefaultWithdrawalMethodID = &mid
		v.record(func() { w.DefaultWithdrawalMethodID = prevID })
	}
	return nil
}

func (v *view) SetInstantCapable(ctx context.Context, id string, capable bool) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	m, ok := v.s.methods[id]
	if !ok {
		return domain.ErrNotFound
	}
	prev := m.IsInstantCapable
	m.IsInstantCapable = capable
	v.record(func() { m.IsInstantCapable = prev })
	return nil
}

func (v *view) InsertSubscription(ctx context.Context, s *domain.Subscription) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, taken := v.s.subs[s.ID]; taken {
		return domain.ErrDuplicateReference
	}
	now := v.s.now()
	s.CreatedAt, s.UpdatedAt = now, now
	stored := *s
	v.s.subs[s.ID] = &stored
	v.record(func() { delete(v.s.subs, stored.ID) })
	return nil
}

func (v *view) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	s, ok := v.s.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (v *view) listSubs(match func(*domain.Subscription) bool) []*domain.Subscription {
	var out []*domain.Subscription
	for _, s := range v.s.subs {
		if match(s) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextBillingDate.Equal(out[j].NextBillingDate) {
			return out[i].NextBillingDate.Before(out[j].NextBillingDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v *view) ListSubscriptions(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.listSubs(func(s *domain.Subscription) bool { return s.UserID == userID }), nil
}

func (v *view) ListDueSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.listSubs(func(s *domain.Subscription) bool {
		return s.Status == domain.SubscriptionActive && !s.NextBillingDate.After(now)
	}), nil
}

func (v *view) UpdateSubscription(ctx context.Context, s *domain.Subscription) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.subs[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	prev := *stored
	stored.Status = s.Status
	stored.NextBillingDate = s.NextBillingDate
	stored.LastChargedAt = s.LastChargedAt
	stored.UpdatedAt = v.s.now()
	v.record(func() { *stored = prev })
	return nil
}
