package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
)

func copyHold(h *domain.EscrowHold) *domain.EscrowHold {
	c := *h
	if h.Release != nil {
		r := *h.Release
		if h.Release.FreelancerPercent != nil {
			pct := *h.Release.FreelancerPercent
			r.FreelancerPercent = &pct
		}
		c.Release = &r
	}
	return &c
}

func (v *view) InsertEscrowHold(ctx context.Context, h *domain.EscrowHold) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := [2]string{h.ContractID, h.MilestoneID}
	if _, taken := v.s.holdByMilestone[key]; taken {
		return domain.ErrDuplicateReference
	}
	if _, taken := v.s.holds[h.ID]; taken {
		return domain.ErrDuplicateReference
	}
	h.CreatedAt = v.s.now()
	h.UpdatedAt = h.CreatedAt
	v.s.holds[h.ID] = copyHold(h)
	v.s.holdByMilestone[key] = h.ID
	v.record(func() {
		delete(v.s.holds, h.ID)
		delete(v.s.holdByMilestone, key)
	})
	return nil
}

func (v *view) GetEscrowHold(ctx context.Context, id string) (*domain.EscrowHold, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	h, ok := v.s.holds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyHold(h), nil
}

func (v *view) GetEscrowHoldByMilestone(ctx context.Context, contractID, milestoneID string) (*domain.EscrowHold, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.holdByMilestone[[2]string{contractID, milestoneID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyHold(v.s.holds[id]), nil
}

func (v *view) ListEscrowHolds(ctx context.Context, contractID string) ([]*domain.EscrowHold, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*domain.EscrowHold
	for _, h := range v.s.holds {
		if h.ContractID == contractID {
			out = append(out, copyHold(h))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) UpdateEscrowHold(ctx context.Context, h *domain.EscrowHold, from domain.EscrowStatus) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	prev, ok := v.s.holds[h.ID]
	if !ok || prev.Status != from {
		return fmt.Errorf("hold %s is not %s: %w", h.ID, from, domain.ErrEscrowStateConflict)
	}
	next := copyHold(h)
	next.ContractID, next.MilestoneID = prev.ContractID, prev.MilestoneID
	next.PayerID, next.Amount, next.CostCenter = prev.PayerID, prev.Amount, prev.CostCenter
	next.CreatedAt = prev.CreatedAt
	next.UpdatedAt = v.s.now()
	h.UpdatedAt = next.UpdatedAt
	v.s.holds[h.ID] = next
	v.record(func() { v.s.holds[h.ID] = prev })
	return nil
}
