package memory

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
)

func (v *view) InsertContract(ctx context.Context, c *domain.EORContract) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, taken := v.s.contracts[c.ID]; taken {
		return domain.ErrDuplicateReference
	}
	c.CreatedAt = v.s.now()
	stored := *c
	v.s.contracts[c.ID] = &stored
	v.record(func() { delete(v.s.contracts, stored.ID) })
	return nil
}

func (v *view) GetContract(ctx context.Context, id string) (*domain.EORContract, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.contracts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (v *view) ListDueContracts(ctx context.Context, now time.Time) ([]*domain.EORContract, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*domain.EORContract
	for _, c := range v.s.contracts {
		if c.Status == domain.ContractActive && !c.NextPayrollAt.After(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) AdvanceContract(ctx context.Context, id string, next time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.contracts[id]
	if !ok {
		return domain.ErrNotFound
	}
	prev := c.NextPayrollAt
	c.NextPayrollAt = next
	v.record(func() { c.NextPayrollAt = prev })
	return nil
}

func (v *view) ListActiveBenefits(ctx context.Context, employeeID string) ([]*domain.BenefitEnrollment, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*domain.BenefitEnrollment
	for _, b := range v.s.benefits {
		if b.EmployeeID == employeeID && b.Active {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) InsertBenefit(ctx context.Context, b *domain.BenefitEnrollment) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, taken := v.s.benefits[b.ID]; taken {
		return domain.ErrDuplicateReference
	}
	stored := *b
	v.s.benefits[b.ID] = &stored
	v.record(func() { delete(v.s.benefits, stored.ID) })
	return nil
}

func (v *view) GetTaxSetting(ctx context.Context, jurisdiction string) (*domain.TaxSetting, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.taxes[jurisdiction]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (v *view) UpsertTaxSetting(ctx context.Context, s *domain.TaxSetting) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	prev, existed := v.s.taxes[s.Jurisdiction]
	stored := *s
	v.s.taxes[s.Jurisdiction] = &stored
	v.record(func() {
		if existed {
			v.s.taxes[s.Jurisdiction] = prev
		} else {
			delete(v.s.taxes, s.Jurisdiction)
		}
	})
	return nil
}

func (v *view) GetPayrollRecord(ctx context.Context, contractID, period string) (*domain.PayrollRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.payroll[payrollKey{contractID, period}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (v *view) InsertPayrollRecord(ctx context.Context, r *domain.PayrollRecord) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := payrollKey{r.ContractID, r.Period}
	if _, taken := v.s.payroll[key]; taken {
		return domain.ErrDuplicateReference
	}
	r.CreatedAt = v.s.now()
	stored := *r
	v.s.payroll[key] = &stored
	v.record(func() { delete(v.s.payroll, key) })
	return nil
}

func (v *view) ListPayrollRecords(ctx context.Context, contractID string) ([]*domain.PayrollRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*domain.PayrollRecord
	for _, r := range v.s.payroll {
		if r.ContractID == contractID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	return out, nil
}

// copySaga deep-copies through JSON so callers never share step slices or legs.
func copySaga(s *domain.Saga) (*domain.Saga, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var cp domain.Saga
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	if err := cp.Plan.Debit.Unpack(); err != nil {
		return nil, err
	}
	for i := range cp.Plan.Credits {
		if err := cp.Plan.Credits[i].Unpack(); err != nil {
			return nil, err
		}
	}
	return &cp, nil
}

func packSaga(s *domain.Saga) error {
	if err := s.Plan.Debit.Pack(); err != nil {
		return err
	}
	for i := range s.Plan.Credits {
		if err := s.Plan.Credits[i].Pack(); err != nil {
			return err
		}
	}
	return nil
}

func (v *view) InsertSaga(ctx context.Context, s *domain.Saga) error {
	if err := packSaga(s); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, taken := v.s.sagaByRef[s.ReferenceID]; taken {
		return domain.ErrDuplicateReference
	}
	now := v.s.now()
	s.CreatedAt, s.UpdatedAt = now, now
	stored, err := copySaga(s)
	if err != nil {
		return err
	}
	v.s.sagas[s.ID] = stored
	v.s.sagaByRef[s.ReferenceID] = s.ID
	v.record(func() {
		delete(v.s.sagas, stored.ID)
		delete(v.s.sagaByRef, stored.ReferenceID)
	})
	return nil
}

func (v *view) GetSagaByReference(ctx context.Context, referenceID string) (*domain.Saga, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.sagaByRef[referenceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copySaga(v.s.sagas[id])
}

func (v *view) UpdateSaga(ctx context.Context, s *domain.Saga) error {
	if err := packSaga(s); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	prev, ok := v.s.sagas[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	next, err := copySaga(s)
	if err != nil {
		return err
	}
	next.Plan = prev.Plan
	next.CreatedAt = prev.CreatedAt
	next.UpdatedAt = v.s.now()
	v.s.sagas[s.ID] = next
	v.record(func() { v.s.sagas[s.ID] = prev })
	return nil
}

func (v *view) ListStaleSagas(ctx context.Context, before time.Time) ([]*domain.Saga, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*domain.Saga
	for _, s := range v.s.sagas {
		if s.State == domain.SagaRunning && s.UpdatedAt.Before(before) {
			cp, err := copySaga(s)
			if err != nil {
				return nil, err
			}
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (v *view) InsertAuditRecord(ctx context.Context, r *domain.AuditRecord) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, taken := v.s.audits[r.ID]; taken {
		return domain.ErrDuplicateReference
	}
	r.CreatedAt = v.s.now()
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var stored domain.AuditRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return err
	}
	v.s.audits[r.ID] = &stored
	v.record(func() { delete(v.s.audits, stored.ID) })
	return nil
}

func (v *view) GetAuditRecord(ctx context.Context, id string) (*domain.AuditRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.audits[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (v *view) AcquireJobLock(ctx context.Context, job domain.JobName, owner string, now time.Time, ttl time.Duration) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	cur, ok := v.s.jobLocks[job]
	if ok && cur.Owner != "" && cur.ExpiresAt.After(now) {
		return false, nil
	}
	v.s.jobLocks[job] = domain.JobLock{Job: job, Owner: owner, LockedAt: now, ExpiresAt: now.Add(ttl)}
	v.record(func() {
		if ok {
			v.s.jobLocks[job] = cur
		} else {
			delete(v.s.jobLocks, job)
		}
	})
	return true, nil
}

func (v *view) ReleaseJobLock(ctx context.Context, job domain.JobName, owner string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	cur, ok := v.s.jobLocks[job]
	if !ok || cur.Owner != owner {
		return nil
	}
	v.s.jobLocks[job] = domain.JobLock{Job: job, LockedAt: cur.LockedAt, ExpiresAt: cur.LockedAt}
	v.record(func() { v.s.jobLocks[job] = cur })
	return nil
}
