// Package memory is an in-process ledger store used for local runs and tests.
// Wallet row locks are real mutexes held until the unit of work ends, and a
// failed unit of work is rolled back from an undo log. Readers outside a unit
// of work may observe writes that are later rolled back.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
)

type payrollKey struct {
	contractID string
	period     string
}

type Store struct {
	*view

	mu sync.Mutex

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	seq int64

	wallets       map[string]*domain.Wallet
	walletByOwner map[string]string

	txs     map[string]*domain.Transaction
	txByRef map[string]string
	txSeq   map[string]int64

	invoices     map[string]*domain.Invoice
	invoiceByRef map[string]string
	invoiceSeq   map[string]int64

	holds           map[string]*domain.EscrowHold
	holdByMilestone map[[2]string]string

	methods map[string]*domain.WithdrawalMethod
	subs    map[string]*domain.Subscription

	contracts map[string]*domain.EORContract
	benefits  map[string]*domain.BenefitEnrollment
	taxes     map[string]*domain.TaxSetting
	payroll   map[payrollKey]*domain.PayrollRecord

	sagas     map[string]*domain.Saga
	sagaByRef map[string]string

	audits   map[string]*domain.AuditRecord
	jobLocks map[domain.JobName]domain.JobLock

	now func() time.Time
}

func NewStore() *Store {
	s := &Store{
		locks:           make(map[string]*sync.Mutex),
		wallets:         make(map[string]*domain.Wallet),
		walletByOwner:   make(map[string]string),
		txs:             make(map[string]*domain.Transaction),
		txByRef:         make(map[string]string),
		txSeq:           make(map[string]int64),
		invoices:        make(map[string]*domain.Invoice),
		invoiceByRef:    make(map[string]string),
		invoiceSeq:      make(map[string]int64),
		holds:           make(map[string]*domain.EscrowHold),
		holdByMilestone: make(map[[2]string]string),
		methods:         make(map[string]*domain.WithdrawalMethod),
		subs:            make(map[string]*domain.Subscription),
		contracts:       make(map[string]*domain.EORContract),
		benefits:        make(map[string]*domain.BenefitEnrollment),
		taxes:           make(map[string]*domain.TaxSetting),
		payroll:         make(map[payrollKey]*domain.PayrollRecord),
		sagas:           make(map[string]*domain.Saga),
		sagaByRef:       make(map[string]string),
		audits:          make(map[string]*domain.AuditRecord),
		jobLocks:        make(map[domain.JobName]domain.JobLock),
		now:             time.Now,
	}
	s.view = &view{s: s}
	return s
}

// SetClock overrides the timestamp source for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

var _ repository.Store = (*Store)(nil)

// unit is one unit of work: the wallet locks it holds and how to undo its writes.
type unit struct {
	held  map[string]*sync.Mutex
	order []string
	undo  []func()
}

// view runs queries against the store, optionally inside a unit of work.
type view struct {
	s *Store
	u *unit
}

func (s *Store) WithinTx(ctx context.Context, fn func(q repository.Queries) error) (err error) {
	u := &unit{held: make(map[string]*sync.Mutex)}
	defer func() {
		if r := recover(); r != nil {
			s.rollback(u)
			s.release(u)
			panic(r)
		}
		if err != nil {
			s.rollback(u)
		}
		s.release(u)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&view{s: s, u: u})
}

func (s *Store) rollback(u *unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
}

func (s *Store) release(u *unit) {
	for i := len(u.order) - 1; i >= 0; i-- {
		u.held[u.order[i]].Unlock()
	}
	u.held = nil
	u.order = nil
}

func (s *Store) rowLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// record registers an undo step. Callers hold s.mu.
func (v *view) record(fn func()) {
	if v.u != nil {
		v.u.undo = append(v.u.undo, fn)
	}
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// lockRows acquires row locks in ascending id order for the unit of work.
func (v *view) lockRows(ids []string) {
	if v.u == nil {
		return
	}
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)
	for _, id := range ordered {
		if _, ok := v.u.held[id]; ok {
			continue
		}
		l := v.s.rowLock(id)
		l.Lock()
		v.u.held[id] = l
		v.u.order = append(v.u.order, id)
	}
}
