package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/config"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/pub"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Clock supplies the current time. Jobs pass their own now instead.
type Clock func() time.Time

const idempotencyNamespace = "idempotency"

type direction string

const (
	credit direction = "credit"
	debit  direction = "debit"
)

// Ledger holds what every money-moving usecase shares: the store, ledger
// settings, the audit recorder and the event fan-out.
type Ledger struct {
	store  repository.Store
	cfg    config.LedgerConfig
	audit  *audit.Recorder
	events *pub.LedgerEventPublisher
	cache  *pub.Cache
	now    Clock
	logger *zap.Logger
}

// NewLedger wires the shared ledger core. events and cache may be nil.
func NewLedger(store repository.Store, cfg config.LedgerConfig, recorder *audit.Recorder, events *pub.LedgerEventPublisher, cache *pub.Cache, now Clock, logger *zap.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store:  store,
		cfg:    cfg,
		audit:  recorder,
		events: events,
		cache:  cache,
		now:    now,
		logger: logger,
	}
}

// posting is the committed result of one entry.
type posting struct {
	tx     *domain.Transaction
	wallet *domain.Wallet
	replay bool
}

// validateEntry rejects malformed entries before any lock is taken.
func validateEntry(e domain.Entry) error {
	if e.WalletID == "" || e.ReferenceID == "" {
		return fmt.Errorf("%w: wallet and reference are required", domain.ErrInvalidRequest)
	}
	if !e.Amount.IsPositive() || !e.Amount.Equal(e.Amount.Round(2)) {
		return fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, e.Amount.String())
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidRequest, e.Type)
	}
	return domain.CheckMetadata(e.Type, e.Metadata)
}

// checkReference rejects caller references in the namespace of derived
// references, which the ledger builds as "<reference>:<step>".
func checkReference(ref string) error {
	if strings.Contains(ref, ":") {
		return fmt.Errorf("%w: reference %q must not contain ':'", domain.ErrInvalidRequest, ref)
	}
	return nil
}

func signed(dir direction, amount decimal.Decimal) decimal.Decimal {
	if dir == debit {
		return amount.Neg()
	}
	return amount
}

// sameEntry reports whether t is the stored result of posting e.
func sameEntry(t *domain.Transaction, dir direction, e domain.Entry) bool {
	return t.WalletID == e.WalletID &&
		t.Type == e.Type &&
		t.Amount.Equal(signed(dir, e.Amount)) &&
		t.Status != domain.TxStatusFailed
}

// post applies e to its wallet within q: row lock, balance check, balance
// write and transaction insert. An entry whose reference was already posted
// with the same effect is returned as a replay without touching the balance.
func post(ctx context.Context, q repository.Queries, dir direction, e domain.Entry, now time.Time) (*posting, error) {
	if _, err := q.LockWallets(ctx, e.WalletID); err != nil {
		return nil, err
	}

	existing, err := q.GetTransactionByReference(ctx, e.ReferenceID)
	switch {
	case err == nil:
		if !sameEntry(existing, dir, e) {
			return nil, fmt.Errorf("reference %s: %w", e.ReferenceID, domain.ErrDuplicateReference)
		}
		w, err := q.GetWallet(ctx, e.WalletID)
		if err != nil {
			return nil, err
		}
		return &posting{tx: existing, wallet: w, replay: true}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	if _, err := clearMatured(ctx, q, e.WalletID, now); err != nil {
		return nil, err
	}
	locked, err := q.LockWallets(ctx, e.WalletID)
	if err != nil {
		return nil, err
	}
	w := locked[e.WalletID]

	amount := signed(dir, e.Amount)
	status := domain.TxStatusCompleted
	clearedAt := &now

	switch {
	case dir == credit && e.HoldUntil != nil && e.HoldUntil.After(now):
		if err := w.ApplyPending(amount); err != nil {
			return nil, err
		}
		status = domain.TxStatusPending
		hold := *e.HoldUntil
		clearedAt = &hold
	default:
		if err := w.Apply(amount); err != nil {
			return nil, err
		}
		if dir == debit && e.AwaitSettlement {
			status = domain.TxStatusPending
			clearedAt = nil
		}
	}

	if err := q.SaveBalances(ctx, w); err != nil {
		return nil, err
	}

	t := &domain.Transaction{
		ID:          id.New(),
		WalletID:    e.WalletID,
		Amount:      amount,
		Type:        e.Type,
		Status:      status,
		ReferenceID: e.ReferenceID,
		Description: e.Description,
		FeeAmount:   e.FeeAmount,
		TaxAmount:   e.TaxAmount,
		InvoiceID:   e.InvoiceID,
		Metadata:    e.Metadata,
		ClearedAt:   clearedAt,
	}
	if err := q.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}
	return &posting{tx: t, wallet: w}, nil
}

// settle moves a PENDING transaction to next and applies the balance effect
// that the transition implies. The wallet row is locked first.
func settle(ctx context.Context, q repository.Queries, t *domain.Transaction, next domain.TransactionStatus, now time.Time) (*domain.Wallet, error) {
	locked, err := q.LockWallets(ctx, t.WalletID)
	if err != nil {
		return nil, err
	}
	current, err := q.GetTransaction(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(next) {
		return nil, fmt.Errorf("%s -> %s: %w", current.Status, next, domain.ErrInvalidStatusTransition)
	}

	w := locked[t.WalletID]
	amount := current.Amount
	switch {
	case amount.IsPositive() && next == domain.TxStatusCompleted:
		// held credit clears into the available balance
		if err := w.ApplyPending(amount.Neg()); err != nil {
			return nil, err
		}
		if err := w.Apply(amount); err != nil {
			return nil, err
		}
	case amount.IsPositive() && next == domain.TxStatusFailed:
		if err := w.ApplyPending(amount.Neg()); err != nil {
			return nil, err
		}
	case amount.IsNegative() && next == domain.TxStatusFailed:
		// unconfirmed debit is given back
		if err := w.Apply(amount.Neg()); err != nil {
			return nil, err
		}
	}

	if err := q.SaveBalances(ctx, w); err != nil {
		return nil, err
	}
	if err := q.UpdateTransactionStatus(ctx, current.ID, next, &now); err != nil {
		return nil, err
	}
	if amount.IsPositive() && next == domain.TxStatusCompleted && current.InvoiceID != nil {
		// the last held credit of an invoice settles it
		if _, err := q.MarkInvoicePaid(ctx, *current.InvoiceID, now); err != nil {
			return nil, fmt.Errorf("mark invoice %s paid: %w", *current.InvoiceID, err)
		}
	}
	t.Status = next
	t.ClearedAt = &now
	return w, nil
}

// clearMatured releases every held credit of walletID whose hold has expired.
func clearMatured(ctx context.Context, q repository.Queries, walletID string, now time.Time) ([]*domain.Transaction, error) {
	due, err := q.ListClearable(ctx, walletID, now)
	if err != nil {
		return nil, err
	}
	for _, t := range due {
		if _, err := settle(ctx, q, t, domain.TxStatusCompleted, now); err != nil {
			return nil, fmt.Errorf("clear %s: %w", t.ID, err)
		}
	}
	if len(due) > 0 {
		fundsClearedTotal.Add(float64(len(due)))
	}
	return due, nil
}

// isRejection reports errors that mean the entry was refused and nothing moved.
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrInvalidRequest) ||
		errors.Is(err, domain.ErrWalletNotFound) ||
		errors.Is(err, domain.ErrDuplicateReference)
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}

// ===== SHARED OPERATIONS =====

// Wallet returns the wallet of ownerID, creating an empty one on first access.
func (l *Ledger) Wallet(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidRequest)
	}
	w, err := l.store.GetWalletByOwner(ctx, ownerID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}

	w, err = l.store.CreateWallet(ctx, &domain.Wallet{
		ID:                     id.New(),
		OwnerID:                ownerID,
		Currency:               l.cfg.Currency,
		AutoWithdrawalSchedule: domain.ScheduleNone,
	})
	if err != nil {
		return nil, fmt.Errorf("provision wallet for %s: %w", ownerID, err)
	}
	l.logger.Info("wallet provisioned", zap.String("owner_id", ownerID), zap.String("wallet_id", w.ID))
	return w, nil
}

func (l *Ledger) platformWallet(ctx context.Context) (*domain.Wallet, error) {
	return l.Wallet(ctx, l.cfg.PlatformOwnerID)
}

// apply validates and posts one entry in its own unit of work.
func (l *Ledger) apply(ctx context.Context, dir direction, e domain.Entry) (*posting, error) {
	if err := validateEntry(e); err != nil {
		ledgerEntriesTotal.WithLabelValues(string(e.Type), "rejected").Inc()
		return nil, err
	}

	start := time.Now()
	defer func() {
		ledgerPostDuration.WithLabelValues(string(dir)).Observe(time.Since(start).Seconds())
	}()

	if p := l.remembered(ctx, dir, e); p != nil {
		ledgerEntriesTotal.WithLabelValues(string(e.Type), "replayed").Inc()
		return p, nil
	}

	var p *posting
	err := l.store.WithinTx(ctx, func(q repository.Queries) error {
		var err error
		p, err = post(ctx, q, dir, e, l.now())
		return err
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		// a concurrent caller on another wallet may have won the insert
		if existing, lerr := l.store.GetTransactionByReference(ctx, e.ReferenceID); lerr == nil && sameEntry(existing, dir, e) {
			w, werr := l.store.GetWallet(ctx, existing.WalletID)
			if werr == nil {
				p, err = &posting{tx: existing, wallet: w, replay: true}, nil
			}
		}
	}
	if err != nil {
		outcome := "error"
		if isRejection(err) {
			outcome = "rejected"
		}
		ledgerEntriesTotal.WithLabelValues(string(e.Type), outcome).Inc()
		return nil, err
	}

	l.committed(ctx, p)
	return p, nil
}

// remembered resolves a replay from the idempotency cache without taking locks.
func (l *Ledger) remembered(ctx context.Context, dir direction, e domain.Entry) *posting {
	if l.cache == nil {
		return nil
	}
	txID, err := l.cache.Get(ctx, idempotencyNamespace, e.ReferenceID)
	if err != nil {
		if !errors.Is(err, pub.ErrCacheMiss) {
			l.logger.Warn("idempotency cache read failed", zap.String("reference_id", e.ReferenceID), zap.Error(err))
		}
		return nil
	}
	t, err := l.store.GetTransaction(ctx, txID)
	if err != nil || !sameEntry(t, dir, e) {
		return nil
	}
	w, err := l.store.GetWallet(ctx, t.WalletID)
	if err != nil {
		return nil
	}
	return &posting{tx: t, wallet: w, replay: true}
}

// committed runs the after-commit side effects of postings: metrics, the
// idempotency cache and ledger events.
func (l *Ledger) committed(ctx context.Context, ps ...*posting) {
	for _, p := range ps {
		if p == nil {
			continue
		}
		if p.replay {
			ledgerEntriesTotal.WithLabelValues(string(p.tx.Type), "replayed").Inc()
			continue
		}
		ledgerEntriesTotal.WithLabelValues(string(p.tx.Type), "posted").Inc()

		if l.cache != nil {
			if err := l.cache.Set(ctx, idempotencyNamespace, p.tx.ReferenceID, p.tx.ID, l.cfg.IdempotencyTTL); err != nil {
				l.logger.Warn("idempotency cache write failed", zap.String("reference_id", p.tx.ReferenceID), zap.Error(err))
			}
		}
		if l.events != nil {
			err := l.events.PublishTransactionCompleted(ctx, p.wallet.OwnerID, p.wallet.ID, p.tx.ID,
				p.tx.ReferenceID, string(p.tx.Type), p.tx.Amount, p.tx.FeeAmount, p.wallet.Balance, p.wallet.Currency)
			if err != nil {
				l.logger.Warn("failed to publish ledger event", zap.String("transaction_id", p.tx.ID), zap.Error(err))
			}
		}
	}
}

// forget drops a cached reference whose transaction changed state.
func (l *Ledger) forget(ctx context.Context, referenceID string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, idempotencyNamespace, referenceID); err != nil {
		l.logger.Warn("idempotency cache delete failed", zap.String("reference_id", referenceID), zap.Error(err))
	}
}

func (l *Ledger) failed(ctx context.Context, ownerID string, e domain.Entry, cause error) {
	if l.events == nil {
		return
	}
	if err := l.events.PublishTransactionFailed(ctx, ownerID, e.ReferenceID, string(e.Type), e.Amount, cause.Error()); err != nil {
		l.logger.Warn("failed to publish ledger event", zap.String("reference_id", e.ReferenceID), zap.Error(err))
	}
}

func amountPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
