package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type reversalKind string

const (
	kindChargeback reversalKind = "chargeback"
	kindRefund     reversalKind = "refund"
)

type ReversalUsecase struct {
	*Ledger
}

func NewReversalUsecase(ledger *Ledger) *ReversalUsecase {
	return &ReversalUsecase{Ledger: ledger}
}

type ReversalResult struct {
	Original *domain.Transaction `json:"original"`
	Reversal *domain.Transaction `json:"reversal"`
	Wallet   *domain.Wallet      `json:"wallet"`
}

// Chargeback returns a completed payment to its payer, taking the money back
// from every wallet that received part of it.
func (uc *ReversalUsecase) Chargeback(ctx context.Context, txID, reason, actorID string) (*ReversalResult, error) {
	return uc.reverse(ctx, kindChargeback, txID, reason, actorID)
}

// Refund is a merchant-initiated reversal with the same money flow as a chargeback.
func (uc *ReversalUsecase) Refund(ctx context.Context, txID, reason, actorID string) (*ReversalResult, error) {
	return uc.reverse(ctx, kindRefund, txID, reason, actorID)
}

func (uc *ReversalUsecase) reverse(ctx context.Context, kind reversalKind, txID, reason, actorID string) (*ReversalResult, error) {
	orig, err := uc.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if err := uc.reversible(ctx, orig); err != nil {
		return nil, err
	}

	legs, err := uc.counterLegs(ctx, orig)
	if err != nil {
		return nil, err
	}
	platform, err := uc.platformWallet(ctx)
	if err != nil {
		return nil, err
	}

	amount := orig.Amount.Abs()
	covered := decimal.Zero
	ids := []string{orig.WalletID, platform.ID}
	for _, leg := range legs {
		covered = covered.Add(leg.Amount)
		ids = append(ids, leg.WalletID)
	}
	// the platform covers whatever the counter legs do not
	shortfall := amount.Sub(covered)
	if shortfall.IsNegative() {
		return nil, fmt.Errorf("%w: counter legs of %s exceed the payment", domain.ErrNotChargeable, orig.ID)
	}

	var (
		ps     []*posting
		failed []*domain.Transaction
		result *posting
	)
	err = uc.store.WithinTx(ctx, func(q repository.Queries) error {
		if _, err := q.LockWallets(ctx, ids...); err != nil {
			return err
		}
		now := uc.now()
		for _, leg := range legs {
			if _, err := clearMatured(ctx, q, leg.WalletID, now); err != nil {
				return err
			}
		}
		for i, leg := range legs {
			cur, err := q.GetTransaction(ctx, leg.ID)
			if err != nil {
				return err
			}
			legs[i], leg = cur, cur
			if leg.Status == domain.TxStatusPending {
				if _, err := settle(ctx, q, leg, domain.TxStatusFailed, now); err != nil {
					return err
				}
				failed = append(failed, leg)
				continue
			}
			p, err := post(ctx, q, debit, reversalEntry(kind, leg.WalletID, leg.Amount, leg.ReferenceID, orig, reason), now)
			if err != nil {
				return fmt.Errorf("take back %s: %w", leg.ReferenceID, err)
			}
			ps = append(ps, p)
		}
		if shortfall.IsPositive() {
			p, err := post(ctx, q, debit, reversalEntry(kind, platform.ID, shortfall, orig.ReferenceID+":funding", orig, reason), now)
			if err != nil {
				return fmt.Errorf("platform funding: %w", err)
			}
			ps = append(ps, p)
		}

		var err error
		result, err = post(ctx, q, credit, reversalEntry(kind, orig.WalletID, amount, orig.ReferenceID, orig, reason), now)
		if err != nil {
			return err
		}
		return voidInvoice(ctx, q, orig.InvoiceID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			return nil, uc.alreadyReversed(kind)
		}
		uc.logger.Warn("reversal failed",
			zap.String("kind", string(kind)),
			zap.String("transaction_id", orig.ID),
			zap.Error(err))
		return nil, err
	}

	for _, t := range failed {
		uc.forget(ctx, t.ReferenceID)
	}
	uc.committed(ctx, append(ps, result)...)

	event := domain.EventChargebackProcessed
	if kind == kindRefund {
		event = domain.EventRefundProcessed
	}
	uc.audit.Emit(ctx, audit.Entry{
		EventType:   event,
		ActorID:     actorID,
		Amount:      amountPtr(amount),
		ReferenceID: result.tx.ReferenceID,
		Metadata: map[string]interface{}{
			"originalTransactionId": orig.ID,
			"reason":                reason,
			"legs":                  len(legs),
			"platformFunded":        shortfall.String(),
		},
	})
	uc.logger.Info("payment reversed",
		zap.String("kind", string(kind)),
		zap.String("transaction_id", orig.ID),
		zap.String("amount", amount.String()))

	return &ReversalResult{Original: orig, Reversal: result.tx, Wallet: result.wallet}, nil
}

// reversible accepts completed PAYMENT and TRANSFER debits that were neither
// reversed before nor unwound by their settlement.
func (uc *ReversalUsecase) reversible(ctx context.Context, t *domain.Transaction) error {
	if !t.Amount.IsNegative() || t.Status != domain.TxStatusCompleted {
		return fmt.Errorf("%w: transaction %s is not a completed debit", domain.ErrNotChargeable, t.ID)
	}
	if t.Type != domain.TxPayment && t.Type != domain.TxTransfer {
		return fmt.Errorf("%w: %s transactions cannot be reversed", domain.ErrNotChargeable, t.Type)
	}

	for kind, sentinel := range map[reversalKind]error{
		kindChargeback: domain.ErrAlreadyChargedBack,
		kindRefund:     domain.ErrAlreadyRefunded,
	} {
		_, err := uc.store.GetTransactionByReference(ctx, t.ReferenceID+":"+string(kind))
		if err == nil {
			return sentinel
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	base := strings.TrimSuffix(t.ReferenceID, ":debit")
	if base != t.ReferenceID {
		_, err := uc.store.GetTransactionByReference(ctx, base+":compensate")
		if err == nil {
			return fmt.Errorf("%w: settlement %s was already unwound", domain.ErrNotChargeable, base)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return nil
}

// counterLegs returns the live credits that were funded by t.
func (uc *ReversalUsecase) counterLegs(ctx context.Context, t *domain.Transaction) ([]*domain.Transaction, error) {
	base := strings.TrimSuffix(t.ReferenceID, ":debit")
	all, err := uc.store.ListTransactionsByReference(ctx, base)
	if err != nil {
		return nil, err
	}
	var legs []*domain.Transaction
	for _, leg := range all {
		if leg.ID == t.ID || !leg.Amount.IsPositive() || leg.Status == domain.TxStatusFailed {
			continue
		}
		if leg.Type == domain.TxRefund || leg.Type == domain.TxChargeback {
			continue
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

func (uc *ReversalUsecase) alreadyReversed(kind reversalKind) error {
	if kind == kindRefund {
		return domain.ErrAlreadyRefunded
	}
	return domain.ErrAlreadyChargedBack
}

func reversalEntry(kind reversalKind, walletID string, amount decimal.Decimal, ref string, orig *domain.Transaction, reason string) domain.Entry {
	e := domain.Entry{
		WalletID:    walletID,
		Amount:      amount,
		ReferenceID: ref + ":" + string(kind),
		Description: strings.ToUpper(string(kind[:1])) + string(kind[1:]) + " of " + orig.ReferenceID,
		InvoiceID:   orig.InvoiceID,
	}
	if kind == kindRefund {
		e.Type = domain.TxRefund
		e.Metadata = domain.RefundMetadata{OriginalTransactionID: orig.ID, Reason: reason}
		return e
	}
	e.Type = domain.TxChargeback
	e.Metadata = domain.ChargebackMetadata{OriginalTransactionID: orig.ID, Reason: reason}
	return e
}
