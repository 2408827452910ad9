package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SubscriptionUsecase struct {
	*Ledger
}

func NewSubscriptionUsecase(ledger *Ledger) *SubscriptionUsecase {
	return &SubscriptionUsecase{Ledger: ledger}
}

// Create charges the first billing cycle of planID and opens the subscription.
func (uc *SubscriptionUsecase) Create(ctx context.Context, userID, planID string, price decimal.Decimal) (*domain.Subscription, error) {
	if userID == "" || strings.TrimSpace(planID) == "" {
		return nil, fmt.Errorf("%w: user and plan are required", domain.ErrInvalidRequest)
	}
	if !price.IsPositive() || !price.Equal(price.Round(2)) {
		return nil, fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, price.String())
	}

	now := uc.now()
	sub := &domain.Subscription{
		ID:              id.New(),
		UserID:          userID,
		PlanID:          planID,
		Price:           price,
		Status:          domain.SubscriptionActive,
		NextBillingDate: now,
	}
	ps, err := uc.charge(ctx, sub, func(q repository.Queries) error {
		sub.LastChargedAt = &now
		sub.NextBillingDate = now.AddDate(0, 1, 0)
		return q.InsertSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	uc.committed(ctx, ps...)

	uc.paid(ctx, sub, ps[0].tx.ReferenceID)
	return sub, nil
}

func (uc *SubscriptionUsecase) List(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	subs, err := uc.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*domain.Subscription{}
	}
	return subs, nil
}

// Renew charges the cycle due at sub.NextBillingDate and moves the date one
// month forward. A wallet that cannot cover the price puts the subscription
// PAST_DUE and the returned error wraps ErrInsufficientFunds.
func (uc *SubscriptionUsecase) Renew(ctx context.Context, sub *domain.Subscription, now time.Time) (*domain.Subscription, error) {
	if sub.Status != domain.SubscriptionActive && sub.Status != domain.SubscriptionPastDue {
		return nil, fmt.Errorf("subscription %s is %s: %w", sub.ID, sub.Status, domain.ErrSubscriptionInactive)
	}
	if sub.NextBillingDate.After(now) {
		return sub, nil
	}

	next := *sub
	ps, err := uc.charge(ctx, &next, func(q repository.Queries) error {
		charged := now
		next.Status = domain.SubscriptionActive
		next.LastChargedAt = &charged
		next.NextBillingDate = sub.NextBillingDate.AddDate(0, 1, 0)
		return q.UpdateSubscription(ctx, &next)
	})
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return uc.pastDue(ctx, sub, err)
	}
	if err != nil {
		return nil, err
	}
	uc.committed(ctx, ps...)

	uc.paid(ctx, &next, ps[0].tx.ReferenceID)
	return &next, nil
}

// Cancel stops future renewals. Charged cycles are not refunded.
func (uc *SubscriptionUsecase) Cancel(ctx context.Context, userID, subID string) (*domain.Subscription, error) {
	sub, err := uc.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, fmt.Errorf("%w: subscription %s does not belong to %s", domain.ErrInvalidRequest, subID, userID)
	}
	if sub.Status == domain.SubscriptionCanceled {
		return sub, nil
	}
	sub.Status = domain.SubscriptionCanceled
	if err := uc.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	uc.logger.Info("subscription canceled", zap.String("subscription_id", sub.ID), zap.String("user_id", userID))
	return sub, nil
}

// charge moves sub.Price from the subscriber to the platform for the cycle
// keyed by sub.BillingReference, and runs then inside the same unit of work.
func (uc *SubscriptionUsecase) charge(ctx context.Context, sub *domain.Subscription, then func(q repository.Queries) error) ([]*posting, error) {
	w, err := uc.Wallet(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}
	platform, err := uc.platformWallet(ctx)
	if err != nil {
		return nil, err
	}

	ref := sub.BillingReference()
	meta := domain.PaymentMetadata{
		Kind:           domain.PaymentSubscription,
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		Period:         sub.NextBillingDate.UTC().Format("2006-01-02"),
	}
	out := domain.Entry{
		WalletID:    w.ID,
		Amount:      sub.Price,
		Type:        domain.TxPayment,
		ReferenceID: ref,
		Description: "Subscription " + sub.PlanID,
		Metadata:    meta,
	}
	in := out
	in.WalletID = platform.ID
	in.ReferenceID = ref + ":platform"
	meta.CounterpartyID = sub.UserID
	in.Metadata = meta

	var ps []*posting
	err = uc.store.WithinTx(ctx, func(q repository.Queries) error {
		if _, err := q.LockWallets(ctx, w.ID, platform.ID); err != nil {
			return err
		}
		d, err := post(ctx, q, debit, out, uc.now())
		if err != nil {
			return err
		}
		c, err := post(ctx, q, credit, in, uc.now())
		if err != nil {
			return err
		}
		ps = []*posting{d, c}
		return then(q)
	})
	if err != nil {
		outcome := "error"
		if isRejection(err) {
			outcome = "rejected"
		}
		ledgerEntriesTotal.WithLabelValues(string(domain.TxPayment), outcome).Inc()
		uc.failed(ctx, sub.UserID, out, err)
		return nil, err
	}
	return ps, nil
}

func (uc *SubscriptionUsecase) pastDue(ctx context.Context, sub *domain.Subscription, cause error) (*domain.Subscription, error) {
	if sub.Status != domain.SubscriptionPastDue {
		sub.Status = domain.SubscriptionPastDue
		if err := uc.store.UpdateSubscription(ctx, sub); err != nil {
			return nil, err
		}
	}
	uc.logger.Warn("subscription past due",
		zap.String("subscription_id", sub.ID),
		zap.String("user_id", sub.UserID),
		zap.Error(cause))
	uc.audit.Emit(ctx, audit.Entry{
		EventType:   domain.EventSubscriptionPastDue,
		ActorID:     sub.UserID,
		Amount:      amountPtr(sub.Price),
		ReferenceID: sub.BillingReference(),
		Metadata: map[string]interface{}{
			"subscriptionId": sub.ID,
			"planId":         sub.PlanID,
		},
	})
	return sub, fmt.Errorf("subscription %s: %w", sub.ID, cause)
}

func (uc *SubscriptionUsecase) paid(ctx context.Context, sub *domain.Subscription, ref string) {
	uc.audit.Emit(ctx, audit.Entry{
		EventType:   domain.EventSubscriptionFeePaid,
		ActorID:     sub.UserID,
		Amount:      amountPtr(sub.Price),
		ReferenceID: ref,
		Metadata: map[string]interface{}{
			"subscriptionId":  sub.ID,
			"planId":          sub.PlanID,
			"nextBillingDate": sub.NextBillingDate.UTC().Format(time.RFC3339),
		},
	})
}
