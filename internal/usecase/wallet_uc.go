package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/provider"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletUsecase struct {
	*Ledger
	payouts provider.PayoutProvider
}

func NewWalletUsecase(ledger *Ledger, payouts provider.PayoutProvider) *WalletUsecase {
	return &WalletUsecase{Ledger: ledger, payouts: payouts}
}

type WithdrawRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Instant     bool
	ReferenceID string
}

// ===== BALANCES =====

// GetWallet returns the wallet of userID, provisioning it on first access and
// releasing held credits whose clearing time has passed.
func (uc *WalletUsecase) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	w, err := uc.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	due, err := uc.store.ListClearable(ctx, w.ID, uc.now())
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return w, nil
	}
	if _, err := uc.ClearWallet(ctx, w.ID, uc.now()); err != nil {
		return nil, err
	}
	return uc.store.GetWallet(ctx, w.ID)
}

// Credit adds amount to walletID. A repeated referenceID returns the first result.
func (uc *WalletUsecase) Credit(ctx context.Context, walletID string, amount decimal.Decimal, txType domain.TransactionType, referenceID, description string) (*domain.Transaction, error) {
	if err := checkReference(referenceID); err != nil {
		return nil, err
	}
	p, err := uc.apply(ctx, credit, domain.Entry{
		WalletID:    walletID,
		Amount:      amount,
		Type:        txType,
		ReferenceID: referenceID,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	return p.tx, nil
}

// Debit removes amount from walletID or fails with ErrInsufficientFunds.
func (uc *WalletUsecase) Debit(ctx context.Context, walletID string, amount decimal.Decimal, txType domain.TransactionType, referenceID, description string) (*domain.Transaction, error) {
	if err := checkReference(referenceID); err != nil {
		return nil, err
	}
	p, err := uc.apply(ctx, debit, domain.Entry{
		WalletID:    walletID,
		Amount:      amount,
		Type:        txType,
		ReferenceID: referenceID,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	return p.tx, nil
}

func (uc *WalletUsecase) Deposit(ctx context.Context, userID string, amount decimal.Decimal, referenceID, source string) (*domain.Wallet, error) {
	w, err := uc.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if referenceID == "" {
		referenceID = id.NewReference()
	}
	if err := checkReference(referenceID); err != nil {
		return nil, err
	}

	p, err := uc.apply(ctx, credit, domain.Entry{
		WalletID:    w.ID,
		Amount:      amount,
		Type:        domain.TxDeposit,
		ReferenceID: referenceID,
		Description: "Wallet deposit",
		Metadata:    domain.DepositMetadata{Source: source},
	})
	if err != nil {
		return nil, err
	}

	if !p.replay {
		uc.audit.Emit(ctx, audit.Entry{
			EventType:   domain.EventDepositCompleted,
			ActorID:     userID,
			Amount:      amountPtr(amount),
			ReferenceID: referenceID,
			Metadata:    map[string]interface{}{"walletId": w.ID, "transactionId": p.tx.ID},
		})
	}
	return p.wallet, nil
}

// ClearWallet settles every matured held credit of walletID as of now.
func (uc *WalletUsecase) ClearWallet(ctx context.Context, walletID string, now time.Time) (int, error) {
	var cleared []*domain.Transaction
	err := uc.store.WithinTx(ctx, func(q repository.Queries) error {
		var err error
		cleared, err = clearMatured(ctx, q, walletID, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(cleared) == 0 {
		return 0, nil
	}

	total := decimal.Zero
	refs := make([]string, 0, len(cleared))
	for _, t := range cleared {
		total = total.Add(t.Amount)
		refs = append(refs, t.ReferenceID)
	}
	uc.audit.Emit(ctx, audit.Entry{
		EventType: domain.EventFundsCleared,
		ActorID:   walletID,
		Amount:    amountPtr(total),
		Metadata:  map[string]interface{}{"walletId": walletID, "references": refs},
	})
	uc.logger.Info("pending funds cleared",
		zap.String("wallet_id", walletID),
		zap.Int("count", len(cleared)),
		zap.String("amount", total.String()))
	return len(cleared), nil
}

// ===== TRANSACTIONS =====

func (uc *WalletUsecase) ListTransactions(ctx context.Context, userID string, f domain.TransactionFilter) ([]*domain.Transaction, error) {
	w, err := uc.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	f.WalletID = w.ID
	return uc.store.ListTransactions(ctx, f)
}

func (uc *WalletUsecase) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	return uc.store.GetTransaction(ctx, txID)
}

// TransactionsByReference returns the entry posted under referenceID and
// every leg derived from it.
func (uc *WalletUsecase) TransactionsByReference(ctx context.Context, referenceID string) ([]*domain.Transaction, error) {
	if referenceID == "" {
		return nil, fmt.Errorf("%w: reference id is required", domain.ErrInvalidRequest)
	}
	txs, err := uc.store.ListTransactionsByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	return txs, nil
}

// UpdateTransactionStatus completes or fails a PENDING transaction.
func (uc *WalletUsecase) UpdateTransactionStatus(ctx context.Context, txID string, status domain.TransactionStatus, actorID string) (*domain.Transaction, error) {
	if status != domain.TxStatusCompleted && status != domain.TxStatusFailed {
		return nil, fmt.Errorf("%w: status must be COMPLETED or FAILED", domain.ErrInvalidRequest)
	}
	t, err := uc.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	prev := t.Status

	err = uc.store.WithinTx(ctx, func(q repository.Queries) error {
		_, err := settle(ctx, q, t, status, uc.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if status == domain.TxStatusFailed {
		uc.forget(ctx, t.ReferenceID)
	}

	uc.audit.Emit(ctx, audit.Entry{
		EventType:   domain.EventTransactionStatusUpdated,
		ActorID:     actorID,
		Amount:      amountPtr(t.Amount.Abs()),
		ReferenceID: t.ReferenceID,
		Metadata: map[string]interface{}{
			"transactionId": t.ID,
			"from":          string(prev),
			"to":            string(status),
		},
	})
	return uc.store.GetTransaction(ctx, txID)
}

// ===== WITHDRAWALS =====

// Withdraw pays amount out to the user's default withdrawal method. The
// wallet is debited amount plus fee up front; the debit stays PENDING until
// the payout provider answers and is reversed if the payout fails.
func (uc *WalletUsecase) Withdraw(ctx context.Context, req WithdrawRequest) (*domain.Wallet, error) {
	if req.ReferenceID == "" {
		req.ReferenceID = id.NewReference()
	}
	if err := checkReference(req.ReferenceID); err != nil {
		return nil, err
	}
	return uc.withdraw(ctx, req, false)
}

// AutoWithdraw sweeps the available balance of w, less the payout fee, to
// its default method. The reference is derived from the wallet and the day
// of now, so a rerun on the same day replays instead of paying out twice.
func (uc *WalletUsecase) AutoWithdraw(ctx context.Context, w *domain.Wallet, now time.Time) (*domain.Wallet, error) {
	method, err := uc.defaultMethod(ctx, w)
	if err != nil {
		return nil, err
	}
	fee, err := uc.withdrawalFee(method, w.Balance, false)
	if err != nil {
		return nil, err
	}
	amount := w.Balance.Sub(fee)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("balance %s does not cover fee %s: %w", w.Balance, fee, domain.ErrInsufficientFunds)
	}
	return uc.withdraw(ctx, WithdrawRequest{
		UserID:      w.OwnerID,
		Amount:      amount,
		ReferenceID: "auto:" + w.ID + ":" + now.UTC().Format("2006-01-02"),
	}, true)
}

func (uc *WalletUsecase) withdraw(ctx context.Context, req WithdrawRequest, auto bool) (*domain.Wallet, error) {
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, req.Amount.String())
	}
	w, err := uc.Wallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	method, err := uc.defaultMethod(ctx, w)
	if err != nil {
		return nil, err
	}
	fee, err := uc.withdrawalFee(method, req.Amount, req.Instant)
	if err != nil {
		return nil, err
	}
	platform, err := uc.platformWallet(ctx)
	if err != nil {
		return nil, err
	}

	entry := domain.Entry{
		WalletID:        w.ID,
		Amount:          req.Amount.Add(fee),
		Type:            domain.TxWithdrawal,
		ReferenceID:     req.ReferenceID,
		Description:     fmt.Sprintf("Withdrawal to %s", method.Type),
		FeeAmount:       fee,
		AwaitSettlement: true,
		Metadata: domain.WithdrawalMetadata{
			MethodID:   method.ID,
			MethodType: method.Type,
			Provider:   method.Provider,
			Instant:    req.Instant,
			Auto:       auto,
		},
	}
	p, err := uc.apply(ctx, debit, entry)
	if err != nil {
		return nil, err
	}
	if p.replay {
		if p.tx.Status == domain.TxStatusCompleted {
			return uc.store.GetWallet(ctx, w.ID)
		}
		if uc.now().Sub(p.tx.CreatedAt) < uc.cfg.SagaResumeAfter {
			return nil, domain.ErrTransferInProgress
		}
	}

	rail := string(method.Type)
	resp, err := uc.payouts.Payout(ctx, &provider.PayoutRequest{
		ReferenceID:   req.ReferenceID,
		UserID:        req.UserID,
		MethodID:      method.ID,
		Amount:        req.Amount,
		Currency:      w.Currency,
		MethodType:    method.Type,
		Provider:      method.Provider,
		AccountNumber: method.AccountNumber,
		AccountName:   method.AccountName,
		Instant:       req.Instant,
	})
	if err == nil && !resp.Success {
		err = errors.New(resp.Message)
	}

	// the payout outcome must be booked even if the caller went away
	bookCtx := context.WithoutCancel(ctx)
	if err != nil {
		return nil, uc.failWithdrawal(bookCtx, w, p.tx, entry, rail, err)
	}

	var feePosting *posting
	err = uc.store.WithinTx(bookCtx, func(q repository.Queries) error {
		if _, err := q.LockWallets(bookCtx, w.ID, platform.ID); err != nil {
			return err
		}
		if _, err := settle(bookCtx, q, p.tx, domain.TxStatusCompleted, uc.now()); err != nil {
			return err
		}
		if !fee.IsPositive() {
			return nil
		}
		feePct := decimal.Zero
		if req.Instant && method.Type != domain.MethodCrypto {
			feePct = uc.cfg.InstantFeePercent
		}
		var err error
		feePosting, err = post(bookCtx, q, credit, domain.Entry{
			WalletID:    platform.ID,
			Amount:      fee,
			Type:        domain.TxFee,
			ReferenceID: req.ReferenceID + ":fee",
			Description: "Withdrawal fee",
			Metadata: domain.FeeMetadata{
				SourceReference: req.ReferenceID,
				Percent:         feePct,
				PayerID:         req.UserID,
			},
		}, uc.now())
		return err
	})
	if err != nil {
		// the provider paid out; leave the debit PENDING for reconciliation
		uc.logger.Error("failed to book completed payout",
			zap.String("reference_id", req.ReferenceID),
			zap.String("transaction_id", p.tx.ID),
			zap.Error(err))
		withdrawalsTotal.WithLabelValues(rail, "unbooked").Inc()
		return nil, err
	}
	uc.committed(bookCtx, feePosting)

	event := domain.EventWithdrawCompleted
	if req.Instant {
		event = domain.EventInstantWithdrawCompleted
	}
	uc.audit.Emit(bookCtx, audit.Entry{
		EventType:   event,
		ActorID:     req.UserID,
		Amount:      amountPtr(req.Amount),
		ReferenceID: req.ReferenceID,
		Metadata: map[string]interface{}{
			"walletId":     w.ID,
			"methodId":     method.ID,
			"methodType":   rail,
			"fee":          fee.String(),
			"providerTxId": resp.ProviderTxID,
			"auto":         auto,
		},
	})
	withdrawalsTotal.WithLabelValues(rail, "completed").Inc()
	uc.logger.Info("withdrawal completed",
		zap.String("user_id", req.UserID),
		zap.String("reference_id", req.ReferenceID),
		zap.String("amount", req.Amount.String()),
		zap.String("fee", fee.String()),
		zap.String("rail", rail))

	return uc.store.GetWallet(bookCtx, w.ID)
}

// failWithdrawal marks the pending debit FAILED, which gives the funds back.
func (uc *WalletUsecase) failWithdrawal(ctx context.Context, w *domain.Wallet, t *domain.Transaction, e domain.Entry, rail string, cause error) error {
	withdrawalsTotal.WithLabelValues(rail, "failed").Inc()
	uc.logger.Warn("payout failed, restoring balance",
		zap.String("reference_id", e.ReferenceID),
		zap.String("rail", rail),
		zap.Error(cause))

	err := uc.store.WithinTx(ctx, func(q repository.Queries) error {
		_, err := settle(ctx, q, t, domain.TxStatusFailed, uc.now())
		return err
	})
	if err != nil {
		uc.logger.Error("failed to restore balance after payout failure",
			zap.String("transaction_id", t.ID), zap.Error(err))
		return fmt.Errorf("%w: %v (restore failed: %v)", domain.ErrSettlementFailure, cause, err)
	}
	uc.forget(ctx, e.ReferenceID)
	uc.failed(ctx, w.OwnerID, e, cause)

	uc.audit.Emit(ctx, audit.Entry{
		EventType:   domain.EventWithdrawFailed,
		ActorID:     w.OwnerID,
		Amount:      amountPtr(e.Amount),
		ReferenceID: e.ReferenceID,
		Metadata:    map[string]interface{}{"walletId": w.ID, "rail": rail, "error": cause.Error()},
	})
	return fmt.Errorf("%w: %v", domain.ErrSettlementFailure, cause)
}

func (uc *WalletUsecase) defaultMethod(ctx context.Context, w *domain.Wallet) (*domain.WithdrawalMethod, error) {
	if w.DefaultWithdrawalMethodID != nil {
		m, err := uc.store.GetWithdrawalMethod(ctx, *w.DefaultWithdrawalMethodID)
		if err == nil && m.UserID == w.OwnerID {
			return m, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	methods, err := uc.store.ListWithdrawalMethods(ctx, w.OwnerID)
	if err != nil {
		return nil, err
	}
	for _, m := range methods {
		if m.IsDefault {
			return m, nil
		}
	}
	return nil, domain.ErrNoDefaultWithdrawalMethod
}

// withdrawalFee prices a payout: crypto rails pay a flat fee, instant payouts
// pay a percentage with a floor, everything else is free.
func (uc *WalletUsecase) withdrawalFee(m *domain.WithdrawalMethod, amount decimal.Decimal, instant bool) (decimal.Decimal, error) {
	if m.Type == domain.MethodCrypto {
		return uc.cfg.CryptoFlatFee, nil
	}
	if !instant {
		return decimal.Zero, nil
	}
	if !m.IsInstantCapable {
		return decimal.Zero, domain.ErrInstantNotSupported
	}
	fee := percentOf(amount, uc.cfg.InstantFeePercent)
	if fee.LessThan(uc.cfg.InstantMinFee) {
		fee = uc.cfg.InstantMinFee
	}
	return fee, nil
}
