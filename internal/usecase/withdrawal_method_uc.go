package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"go.uber.org/zap"
)

type WithdrawalMethodUsecase struct {
	*Ledger
}

func NewWithdrawalMethodUsecase(ledger *Ledger) *WithdrawalMethodUsecase {
	return &WithdrawalMethodUsecase{Ledger: ledger}
}

type AddMethodRequest struct {
	UserID           string
	Type             domain.WithdrawalMethodType
	Provider         string
	AccountNumber    string
	AccountName      string
	IsDefault        bool
	IsInstantCapable bool
}

// Add stores a payout destination with its account number masked. The first
// method of a user becomes the default.
func (uc *WithdrawalMethodUsecase) Add(ctx context.Context, req AddMethodRequest) (*domain.WithdrawalMethod, error) {
	req.Type = domain.WithdrawalMethodType(strings.ToUpper(string(req.Type)))
	if req.UserID == "" || strings.TrimSpace(req.AccountNumber) == "" {
		return nil, fmt.Errorf("%w: user and account number are required", domain.ErrInvalidRequest)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unsupported withdrawal method %q", domain.ErrInvalidRequest, req.Type)
	}
	w, err := uc.Wallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	m := &domain.WithdrawalMethod{
		ID:               id.New(),
		UserID:           req.UserID,
		Type:             req.Type,
		Provider:         req.Provider,
		AccountNumber:    domain.MaskAccountNumber(req.AccountNumber),
		AccountName:      req.AccountName,
		IsInstantCapable: req.IsInstantCapable,
	}

	err = uc.store.WithinTx(ctx, func(q repository.Queries) error {
		// the wallet row serializes default changes of one user
		if _, err := q.LockWallets(ctx, w.ID); err != nil {
			return err
		}
		existing, err := q.ListWithdrawalMethods(ctx, req.UserID)
		if err != nil {
			return err
		}
		if err := q.InsertWithdrawalMethod(ctx, m); err != nil {
			return err
		}
		if !req.IsDefault && len(existing) > 0 {
			return nil
		}
		if err := q.ClearDefaultMethods(ctx, req.UserID); err != nil {
			return err
		}
		m.IsDefault = true
		return q.SetDefaultMethod(ctx, m.ID)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("withdrawal method added",
		zap.String("user_id", req.UserID),
		zap.String("method_id", m.ID),
		zap.String("type", string(m.Type)),
		zap.Bool("default", m.IsDefault))
	return m, nil
}

func (uc *WithdrawalMethodUsecase) List(ctx context.Context, userID string) ([]*domain.WithdrawalMethod, error) {
	methods, err := uc.store.ListWithdrawalMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	if methods == nil {
		methods = []*domain.WithdrawalMethod{}
	}
	return methods, nil
}

func (uc *WithdrawalMethodUsecase) Delete(ctx context.Context, userID, methodID string) error {
	m, err := uc.owned(ctx, userID, methodID)
	if err != nil {
		return err
	}
	return uc.store.WithinTx(ctx, func(q repository.Queries) error {
		if w, err := q.GetWalletByOwner(ctx, userID); err == nil {
			if _, err := q.LockWallets(ctx, w.ID); err != nil {
				return err
			}
		}
		return q.DeleteWithdrawalMethod(ctx, m.ID)
	})
}

// SetDefault makes methodID the only default method of userID.
func (uc *WithdrawalMethodUsecase) SetDefault(ctx context.Context, userID, methodID string) (*domain.WithdrawalMethod, error) {
	m, err := uc.owned(ctx, userID, methodID)
	if err != nil {
		return nil, err
	}
	w, err := uc.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = uc.store.WithinTx(ctx, func(q repository.Queries) error {
		if _, err := q.LockWallets(ctx, w.ID); err != nil {
			return err
		}
		if err := q.ClearDefaultMethods(ctx, userID); err != nil {
			return err
		}
		return q.SetDefaultMethod(ctx, m.ID)
	})
	if err != nil {
		return nil, err
	}
	m.IsDefault = true
	return m, nil
}

// VerifyInstant marks a method as eligible for instant payouts.
func (uc *WithdrawalMethodUsecase) VerifyInstant(ctx context.Context, userID, methodID string) (*domain.WithdrawalMethod, error) {
	m, err := uc.owned(ctx, userID, methodID)
	if err != nil {
		return nil, err
	}
	if err := uc.store.SetInstantCapable(ctx, m.ID, true); err != nil {
		return nil, err
	}
	m.IsInstantCapable = true
	return m, nil
}

// UpdateAutoWithdrawal stores the auto-withdrawal settings of a wallet. A
// given method becomes the user's default withdrawal method.
func (uc *WithdrawalMethodUsecase) UpdateAutoWithdrawal(ctx context.Context, userID string, s domain.AutoWithdrawalSettings) (*domain.Wallet, error) {
	if s.Schedule == "" {
		s.Schedule = domain.ScheduleNone
	}
	s.Schedule = domain.AutoWithdrawalSchedule(strings.ToUpper(string(s.Schedule)))
	if !s.Schedule.Valid() {
		return nil, fmt.Errorf("%w: unknown schedule %q", domain.ErrInvalidRequest, s.Schedule)
	}
	if s.Threshold.IsNegative() {
		return nil, fmt.Errorf("%w: threshold must not be negative", domain.ErrInvalidAmount)
	}
	if s.MethodID != nil && *s.MethodID == "" {
		s.MethodID = nil
	}
	if s.MethodID != nil {
		if _, err := uc.owned(ctx, userID, *s.MethodID); err != nil {
			return nil, err
		}
	}

	w, err := uc.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = uc.store.WithinTx(ctx, func(q repository.Queries) error {
		if _, err := q.LockWallets(ctx, w.ID); err != nil {
			return err
		}
		if err := q.UpdateAutoWithdrawal(ctx, w.ID, s); err != nil {
			return err
		}
		if s.MethodID == nil {
			return nil
		}
		if err := q.ClearDefaultMethods(ctx, userID); err != nil {
			return err
		}
		return q.SetDefaultMethod(ctx, *s.MethodID)
	})
	if err != nil {
		return nil, err
	}

	meta := map[string]interface{}{
		"enabled":   s.Enabled,
		"schedule":  string(s.Schedule),
		"threshold": s.Threshold.String(),
	}
	if s.MethodID != nil {
		meta["methodId"] = *s.MethodID
	}
	uc.audit.Emit(ctx, audit.Entry{
		EventType: domain.EventAutoWithdrawalUpdated,
		ActorID:   userID,
		Metadata:  meta,
	})
	return uc.store.GetWallet(ctx, w.ID)
}

func (uc *WithdrawalMethodUsecase) owned(ctx context.Context, userID, methodID string) (*domain.WithdrawalMethod, error) {
	m, err := uc.store.GetWithdrawalMethod(ctx, methodID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, domain.ErrMethodNotOwned
	}
	return m, nil
}
