package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"go.uber.org/zap"
)

// SettlementEngine runs multi-wallet settlements as sagas. Each leg is its
// own unit of work, keyed by a reference derived from the settlement
// reference, and the step log is persisted after every leg so a crashed
// settlement can be resumed or unwound from the log alone.
type SettlementEngine struct {
	*Ledger
	invoices *InvoiceUsecase
}

func NewSettlementEngine(ledger *Ledger, invoices *InvoiceUsecase) *SettlementEngine {
	return &SettlementEngine{Ledger: ledger, invoices: invoices}
}

// Settle runs plan under referenceID. A reference that already has a saga is
// resolved from its state: completed sagas replay, stale running sagas
// resume, rejected sagas run again and unwound sagas are refused.
func (e *SettlementEngine) Settle(ctx context.Context, kind domain.SagaKind, referenceID string, plan domain.SettlementPlan) (*domain.Saga, bool, error) {
	if !plan.Net().IsZero() {
		return nil, false, fmt.Errorf("%w: settlement %s does not balance (net %s)", domain.ErrInvalidRequest, referenceID, plan.Net())
	}

	invoiceID := id.New()
	s := &domain.Saga{
		ID:          id.New(),
		ReferenceID: referenceID,
		Kind:        kind,
		State:       domain.SagaRunning,
		Plan:        plan,
		InvoiceID:   &invoiceID,
	}
	err := e.store.InsertSaga(ctx, s)
	if errors.Is(err, domain.ErrDuplicateReference) {
		existing, gerr := e.store.GetSagaByReference(ctx, referenceID)
		if errors.Is(gerr, domain.ErrNotFound) {
			return nil, false, domain.ErrTransferInProgress
		}
		if gerr != nil {
			return nil, false, gerr
		}
		return e.resolve(ctx, existing, plan)
	}
	if err != nil {
		return nil, false, fmt.Errorf("start settlement %s: %w", referenceID, err)
	}

	out, err := e.run(ctx, s)
	return out, false, err
}

// Resume continues a RUNNING saga from its step log.
func (e *SettlementEngine) Resume(ctx context.Context, s *domain.Saga) (*domain.Saga, error) {
	if s.State != domain.SagaRunning {
		return s, nil
	}
	e.logger.Info("resuming settlement",
		zap.String("reference_id", s.ReferenceID),
		zap.String("kind", string(s.Kind)),
		zap.Int("steps", len(s.Steps)))
	return e.run(ctx, s)
}

// StaleSagas lists RUNNING sagas untouched for longer than the resume window.
func (e *SettlementEngine) StaleSagas(ctx context.Context, now time.Time) ([]*domain.Saga, error) {
	return e.store.ListStaleSagas(ctx, now.Add(-e.cfg.SagaResumeAfter))
}

func (e *SettlementEngine) resolve(ctx context.Context, s *domain.Saga, plan domain.SettlementPlan) (*domain.Saga, bool, error) {
	if !sameIntent(s.Plan, plan) {
		return nil, false, fmt.Errorf("reference %s used for a different settlement: %w", s.ReferenceID, domain.ErrDuplicateReference)
	}

	switch s.State {
	case domain.SagaCompleted:
		return s, true, nil
	case domain.SagaCompensated:
		return s, false, fmt.Errorf("settlement %s was reversed: %w", s.ReferenceID, domain.ErrDuplicateReference)
	case domain.SagaFlagged:
		return s, false, domain.ErrCompensationFailed
	case domain.SagaRejected:
		s.State = domain.SagaRunning
		s.Steps = nil
		s.Error = ""
		if err := e.store.UpdateSaga(ctx, s); err != nil {
			return nil, false, err
		}
		out, err := e.run(ctx, s)
		return out, false, err
	}

	if e.now().Sub(s.UpdatedAt) < e.cfg.SagaResumeAfter {
		return nil, false, domain.ErrTransferInProgress
	}
	out, err := e.Resume(ctx, s)
	return out, false, err
}

// sameIntent compares who pays, how much and who is paid. Fee and tax rates
// may change between retries without making the retry a different settlement.
func sameIntent(a, b domain.SettlementPlan) bool {
	if a.Debit.WalletID != b.Debit.WalletID || !a.Debit.Amount.Equal(b.Debit.Amount) {
		return false
	}
	if len(a.Credits) == 0 || len(b.Credits) == 0 {
		return len(a.Credits) == len(b.Credits)
	}
	return a.Credits[0].WalletID == b.Credits[0].WalletID
}

func (e *SettlementEngine) run(ctx context.Context, s *domain.Saga) (*domain.Saga, error) {
	if s.Compensating() {
		return s, e.compensate(ctx, s, lastError(s))
	}

	if !s.Done(domain.StepDebitPayer) {
		entry := s.Plan.Debit.Entry()
		entry.InvoiceID = s.InvoiceID
		p, err := e.apply(ctx, debit, entry)
		if err != nil {
			if !isRejection(err) {
				// outcome unknown; the saga stays RUNNING for recovery
				e.logger.Warn("settlement debit failed",
					zap.String("reference_id", s.ReferenceID), zap.Error(err))
				return s, err
			}
			s.Record(domain.StepDebitPayer, "", err, e.now())
			s.State = domain.SagaRejected
			s.Error = err.Error()
			if serr := e.save(ctx, s); serr != nil {
				return s, errors.Join(err, serr)
			}
			settlementOutcomes.WithLabelValues(string(s.Kind), string(s.State)).Inc()
			return s, err
		}
		s.Record(domain.StepDebitPayer, p.tx.ID, nil, e.now())
		if err := e.save(ctx, s); err != nil {
			return s, err
		}
	}

	for _, leg := range s.Plan.Credits {
		if s.Done(leg.Step) {
			continue
		}
		entry := leg.Entry()
		entry.InvoiceID = s.InvoiceID
		p, err := e.apply(ctx, credit, entry)
		if err != nil {
			s.Record(leg.Step, "", err, e.now())
			return s, e.compensate(ctx, s, err)
		}
		s.Record(leg.Step, p.tx.ID, nil, e.now())
		if err := e.save(ctx, s); err != nil {
			return s, err
		}
	}

	if !s.Done(domain.StepIssueInvoice) {
		inv, err := e.invoices.issue(ctx, *s.InvoiceID, s.ReferenceID, s.Plan.Invoice, e.now())
		if err != nil {
			s.Record(domain.StepIssueInvoice, "", err, e.now())
			return s, e.compensate(ctx, s, err)
		}
		s.InvoiceID = &inv.ID
		s.Record(domain.StepIssueInvoice, "", nil, e.now())
	}

	s.State = domain.SagaCompleted
	s.Error = ""
	if err := e.save(ctx, s); err != nil {
		return s, err
	}
	settlementOutcomes.WithLabelValues(string(s.Kind), string(s.State)).Inc()
	return s, nil
}

// compensate reverses every credit leg that landed, newest first, then
// refunds the payer. When any reversal fails the saga is FLAGGED for manual
// reconciliation and nothing is retried automatically.
func (e *SettlementEngine) compensate(ctx context.Context, s *domain.Saga, cause error) error {
	ctx = context.WithoutCancel(ctx)
	e.logger.Warn("compensating settlement",
		zap.String("reference_id", s.ReferenceID), zap.Error(cause))

	var failures []error
	for i := len(s.Plan.Credits) - 1; i >= 0; i-- {
		if err := e.reverseLeg(ctx, s.Plan.Credits[i]); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", s.Plan.Credits[i].Step, err))
		}
	}

	if s.Done(domain.StepDebitPayer) && !s.Done(domain.StepCompensate) {
		p, err := e.apply(ctx, credit, domain.Entry{
			WalletID:    s.Plan.Debit.WalletID,
			Amount:      s.Plan.Debit.Amount,
			Type:        domain.TxRefund,
			ReferenceID: s.ReferenceID + ":compensate",
			Description: "Reversal of " + s.ReferenceID,
			InvoiceID:   s.InvoiceID,
			Metadata: domain.RefundMetadata{
				OriginalTransactionID: s.StepTransaction(domain.StepDebitPayer),
				Reason:                cause.Error(),
			},
		})
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", domain.StepCompensate, err))
		} else {
			s.Record(domain.StepCompensate, p.tx.ID, nil, e.now())
		}
	}
	if err := voidInvoice(ctx, e.store, s.InvoiceID); err != nil {
		failures = append(failures, fmt.Errorf("void invoice: %w", err))
	}

	actor := s.Plan.Debit.OwnerID
	meta := map[string]interface{}{"kind": string(s.Kind), "cause": cause.Error()}

	if len(failures) > 0 {
		joined := errors.Join(failures...)
		s.State = domain.SagaFlagged
		s.Error = fmt.Sprintf("%v; compensation: %v", cause, joined)
		if err := e.save(ctx, s); err != nil {
			e.logger.Error("failed to persist flagged settlement", zap.String("reference_id", s.ReferenceID), zap.Error(err))
		}
		settlementOutcomes.WithLabelValues(string(s.Kind), string(s.State)).Inc()
		meta["compensationError"] = joined.Error()
		e.audit.Emit(ctx, audit.Entry{
			EventType:   domain.EventTransferFlagged,
			ActorID:     actor,
			Amount:      amountPtr(s.Plan.Debit.Amount),
			ReferenceID: s.ReferenceID,
			Metadata:    meta,
		})
		e.logger.Error("settlement compensation failed, flagged for reconciliation",
			zap.String("reference_id", s.ReferenceID), zap.Error(joined))
		return fmt.Errorf("%w: %v", domain.ErrCompensationFailed, cause)
	}

	s.State = domain.SagaCompensated
	s.Error = cause.Error()
	if err := e.save(ctx, s); err != nil {
		return errors.Join(cause, err)
	}
	settlementOutcomes.WithLabelValues(string(s.Kind), string(s.State)).Inc()
	e.audit.Emit(ctx, audit.Entry{
		EventType:   domain.EventTransferCompensated,
		ActorID:     actor,
		Amount:      amountPtr(s.Plan.Debit.Amount),
		ReferenceID: s.ReferenceID,
		Metadata:    meta,
	})
	return fmt.Errorf("settlement %s reversed: %w", s.ReferenceID, cause)
}

// reverseLeg undoes one credit leg. Held credits are failed in place;
// cleared credits are taken back with a chargeback debit.
func (e *SettlementEngine) reverseLeg(ctx context.Context, leg domain.SagaLeg) error {
	t, err := e.store.GetTransactionByReference(ctx, leg.ReferenceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if t.WalletID != leg.WalletID || t.Type != leg.Type {
		// the reference belongs to some other entry; this leg never landed
		return nil
	}

	switch t.Status {
	case domain.TxStatusFailed:
		return nil
	case domain.TxStatusPending:
		err := e.store.WithinTx(ctx, func(q repository.Queries) error {
			_, err := settle(ctx, q, t, domain.TxStatusFailed, e.now())
			return err
		})
		if err != nil {
			return err
		}
		e.forget(ctx, t.ReferenceID)
		return nil
	}

	_, err = e.apply(ctx, debit, domain.Entry{
		WalletID:    t.WalletID,
		Amount:      t.Amount,
		Type:        domain.TxChargeback,
		ReferenceID: leg.ReferenceID + ":reverse",
		Description: "Reversal of " + leg.ReferenceID,
		InvoiceID:   t.InvoiceID,
		Metadata: domain.ChargebackMetadata{
			OriginalTransactionID: t.ID,
			Reason:                "settlement compensation",
		},
	})
	return err
}

func (e *SettlementEngine) save(ctx context.Context, s *domain.Saga) error {
	if err := e.store.UpdateSaga(ctx, s); err != nil {
		e.logger.Error("failed to persist settlement step log",
			zap.String("reference_id", s.ReferenceID), zap.Error(err))
		return fmt.Errorf("save settlement %s: %w", s.ReferenceID, err)
	}
	return nil
}

func lastError(s *domain.Saga) error {
	for i := len(s.Steps) - 1; i >= 0; i-- {
		if s.Steps[i].Status == "ERROR" {
			return fmt.Errorf("%s: %s", s.Steps[i].Name, s.Steps[i].Error)
		}
	}
	if s.Error != "" {
		return errors.New(s.Error)
	}
	return errors.New("settlement interrupted")
}
