package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"

	"go.uber.org/zap"
)

// Wallets is the part of the wallet manager the jobs drive.
type Wallets interface {
	ClearWallet(ctx context.Context, walletID string, now time.Time) (int, error)
	AutoWithdraw(ctx context.Context, w *domain.Wallet, now time.Time) (*domain.Wallet, error)
}

type Payroll interface {
	ProcessDue(ctx context.Context, c *domain.EORContract) (*domain.PayrollRecord, error)
}

type Subscriptions interface {
	Renew(ctx context.Context, sub *domain.Subscription, now time.Time) (*domain.Subscription, error)
}

type Settlements interface {
	StaleSagas(ctx context.Context, now time.Time) ([]*domain.Saga, error)
	Resume(ctx context.Context, s *domain.Saga) (*domain.Saga, error)
}

type Options struct {
	// Owner identifies this process in the run-lock rows.
	Owner   string
	LockTTL time.Duration
	// Weekday on which WEEKLY auto-withdrawals fire.
	Weekday time.Weekday
}

// Scheduler holds the periodic jobs. Every job is a function of the explicit
// now it is given; the cron runner only supplies the wall clock.
type Scheduler struct {
	store   repository.Store
	wallets Wallets
	payroll Payroll
	subs    Subscriptions
	sagas   Settlements
	opts    Options
	logger  *zap.Logger
}

func New(store repository.Store, wallets Wallets, payroll Payroll, subs Subscriptions, sagas Settlements, opts Options, logger *zap.Logger) *Scheduler {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &Scheduler{
		store:   store,
		wallets: wallets,
		payroll: payroll,
		subs:    subs,
		sagas:   sagas,
		opts:    opts,
		logger:  logger,
	}
}

// Job is one scheduled sweep.
type Job func(ctx context.Context, now time.Time) (*domain.JobReport, error)

// Jobs returns every job by name.
func (s *Scheduler) Jobs() map[domain.JobName]Job {
	return map[domain.JobName]Job{
		domain.JobAutoWithdrawal:      s.AutoWithdrawals,
		domain.JobPayrollCycle:        s.PayrollCycle,
		domain.JobSubscriptionRenewal: s.SubscriptionRenewals,
		domain.JobPendingClearing:     s.PendingClearing,
		domain.JobSagaRecovery:        s.SagaRecovery,
	}
}

// run holds the job's run-lock row for the length of the sweep. A tick that
// finds the lock taken returns ErrJobLocked without touching any entity.
func (s *Scheduler) run(ctx context.Context, job domain.JobName, now time.Time, sweep func(r *domain.JobReport) error) (*domain.JobReport, error) {
	ok, err := s.store.AcquireJobLock(ctx, job, s.opts.Owner, now, s.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", job, err)
	}
	if !ok {
		jobRunsTotal.WithLabelValues(string(job), "locked").Inc()
		return nil, domain.ErrJobLocked
	}
	defer func() {
		if err := s.store.ReleaseJobLock(context.WithoutCancel(ctx), job, s.opts.Owner); err != nil {
			s.logger.Error("failed to release job lock", zap.String("job", string(job)), zap.Error(err))
		}
	}()

	started := time.Now()
	report := &domain.JobReport{Job: job, Now: now}
	err = sweep(report)
	report.FinishedAt = time.Now()
	jobDuration.WithLabelValues(string(job)).Observe(time.Since(started).Seconds())

	for _, res := range report.Results {
		jobEntitiesTotal.WithLabelValues(string(job), string(res.State)).Inc()
	}
	if err != nil {
		jobRunsTotal.WithLabelValues(string(job), "error").Inc()
		s.logger.Error("job sweep failed", zap.String("job", string(job)), zap.Error(err))
		return report, err
	}
	jobRunsTotal.WithLabelValues(string(job), "ok").Inc()
	s.logger.Info("job completed",
		zap.String("job", string(job)),
		zap.Time("now", now),
		zap.Int("settled", report.Count(domain.EntitySettled)),
		zap.Int("skipped", report.Count(domain.EntitySkipped)),
		zap.Int("failed", report.Count(domain.EntityFailed)))
	return report, nil
}

// ===== AUTO-WITHDRAWAL =====

// ScheduleDue reports whether schedule fires on the day of now.
func ScheduleDue(schedule domain.AutoWithdrawalSchedule, now time.Time, weekday time.Weekday) bool {
	switch schedule {
	case domain.ScheduleWeekly:
		return now.Weekday() == weekday
	case domain.ScheduleMonthly:
		return now.Day() == 1
	default:
		return false
	}
}

// ThresholdMet reports whether the available balance may be swept.
func ThresholdMet(w *domain.Wallet) bool {
	return w.Balance.IsPositive() && w.Balance.GreaterThanOrEqual(w.AutoWithdrawalThreshold)
}

func (s *Scheduler) AutoWithdrawals(ctx context.Context, now time.Time) (*domain.JobReport, error) {
	return s.run(ctx, domain.JobAutoWithdrawal, now, func(r *domain.JobReport) error {
		wallets, err := s.store.ListAutoWithdrawalWallets(ctx)
		if err != nil {
			return err
		}
		for _, w := range wallets {
			if !ScheduleDue(w.AutoWithdrawalSchedule, now, s.opts.Weekday) {
				r.Add(w.ID, domain.EntitySkipped, "not scheduled today")
				continue
			}
			s.autoWithdraw(ctx, r, w, now)
		}
		return nil
	})
}

func (s *Scheduler) autoWithdraw(ctx context.Context, r *domain.JobReport, w *domain.Wallet, now time.Time) {
	if _, err := s.wallets.ClearWallet(ctx, w.ID, now); err != nil {
		s.fail(r, domain.JobAutoWithdrawal, w.ID, err)
		return
	}
	current, err := s.store.GetWallet(ctx, w.ID)
	if err != nil {
		s.fail(r, domain.JobAutoWithdrawal, w.ID, err)
		return
	}
	if !ThresholdMet(current) {
		r.Add(w.ID, domain.EntitySkipped, "below threshold")
		return
	}

	_, err = s.wallets.AutoWithdraw(ctx, current, now)
	switch {
	case err == nil:
		r.Add(w.ID, domain.EntitySettled, "")
	case errors.Is(err, domain.ErrInsufficientFunds):
		r.Add(w.ID, domain.EntitySkipped, "balance does not cover the payout fee")
	default:
		s.fail(r, domain.JobAutoWithdrawal, w.ID, err)
	}
}

// ===== PAYROLL =====

func (s *Scheduler) PayrollCycle(ctx context.Context, now time.Time) (*domain.JobReport, error) {
	return s.run(ctx, domain.JobPayrollCycle, now, func(r *domain.JobReport) error {
		contracts, err := s.store.ListDueContracts(ctx, now)
		if err != nil {
			return err
		}
		for _, c := range contracts {
			_, err := s.payroll.ProcessDue(ctx, c)
			switch {
			case err == nil:
				r.Add(c.ID, domain.EntitySettled, "")
			case errors.Is(err, domain.ErrPayrollAlreadyPaid):
				r.Add(c.ID, domain.EntitySkipped, "period already paid")
			default:
				s.fail(r, domain.JobPayrollCycle, c.ID, err)
			}
		}
		return nil
	})
}

// ===== SUBSCRIPTIONS =====

func (s *Scheduler) SubscriptionRenewals(ctx context.Context, now time.Time) (*domain.JobReport, error) {
	return s.run(ctx, domain.JobSubscriptionRenewal, now, func(r *domain.JobReport) error {
		subs, err := s.store.ListDueSubscriptions(ctx, now)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			_, err := s.subs.Renew(ctx, sub, now)
			if err != nil {
				s.fail(r, domain.JobSubscriptionRenewal, sub.ID, err)
				continue
			}
			r.Add(sub.ID, domain.EntitySettled, "")
		}
		return nil
	})
}

// ===== CLEARING =====

func (s *Scheduler) PendingClearing(ctx context.Context, now time.Time) (*domain.JobReport, error) {
	return s.run(ctx, domain.JobPendingClearing, now, func(r *domain.JobReport) error {
		ids, err := s.store.ListWalletsWithClearable(ctx, now)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := s.wallets.ClearWallet(ctx, id, now)
			switch {
			case err != nil:
				s.fail(r, domain.JobPendingClearing, id, err)
			case n == 0:
				r.Add(id, domain.EntitySkipped, "nothing matured")
			default:
				r.Add(id, domain.EntitySettled, fmt.Sprintf("%d cleared", n))
			}
		}
		return nil
	})
}

// ===== SAGA RECOVERY =====

func (s *Scheduler) SagaRecovery(ctx context.Context, now time.Time) (*domain.JobReport, error) {
	return s.run(ctx, domain.JobSagaRecovery, now, func(r *domain.JobReport) error {
		stale, err := s.sagas.StaleSagas(ctx, now)
		if err != nil {
			return err
		}
		for _, saga := range stale {
			done, err := s.sagas.Resume(ctx, saga)
			if err != nil {
				s.fail(r, domain.JobSagaRecovery, saga.ID, err)
				continue
			}
			if done.State == domain.SagaCompleted {
				r.Add(saga.ID, domain.EntitySettled, "")
				continue
			}
			r.Add(saga.ID, domain.EntityFailed, string(done.State))
		}
		return nil
	})
}

// fail records a per-entity failure; the sweep goes on with the next entity.
func (s *Scheduler) fail(r *domain.JobReport, job domain.JobName, entityID string, err error) {
	r.Add(entityID, domain.EntityFailed, err.Error())
	s.logger.Warn("scheduled entity failed",
		zap.String("job", string(job)),
		zap.String("entity_id", entityID),
		zap.Error(err))
}
