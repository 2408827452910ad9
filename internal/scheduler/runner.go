package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/config"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner ticks the scheduler jobs on their cron specs.
type Runner struct {
	sched  *Scheduler
	specs  map[domain.JobName]string
	now    func() time.Time
	logger *zap.Logger
}

func NewRunner(sched *Scheduler, cfg config.SchedulerConfig, now func() time.Time, logger *zap.Logger) *Runner {
	if now == nil {
		now = time.Now
	}
	return &Runner{
		sched: sched,
		specs: map[domain.JobName]string{
			domain.JobAutoWithdrawal:      cfg.AutoWithdrawalSpec,
			domain.JobPayrollCycle:        cfg.PayrollSpec,
			domain.JobSubscriptionRenewal: cfg.SubscriptionSpec,
			domain.JobPendingClearing:     cfg.PendingClearingSpec,
			domain.JobSagaRecovery:        cfg.SagaRecoverySpec,
		},
		now:    now,
		logger: logger,
	}
}

// Run blocks until ctx is done, then waits for running ticks to return.
func (r *Runner) Run(ctx context.Context) error {
	log := cronLogger{r.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	jobs := r.sched.Jobs()
	for name, spec := range r.specs {
		if spec == "" || spec == "-" {
			r.logger.Info("scheduled job disabled", zap.String("job", string(name)))
			continue
		}
		name, job := name, jobs[name]
		if _, err := c.AddFunc(spec, func() { r.tick(ctx, name, job) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
		}
		r.logger.Info("scheduled job registered", zap.String("job", string(name)), zap.String("spec", spec))
	}

	c.Start()
	r.logger.Info("scheduler started")
	<-ctx.Done()

	r.logger.Info("stopping scheduler")
	<-c.Stop().Done()
	return nil
}

func (r *Runner) tick(ctx context.Context, name domain.JobName, job Job) {
	if ctx.Err() != nil {
		return
	}
	_, err := job(ctx, r.now().UTC())
	if errors.Is(err, domain.ErrJobLocked) {
		r.logger.Info("job tick skipped, previous run still holds the lock", zap.String("job", string(name)))
	}
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
