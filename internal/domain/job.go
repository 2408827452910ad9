package domain

import "time"

type JobName string

const (
	JobAutoWithdrawal      JobName = "auto-withdrawal"
	JobPayrollCycle        JobName = "payroll-cycle"
	JobSubscriptionRenewal JobName = "subscription-renewal"
	JobPendingClearing     JobName = "pending-clearing"
	JobSagaRecovery        JobName = "saga-recovery"
)

// EntityState tracks one scheduled entity through a tick:
// IDLE -> DUE -> PROCESSING -> SETTLED | SKIPPED | FAILED.
type EntityState string

const (
	EntityIdle       EntityState = "IDLE"
	EntityDue        EntityState = "DUE"
	EntityProcessing EntityState = "PROCESSING"
	EntitySettled    EntityState = "SETTLED"
	EntitySkipped    EntityState = "SKIPPED"
	EntityFailed     EntityState = "FAILED"
)

type EntityResult struct {
	EntityID string      `json:"entity_id"`
	State    EntityState `json:"state"`
	Reason   string      `json:"reason,omitempty"`
}

type JobReport struct {
	Job        JobName        `json:"job"`
	Now        time.Time      `json:"now"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []EntityResult `json:"results"`
}

func (r *JobReport) Add(id string, state EntityState, reason string) {
	r.Results = append(r.Results, EntityResult{EntityID: id, State: state, Reason: reason})
}

// Count returns how many entities ended in state.
func (r *JobReport) Count(state EntityState) int {
	n := 0
	for _, res := range r.Results {
		if res.State == state {
			n++
		}
	}
	return n
}

// JobLock is the run-lock row of a scheduled job.
type JobLock struct {
	Job       JobName   `json:"job" db:"job"`
	Owner     string    `json:"owner" db:"owner"`
	LockedAt  time.Time `json:"locked_at" db:"locked_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}
