package repository

import (
	"context"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
)

func (q *queries) AcquireJobLock(ctx context.Context, job domain.JobName, owner string, now time.Time, ttl time.Duration) (bool, error) {
	// The upsert only wins when the row is free or its lease has expired.
	tag, err := q.db.Exec(ctx, `
		INSERT INTO job_locks (job, owner, locked_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job) DO UPDATE
		SET owner = EXCLUDED.owner, locked_at = EXCLUDED.locked_at, expires_at = EXCLUDED.expires_at
		WHERE job_locks.owner = '' OR job_locks.expires_at <= EXCLUDED.locked_at
	`, job, owner, now, now.Add(ttl))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) ReleaseJobLock(ctx context.Context, job domain.JobName, owner string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE job_locks SET owner = '', expires_at = locked_at
		WHERE job = $1 AND owner = $2
	`, job, owner)
	return err
}
