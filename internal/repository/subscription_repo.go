package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `
	id, user_id, plan_id, price::text, status, next_billing_date,
	last_charged_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		s     domain.Subscription
		price string
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.PlanID,
		&price,
		&s.Status,
		&s.NextBillingDate,
		&s.LastChargedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.Price, err = parseDecimal(price); err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*domain.Subscription, error) {
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *queries) InsertSubscription(ctx context.Context, s *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, user_id, plan_id, price, status, next_billing_date, last_charged_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := q.db.QueryRow(ctx, query,
		s.ID, s.UserID, s.PlanID, s.Price.String(), s.Status, s.NextBillingDate, s.LastChargedAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return mapUnique(err)
}

func (q *queries) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	s, err := scanSubscription(q.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return s, nil
}

func (q *queries) ListSubscriptions(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

func (q *queries) ListDueSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'ACTIVE' AND next_billing_date <= $1
		ORDER BY next_billing_date, id
	`, now)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

func (q *queries) UpdateSubscription(ctx context.Context, s *domain.Subscription) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, next_billing_date = $3, last_charged_at = $4, updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.Status, s.NextBillingDate, s.LastChargedAt)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
