package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionExpired  SubscriptionStatus = "EXPIRED"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

type Subscription struct {
	ID              string             `json:"id" db:"id"`
	UserID          string             `json:"user_id" db:"user_id"`
	PlanID          string             `json:"plan_id" db:"plan_id"`
	Price           decimal.Decimal    `json:"price" db:"price"`
	Status          SubscriptionStatus `json:"status" db:"status"`
	NextBillingDate time.Time          `json:"next_billing_date" db:"next_billing_date"`
	LastChargedAt   *time.Time         `json:"last_charged_at,omitempty" db:"last_charged_at"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" db:"updated_at"`
}

// BillingReference is the idempotency key of one billing cycle.
func (s *Subscription) BillingReference() string {
	return "sub:" + s.ID + ":" + s.NextBillingDate.UTC().Format("2006-01-02")
}
