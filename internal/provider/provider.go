package provider

import (
	"context"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/shopspring/decimal"
)

// PayoutProvider moves withdrawn funds to an external destination.
type PayoutProvider interface {
	// GetName returns the provider name
	GetName() string

	// Payout sends funds to the method's account. An error means nothing was paid out.
	Payout(ctx context.Context, req *PayoutRequest) (*PayoutResponse, error)
}

type PayoutRequest struct {
	ReferenceID   string
	UserID        string
	MethodID      string
	Amount        decimal.Decimal
	Currency      string
	MethodType    domain.WithdrawalMethodType
	Provider      string
	AccountNumber string
	AccountName   string
	Instant       bool
}

type PayoutResponse struct {
	Success      bool
	ProviderTxID string
	Message      string
}
