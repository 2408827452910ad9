package pub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	LedgerEventsChannel = "ledger_events"
)

type LedgerEventPublisher struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
}

func NewLedgerEventPublisher(rdb redis.UniversalClient, logger *zap.Logger) *LedgerEventPublisher {
	return &LedgerEventPublisher{rdb: rdb, logger: logger}
}

type LedgerEvent struct {
	EventType       string                 `json:"event_type"` // transaction.completed, transaction.failed, transfer.completed, ...
	UserID          string                 `json:"user_id"`
	WalletID        string                 `json:"wallet_id,omitempty"`
	TransactionID   string                 `json:"transaction_id,omitempty"`
	ReferenceID     string                 `json:"reference_id,omitempty"`
	TransactionType string                 `json:"transaction_type,omitempty"`
	Status          string                 `json:"status,omitempty"`
	Amount          decimal.Decimal        `json:"amount"`
	Fee             decimal.Decimal        `json:"fee,omitempty"`
	BalanceAfter    *decimal.Decimal       `json:"balance_after,omitempty"`
	Currency        string                 `json:"currency,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// Publish sends event on the ledger events channel.
func (p *LedgerEventPublisher) Publish(ctx context.Context, event *LedgerEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, LedgerEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("ledger event published",
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.UserID),
		zap.String("reference_id", event.ReferenceID))
	return nil
}

func (p *LedgerEventPublisher) PublishTransactionCompleted(ctx context.Context, userID, walletID, txID, referenceID, txType string, amount, fee, balanceAfter decimal.Decimal, currency string) error {
	return p.Publish(ctx, &LedgerEvent{
		EventType:       "transaction.completed",
		UserID:          userID,
		WalletID:        walletID,
		TransactionID:   txID,
		ReferenceID:     referenceID,
		TransactionType: txType,
		Status:          "completed",
		Amount:          amount,
		Fee:             fee,
		BalanceAfter:    &balanceAfter,
		Currency:        currency,
	})
}

func (p *LedgerEventPublisher) PublishTransactionFailed(ctx context.Context, userID, referenceID, txType string, amount decimal.Decimal, errorMsg string) error {
	return p.Publish(ctx, &LedgerEvent{
		EventType:       "transaction.failed",
		UserID:          userID,
		ReferenceID:     referenceID,
		TransactionType: txType,
		Status:          "failed",
		Amount:          amount,
		ErrorMessage:    errorMsg,
	})
}

func (p *LedgerEventPublisher) PublishTransferCompleted(ctx context.Context, fromUserID, toUserID, referenceID, invoiceID string, amount, fee decimal.Decimal) error {
	return p.Publish(ctx, &LedgerEvent{
		EventType:       "transfer.completed",
		UserID:          fromUserID,
		ReferenceID:     referenceID,
		TransactionType: "transfer",
		Status:          "completed",
		Amount:          amount,
		Fee:             fee,
		Metadata: map[string]interface{}{
			"to_user_id": toUserID,
			"invoice_id": invoiceID,
		},
	})
}
