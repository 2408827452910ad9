package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPProvider posts payouts to a gateway that fronts the regional rails.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (p *HTTPProvider) GetName() string { return "http-gateway" }

type payoutBody struct {
	Reference     string `json:"reference"`
	UserID        string `json:"user_id"`
	MethodID      string `json:"method_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Rail          string `json:"rail"`
	Provider      string `json:"provider,omitempty"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name,omitempty"`
	Instant       bool   `json:"instant"`
}

type payoutReply struct {
	Success bool   `json:"success"`
	TxnID   string `json:"txn_id"`
	Message string `json:"message"`
}

func (p *HTTPProvider) Payout(ctx context.Context, req *PayoutRequest) (*PayoutResponse, error) {
	body, err := json.Marshal(payoutBody{
		Reference:     req.ReferenceID,
		UserID:        req.UserID,
		MethodID:      req.MethodID,
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		Rail:          string(req.MethodType),
		Provider:      req.Provider,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Instant:       req.Instant,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ReferenceID)
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payout request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read payout response: %w", err)
	}

	var reply payoutReply
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	if resp.StatusCode >= 300 || !reply.Success {
		p.logger.Warn("payout rejected",
			zap.String("reference_id", req.ReferenceID),
			zap.Int("status", resp.StatusCode),
			zap.String("message", reply.Message))
		return nil, fmt.Errorf("payout rejected (status %d): %s", resp.StatusCode, reply.Message)
	}

	return &PayoutResponse{Success: true, ProviderTxID: reply.TxnID, Message: reply.Message}, nil
}
