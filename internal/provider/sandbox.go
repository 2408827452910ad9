package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"go.uber.org/zap"
)

// SandboxProvider accepts every payout and logs it. Used when no gateway is configured.
type SandboxProvider struct {
	logger *zap.Logger
}

func NewSandboxProvider(logger *zap.Logger) *SandboxProvider {
	return &SandboxProvider{logger: logger}
}

func (p *SandboxProvider) GetName() string { return "sandbox" }

var railPrefix = map[domain.WithdrawalMethodType]string{
	domain.MethodMomo:      "MOMO",
	domain.MethodPix:       "PIX",
	domain.MethodPromptPay: "PP",
	domain.MethodMpesa:     "MPESA",
	domain.MethodWise:      "WISE",
	domain.MethodPayoneer:  "PAYO",
}

func (p *SandboxProvider) Payout(ctx context.Context, req *PayoutRequest) (*PayoutResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix, ok := railPrefix[req.MethodType]
	if !ok {
		prefix = strings.ToUpper(string(req.MethodType))
	}

	p.logger.Info("sandbox payout",
		zap.String("rail", string(req.MethodType)),
		zap.String("user_id", req.UserID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("account", domain.MaskAccountNumber(req.AccountNumber)))

	return &PayoutResponse{
		Success:      true,
		ProviderTxID: fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()),
	}, nil
}
