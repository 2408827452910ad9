package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPProvider_Payout(t *testing.T) {
	var got payoutBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payouts", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "ref-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(payoutReply{Success: true, TxnID: "PIX_1"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/", "key-1", time.Second, zap.NewNop())
	resp, err := p.Payout(context.Background(), &PayoutRequest{
		ReferenceID:   "ref-1",
		UserID:        "user-1",
		Amount:        decimal.RequireFromString("12.5"),
		Currency:      "USD",
		MethodType:    domain.MethodPix,
		AccountNumber: "key@pix",
	})
	require.NoError(t, err)
	assert.Equal(t, "PIX_1", resp.ProviderTxID)
	assert.Equal(t, "12.50", got.Amount)
	assert.Equal(t, "PIX", got.Rail)
}

func TestHTTPProvider_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(payoutReply{Message: "rail offline"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", time.Second, zap.NewNop())
	_, err := p.Payout(context.Background(), &PayoutRequest{ReferenceID: "ref-2", Amount: decimal.NewFromInt(5)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rail offline")
}

func TestSandboxProvider_Payout(t *testing.T) {
	p := NewSandboxProvider(zap.NewNop())
	resp, err := p.Payout(context.Background(), &PayoutRequest{
		MethodType:    domain.MethodMpesa,
		Amount:        decimal.NewFromInt(10),
		AccountNumber: "254700000001",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.ProviderTxID, "MPESA_")
}
