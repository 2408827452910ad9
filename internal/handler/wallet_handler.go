package handler

import (
	"net/http"
	"strings"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletHandler struct {
	walletUC *usecase.WalletUsecase
	methodUC *usecase.WithdrawalMethodUsecase
	logger   *zap.Logger
}

func NewWalletHandler(walletUC *usecase.WalletUsecase, methodUC *usecase.WithdrawalMethodUsecase, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		walletUC: walletUC,
		methodUC: methodUC,
		logger:   logger,
	}
}

type depositRequest struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"referenceId"`
	Source      string          `json:"source"`
}

type withdrawRequest struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Instant     bool            `json:"instant"`
	ReferenceID string          `json:"referenceId"`
}

type autoWithdrawalRequest struct {
	Enabled   bool            `json:"enabled"`
	Schedule  string          `json:"schedule"`
	Threshold decimal.Decimal `json:"threshold"`
	MethodID  *string         `json:"methodId"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// GetWallet handles GET /wallet/{userId}
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	wallet, err := h.walletUC.GetWallet(r.Context(), userID)
	if err != nil {
		sendDomainError(w, h.logger, "get wallet", err)
		return
	}
	sendSuccess(w, http.StatusOK, "wallet retrieved", wallet)
}

// Deposit handles POST /deposit
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		sendError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}

	wallet, err := h.walletUC.Deposit(r.Context(), req.UserID, req.Amount, req.ReferenceID, req.Source)
	if err != nil {
		sendDomainError(w, h.logger, "deposit", err)
		return
	}

	h.logger.Info("deposit completed",
		zap.String("user_id", req.UserID),
		zap.String("amount", req.Amount.String()),
		zap.String("reference_id", req.ReferenceID))
	sendSuccess(w, http.StatusOK, "deposit completed", wallet)
}

// Withdraw handles POST /withdraw
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		sendError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}

	wallet, err := h.walletUC.Withdraw(r.Context(), usecase.WithdrawRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Instant:     req.Instant,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		sendDomainError(w, h.logger, "withdraw", err)
		return
	}
	sendSuccess(w, http.StatusOK, "withdrawal completed", wallet)
}

// UpdateAutoWithdrawal handles PATCH /wallet/{userId}/auto-withdrawal
func (h *WalletHandler) UpdateAutoWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req autoWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	wallet, err := h.methodUC.UpdateAutoWithdrawal(r.Context(), userID, domain.AutoWithdrawalSettings{
		Enabled:   req.Enabled,
		Schedule:  domain.AutoWithdrawalSchedule(req.Schedule),
		Threshold: req.Threshold,
		MethodID:  req.MethodID,
	})
	if err != nil {
		sendDomainError(w, h.logger, "update auto-withdrawal", err)
		return
	}
	sendSuccess(w, http.StatusOK, "auto-withdrawal settings updated", wallet)
}

// ListTransactions handles GET /wallet/{userId}/transactions
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	q := r.URL.Query()

	txs, err := h.walletUC.ListTransactions(r.Context(), userID, domain.TransactionFilter{
		Type:   domain.TransactionType(strings.ToUpper(q.Get("type"))),
		Status: domain.TransactionStatus(strings.ToUpper(q.Get("status"))),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		sendDomainError(w, h.logger, "list transactions", err)
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	sendSuccess(w, http.StatusOK, "transactions retrieved", txs)
}

// GetTransaction handles GET /transactions/{id}
func (h *WalletHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.walletUC.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, h.logger, "get transaction", err)
		return
	}
	sendSuccess(w, http.StatusOK, "transaction retrieved", tx)
}

// TransactionsByReference handles GET /transactions/reference/{referenceId}
func (h *WalletHandler) TransactionsByReference(w http.ResponseWriter, r *http.Request) {
	txs, err := h.walletUC.TransactionsByReference(r.Context(), chi.URLParam(r, "referenceId"))
	if err != nil {
		sendDomainError(w, h.logger, "transactions by reference", err)
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	sendSuccess(w, http.StatusOK, "transactions retrieved", txs)
}

// UpdateTransactionStatus handles PATCH /transactions/{id}/status
func (h *WalletHandler) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status := domain.TransactionStatus(strings.ToUpper(req.Status))
	tx, err := h.walletUC.UpdateTransactionStatus(r.Context(), chi.URLParam(r, "id"), status, actorID(r, "admin"))
	if err != nil {
		sendDomainError(w, h.logger, "update transaction status", err)
		return
	}
	sendSuccess(w, http.StatusOK, "transaction status updated", tx)
}
