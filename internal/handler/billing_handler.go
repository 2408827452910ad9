package handler

import (
	"net/http"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BillingHandler serves subscriptions and payment reversals.
type BillingHandler struct {
	subscriptionUC *usecase.SubscriptionUsecase
	reversalUC     *usecase.ReversalUsecase
	logger         *zap.Logger
}

func NewBillingHandler(subscriptionUC *usecase.SubscriptionUsecase, reversalUC *usecase.ReversalUsecase, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{
		subscriptionUC: subscriptionUC,
		reversalUC:     reversalUC,
		logger:         logger,
	}
}

type subscriptionRequest struct {
	UserID string          `json:"userId"`
	PlanID string          `json:"planId"`
	Price  decimal.Decimal `json:"price"`
}

type reversalRequest struct {
	Reason string `json:"reason"`
}

// CreateSubscription handles POST /subscriptions
func (h *BillingHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, err := h.subscriptionUC.Create(r.Context(), req.UserID, req.PlanID, req.Price)
	if err != nil {
		sendDomainError(w, h.logger, "create subscription", err)
		return
	}
	sendSuccess(w, http.StatusCreated, "subscription created", sub)
}

// ListSubscriptions handles GET /subscriptions/{userId}
func (h *BillingHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subscriptionUC.List(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		sendDomainError(w, h.logger, "list subscriptions", err)
		return
	}
	if subs == nil {
		subs = []*domain.Subscription{}
	}
	sendSuccess(w, http.StatusOK, "subscriptions retrieved", subs)
}

// CancelSubscription handles POST /subscriptions/{id}/cancel?userId=
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID := ownerOf(r)
	if userID == "" {
		sendError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}

	sub, err := h.subscriptionUC.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, h.logger, "cancel subscription", err)
		return
	}
	sendSuccess(w, http.StatusOK, "subscription canceled", sub)
}

// Chargeback handles POST /transactions/{id}/chargeback
func (h *BillingHandler) Chargeback(w http.ResponseWriter, r *http.Request) {
	var req reversalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.reversalUC.Chargeback(r.Context(), chi.URLParam(r, "id"), req.Reason, actorID(r, "admin"))
	if err != nil {
		sendDomainError(w, h.logger, "chargeback", err)
		return
	}
	sendSuccess(w, http.StatusOK, "chargeback processed", res)
}

// Refund handles POST /transactions/{id}/refund
func (h *BillingHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req reversalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.reversalUC.Refund(r.Context(), chi.URLParam(r, "id"), req.Reason, actorID(r, "admin"))
	if err != nil {
		sendDomainError(w, h.logger, "refund", err)
		return
	}
	sendSuccess(w, http.StatusOK, "refund processed", res)
}
