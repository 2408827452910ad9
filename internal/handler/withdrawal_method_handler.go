package handler

import (
	"net/http"
	"strings"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/usecase"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type WithdrawalMethodHandler struct {
	methodUC *usecase.WithdrawalMethodUsecase
	logger   *zap.Logger
}

func NewWithdrawalMethodHandler(methodUC *usecase.WithdrawalMethodUsecase, logger *zap.Logger) *WithdrawalMethodHandler {
	return &WithdrawalMethodHandler{
		methodUC: methodUC,
		logger:   logger,
	}
}

type addMethodRequest struct {
	UserID           string `json:"userId"`
	Type             string `json:"type"`
	Provider         string `json:"provider"`
	AccountNumber    string `json:"accountNumber"`
	AccountName      string `json:"accountName"`
	IsDefault        bool   `json:"isDefault"`
	IsInstantCapable bool   `json:"isInstantCapable"`
}

type methodOwnerRequest struct {
	UserID string `json:"userId"`
}

// ownerOf reads the acting user from ?userId=, then from the actor header.
func ownerOf(r *http.Request) string {
	if u := r.URL.Query().Get("userId"); u != "" {
		return u
	}
	return r.Header.Get(actorHeader)
}

// Add handles POST /withdrawal-methods
func (h *WithdrawalMethodHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addMethodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		sendError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}

	m, err := h.methodUC.Add(r.Context(), usecase.AddMethodRequest{
		UserID:           req.UserID,
		Type:             domain.WithdrawalMethodType(strings.ToUpper(req.Type)),
		Provider:         req.Provider,
		AccountNumber:    req.AccountNumber,
		AccountName:      req.AccountName,
		IsDefault:        req.IsDefault,
		IsInstantCapable: req.IsInstantCapable,
	})
	if err != nil {
		sendDomainError(w, h.logger, "add withdrawal method", err)
		return
	}
	sendSuccess(w, http.StatusCreated, "withdrawal method added", m)
}

// List handles GET /withdrawal-methods?userId=
func (h *WithdrawalMethodHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := ownerOf(r)
	if userID == "" {
		sendError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}

	methods, err := h.methodUC.List(r.Context(), userID)
	if err != nil {
		sendDomainError(w, h.logger, "list withdrawal methods", err)
		return
	}
	sendSuccess(w, http.StatusOK, "withdrawal methods retrieved", methods)
}

// Delete handles DELETE /withdrawal-methods/{id}?userId=
func (h *WithdrawalMethodHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := ownerOf(r)
	if userID == "" {
		sendError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}

	if err := h.methodUC.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		sendDomainError(w, h.logger, "delete withdrawal method", err)
		return
	}
	sendSuccess(w, http.StatusOK, "withdrawal method deleted", nil)
}

// SetDefault handles PATCH /withdrawal-methods/{id}/default
func (h *WithdrawalMethodHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.bodyOwner(w, r)
	if !ok {
		return
	}

	m, err := h.methodUC.SetDefault(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, h.logger, "set default withdrawal method", err)
		return
	}
	sendSuccess(w, http.StatusOK, "default withdrawal method updated", m)
}

// VerifyInstant handles POST /withdrawal-methods/{id}/verify-instant
func (h *WithdrawalMethodHandler) VerifyInstant(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.bodyOwner(w, r)
	if !ok {
		return
	}

	m, err := h.methodUC.VerifyInstant(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, h.logger, "verify instant capability", err)
		return
	}
	sendSuccess(w, http.StatusOK, "withdrawal method verified for instant payouts", m)
}

func (h *WithdrawalMethodHandler) bodyOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	if u := ownerOf(r); u != "" {
		return u, true
	}
	var req methodOwnerRequest
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	if req.UserID == "" {
		sendError(w, http.StatusBadRequest, "userId is required", nil)
		return "", false
	}
	return req.UserID, true
}
