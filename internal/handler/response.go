package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"go.uber.org/zap"
)

const actorHeader = "X-Actor-ID"

// Response helpers
func sendSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"success": false,
		"message": message,
	}
	if err != nil {
		response["error"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}

var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidRequest, http.StatusBadRequest},
	{domain.ErrSelfTransfer, http.StatusBadRequest},
	{domain.ErrInvalidStatusTransition, http.StatusBadRequest},
	{domain.ErrMethodNotOwned, http.StatusForbidden},
	{domain.ErrApprovalRequired, http.StatusForbidden},
	{domain.ErrSelfApproval, http.StatusForbidden},
	{domain.ErrWalletNotFound, http.StatusNotFound},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrInsufficientEmployerFunds, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{domain.ErrNoDefaultWithdrawalMethod, http.StatusUnprocessableEntity},
	{domain.ErrInstantNotSupported, http.StatusUnprocessableEntity},
	{domain.ErrNotChargeable, http.StatusUnprocessableEntity},
	{domain.ErrContractInactive, http.StatusUnprocessableEntity},
	{domain.ErrSubscriptionInactive, http.StatusUnprocessableEntity},
	{domain.ErrDuplicateReference, http.StatusConflict},
	{domain.ErrTransferInProgress, http.StatusConflict},
	{domain.ErrPayrollAlreadyPaid, http.StatusConflict},
	{domain.ErrAlreadyChargedBack, http.StatusConflict},
	{domain.ErrAlreadyRefunded, http.StatusConflict},
	{domain.ErrChecksumMismatch, http.StatusConflict},
	{domain.ErrJobLocked, http.StatusConflict},
	{domain.ErrEscrowStateConflict, http.StatusConflict},
	{domain.ErrSettlementFailure, http.StatusBadGateway},
	{domain.ErrCompensationFailed, http.StatusInternalServerError},
}

// sendDomainError maps a usecase error to its status code. The message is the
// matched sentinel's text; unknown errors are logged and reported as 500.
func sendDomainError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				logger.Error(op+" failed", zap.Error(err))
			}
			sendError(w, m.status, m.err.Error(), err)
			return
		}
	}
	logger.Error(op+" failed", zap.Error(err))
	sendError(w, http.StatusInternalServerError, "internal server error", nil)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func actorID(r *http.Request, fallback string) string {
	if a := r.Header.Get(actorHeader); a != "" {
		return a
	}
	return fallback
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
