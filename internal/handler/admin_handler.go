package handler

import (
	"errors"
	"net/http"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdminHandler serves fee and tax administration and audit verification.
type AdminHandler struct {
	fees     *usecase.CachedFeeSchedule
	taxes    *usecase.StoreTaxTable
	recorder *audit.Recorder
	logger   *zap.Logger
}

func NewAdminHandler(fees *usecase.CachedFeeSchedule, taxes *usecase.StoreTaxTable, recorder *audit.Recorder, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		fees:     fees,
		taxes:    taxes,
		recorder: recorder,
		logger:   logger,
	}
}

type percentRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

type rateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

type verifyEventRequest struct {
	Event    domain.AuditEvent `json:"event"`
	Checksum string            `json:"checksum"`
}

// GetPlatformFee handles GET /admin/fees/platform
func (h *AdminHandler) GetPlatformFee(w http.ResponseWriter, r *http.Request) {
	pct, err := h.fees.PlatformPercent(r.Context())
	if err != nil {
		sendDomainError(w, h.logger, "get platform fee", err)
		return
	}
	sendSuccess(w, http.StatusOK, "platform fee retrieved", map[string]interface{}{"percent": pct})
}

// SetPlatformFee handles PUT /admin/fees/platform
func (h *AdminHandler) SetPlatformFee(w http.ResponseWriter, r *http.Request) {
	var req percentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.fees.SetPlatformPercent(r.Context(), req.Percent); err != nil {
		sendDomainError(w, h.logger, "set platform fee", err)
		return
	}

	h.logger.Info("platform fee overridden",
		zap.String("percent", req.Percent.String()),
		zap.String("actor_id", actorID(r, "admin")))
	sendSuccess(w, http.StatusOK, "platform fee updated", map[string]interface{}{"percent": req.Percent})
}

// ClearPlatformFee handles DELETE /admin/fees/platform
func (h *AdminHandler) ClearPlatformFee(w http.ResponseWriter, r *http.Request) {
	if err := h.fees.ClearPlatformPercent(r.Context()); err != nil {
		sendDomainError(w, h.logger, "clear platform fee", err)
		return
	}
	sendSuccess(w, http.StatusOK, "platform fee override removed", nil)
}

// GetTaxRate handles GET /admin/tax-rates/{jurisdiction}
func (h *AdminHandler) GetTaxRate(w http.ResponseWriter, r *http.Request) {
	j := chi.URLParam(r, "jurisdiction")
	rate, err := h.taxes.Rate(r.Context(), j)
	if err != nil {
		sendDomainError(w, h.logger, "get tax rate", err)
		return
	}
	sendSuccess(w, http.StatusOK, "tax rate retrieved", map[string]interface{}{
		"jurisdiction": j,
		"rate":         rate,
	})
}

// SetTaxRate handles PUT /admin/tax-rates/{jurisdiction}
func (h *AdminHandler) SetTaxRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.taxes.Upsert(r.Context(), chi.URLParam(r, "jurisdiction"), req.Rate)
	if err != nil {
		sendDomainError(w, h.logger, "set tax rate", err)
		return
	}
	sendSuccess(w, http.StatusOK, "tax rate updated", s)
}

// VerifyRecord handles GET /audit/{id}/verify
func (h *AdminHandler) VerifyRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recorder.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrChecksumMismatch) {
			sendError(w, http.StatusConflict, domain.ErrChecksumMismatch.Error(), err)
			return
		}
		sendDomainError(w, h.logger, "verify audit record", err)
		return
	}
	sendSuccess(w, http.StatusOK, "checksum verified", map[string]interface{}{
		"valid":  true,
		"record": rec,
	})
}

// VerifyEvent handles POST /audit/verify
func (h *AdminHandler) VerifyEvent(w http.ResponseWriter, r *http.Request) {
	var req verifyEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Checksum == "" {
		sendError(w, http.StatusBadRequest, "checksum is required", nil)
		return
	}

	valid := h.recorder.Matches(req.Event, req.Checksum)
	if !valid {
		h.logger.Warn("submitted audit event failed verification",
			zap.String("event_type", req.Event.EventType),
			zap.String("reference_id", req.Event.ReferenceID))
	}
	sendSuccess(w, http.StatusOK, "checksum evaluated", map[string]interface{}{"valid": valid})
}
