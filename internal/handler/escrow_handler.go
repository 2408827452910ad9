package handler

import (
	"net/http"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrowUC *usecase.EscrowUsecase
	logger   *zap.Logger
}

func NewEscrowHandler(escrowUC *usecase.EscrowUsecase, logger *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowUC: escrowUC, logger: logger}
}

type fundEscrowRequest struct {
	PayerID     string          `json:"payerId"`
	ContractID  string          `json:"contractId"`
	MilestoneID string          `json:"milestoneId"`
	Amount      decimal.Decimal `json:"amount"`
	CostCenter  string          `json:"costCenter"`
}

type releaseRequest struct {
	PayeeID       string          `json:"payeeId"`
	AgencyID      string          `json:"agencyId"`
	AgencyPercent decimal.Decimal `json:"agencyPercent"`
}

func (r releaseRequest) release() domain.EscrowRelease {
	return domain.EscrowRelease{PayeeID: r.PayeeID, AgencyID: r.AgencyID, AgencyPercent: r.AgencyPercent}
}

type splitReleaseRequest struct {
	PayeeID           string          `json:"payeeId"`
	FreelancerPercent decimal.Decimal `json:"freelancerPercent"`
}

func (h *EscrowHandler) respond(w http.ResponseWriter, op, message string, res *usecase.EscrowResult, err error) {
	if err != nil {
		sendDomainError(w, h.logger, op, err)
		return
	}
	if res.Replayed {
		message = "escrow already processed"
	}
	sendSuccess(w, http.StatusOK, message, res)
}

// Fund handles POST /escrow/fund
func (h *EscrowHandler) Fund(w http.ResponseWriter, r *http.Request) {
	var req fundEscrowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.escrowUC.Fund(r.Context(), usecase.FundEscrowRequest{
		PayerID:     req.PayerID,
		ContractID:  req.ContractID,
		MilestoneID: req.MilestoneID,
		Amount:      req.Amount,
		CostCenter:  req.CostCenter,
	})
	h.respond(w, "fund escrow", "escrow funded", res, err)
}

// Release handles POST /escrow/{id}/release
func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.escrowUC.Release(r.Context(), chi.URLParam(r, "id"), req.release(), actorID(r, ""))
	h.respond(w, "release escrow", "escrow released", res, err)
}

// RequestApproval handles POST /escrow/{id}/request-approval
func (h *EscrowHandler) RequestApproval(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hold, err := h.escrowUC.RequestRelease(r.Context(), chi.URLParam(r, "id"), req.release(), actorID(r, ""))
	if err != nil {
		sendDomainError(w, h.logger, "request escrow approval", err)
		return
	}
	sendSuccess(w, http.StatusAccepted, "release awaiting approval", hold)
}

// Approve handles POST /escrow/{id}/approve
func (h *EscrowHandler) Approve(w http.ResponseWriter, r *http.Request) {
	res, err := h.escrowUC.Approve(r.Context(), chi.URLParam(r, "id"), actorID(r, ""))
	h.respond(w, "approve escrow", "escrow released", res, err)
}

// SplitRelease handles POST /escrow/{id}/split-release
func (h *EscrowHandler) SplitRelease(w http.ResponseWriter, r *http.Request) {
	var req splitReleaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.escrowUC.SplitRelease(r.Context(), chi.URLParam(r, "id"), req.PayeeID, req.FreelancerPercent, actorID(r, ""))
	h.respond(w, "split escrow", "escrow split", res, err)
}

// Refund handles POST /escrow/{id}/refund
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	res, err := h.escrowUC.Refund(r.Context(), chi.URLParam(r, "id"), actorID(r, ""))
	h.respond(w, "refund escrow", "escrow refunded", res, err)
}

// GetHold handles GET /escrow/{id}
func (h *EscrowHandler) GetHold(w http.ResponseWriter, r *http.Request) {
	hold, err := h.escrowUC.GetHold(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, h.logger, "get escrow", err)
		return
	}
	sendSuccess(w, http.StatusOK, "escrow retrieved", hold)
}

// ListByContract handles GET /escrow/contracts/{contractId}
func (h *EscrowHandler) ListByContract(w http.ResponseWriter, r *http.Request) {
	holds, err := h.escrowUC.ListHolds(r.Context(), chi.URLParam(r, "contractId"))
	if err != nil {
		sendDomainError(w, h.logger, "list escrow", err)
		return
	}
	if holds == nil {
		holds = []*domain.EscrowHold{}
	}
	sendSuccess(w, http.StatusOK, "escrow holds retrieved", holds)
}
