package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type TransferHandler struct {
	transferUC *usecase.TransferUsecase
	invoiceUC  *usecase.InvoiceUsecase
	logger     *zap.Logger
}

func NewTransferHandler(transferUC *usecase.TransferUsecase, invoiceUC *usecase.InvoiceUsecase, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		transferUC: transferUC,
		invoiceUC:  invoiceUC,
		logger:     logger,
	}
}

type transferRequest struct {
	FromUserID   string          `json:"fromUserId"`
	ToUserID     string          `json:"toUserId"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	ReferenceID  string          `json:"referenceId"`
	Jurisdiction string          `json:"jurisdiction"`
}

// Transfer handles POST /transfer
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.transferUC.Transfer(r.Context(), usecase.TransferRequest{
		FromUserID:   req.FromUserID,
		ToUserID:     req.ToUserID,
		Amount:       req.Amount,
		Description:  req.Description,
		ReferenceID:  req.ReferenceID,
		Jurisdiction: req.Jurisdiction,
	})
	if err != nil {
		sendDomainError(w, h.logger, "transfer", err)
		return
	}

	message := "transfer completed"
	if res.Replayed {
		message = "transfer already processed"
	}
	sendSuccess(w, http.StatusOK, message, map[string]interface{}{
		"invoiceId":   res.InvoiceID,
		"referenceId": res.ReferenceID,
		"amount":      res.Amount,
		"feeAmount":   res.FeeAmount,
		"taxAmount":   res.TaxAmount,
		"netAmount":   res.NetAmount,
		"replayed":    res.Replayed,
	})
}

// Settlement handles GET /transfers/{referenceId}
func (h *TransferHandler) Settlement(w http.ResponseWriter, r *http.Request) {
	s, err := h.transferUC.Settlement(r.Context(), chi.URLParam(r, "referenceId"))
	if err != nil {
		sendDomainError(w, h.logger, "get settlement", err)
		return
	}
	sendSuccess(w, http.StatusOK, "settlement retrieved", s)
}

// InvoiceData handles GET /transactions/{id}/invoice
func (h *TransferHandler) InvoiceData(w http.ResponseWriter, r *http.Request) {
	data, err := h.invoiceUC.InvoiceData(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, h.logger, "invoice data", err)
		return
	}
	sendSuccess(w, http.StatusOK, "invoice data retrieved", data)
}

// GetInvoice handles GET /invoices/{id}
func (h *TransferHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoiceUC.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, h.logger, "get invoice", err)
		return
	}
	sendSuccess(w, http.StatusOK, "invoice retrieved", inv)
}

// DownloadInvoice handles GET /invoices/{id}/download
func (h *TransferHandler) DownloadInvoice(w http.ResponseWriter, r *http.Request) {
	doc, inv, err := h.invoiceUC.RenderPDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, h.logger, "download invoice", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", inv.InvoiceNumber+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		h.logger.Warn("failed to write invoice document", zap.String("invoice_id", inv.ID), zap.Error(err))
	}
}

// ListInvoices handles GET /users/{userId}/invoices
func (h *TransferHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.invoiceUC.ListInvoices(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		sendDomainError(w, h.logger, "list invoices", err)
		return
	}
	if invoices == nil {
		invoices = []*domain.Invoice{}
	}
	sendSuccess(w, http.StatusOK, "invoices retrieved", invoices)
}

// TaxSummary handles GET /users/{userId}/tax-summary?year=
func (h *TransferHandler) TaxSummary(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	summary, err := h.invoiceUC.TaxYearSummary(r.Context(), chi.URLParam(r, "userId"), queryInt(r, "year", now.Year()), now)
	if err != nil {
		sendDomainError(w, h.logger, "tax summary", err)
		return
	}
	sendSuccess(w, http.StatusOK, "tax summary generated", summary)
}
